package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"github.com/tuitora/tuitora-gateway/internal/http/middleware"
	"github.com/tuitora/tuitora-gateway/internal/logger"
	"github.com/tuitora/tuitora-gateway/internal/model"
	"github.com/tuitora/tuitora-gateway/internal/service/queue"
	"github.com/tuitora/tuitora-gateway/internal/sms"
	"github.com/tuitora/tuitora-gateway/internal/validator"
	"go.uber.org/zap"
)

// SMSSender is implemented by *sms.Service.
type SMSSender interface {
	Send(ctx context.Context, recipients []string, message string) []model.SMSResult
	SendBulk(ctx context.Context, recipients []model.Recipient, message string) []model.SMSResult
}

// Broadcaster is implemented by *queue.Service.
type Broadcaster interface {
	Enqueue(ctx context.Context, schoolID int64, recipients []model.Recipient, message string) (queue.Broadcast, error)
}

type sendReq struct {
	Recipients []string `json:"recipients" validate:"required,min=1,max=1000"`
	Message    string   `json:"message"    validate:"required"`
}

type bulkReq struct {
	Recipients []model.Recipient `json:"recipients" validate:"required,min=1,max=1000"`
	Message    string            `json:"message"    validate:"required"`
}

type sendResp struct {
	Results  []model.SMSResult `json:"results"`
	Sent     int               `json:"sent"`
	Failed   int               `json:"failed"`
	Segments int               `json:"segments"`
}

func tooLong(msg string, maxLen int) bool {
	return maxLen > 0 && utf8.RuneCountInString(msg) > maxLen
}

func sendSMSHandler(svc SMSSender, maxLen int) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req sendReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		req.Message = strings.TrimSpace(req.Message)
		if err := c.Validate(&req); err != nil {
			return validator.HandleValidationError(c, err)
		}
		if tooLong(req.Message, maxLen) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "message too long"})
		}

		results := svc.Send(c.Request().Context(), req.Recipients, req.Message)
		return c.JSON(http.StatusOK, summarize(results, sms.Segments(req.Message)))
	}
}

func bulkSMSHandler(svc SMSSender, maxLen int) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req bulkReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		req.Message = strings.TrimSpace(req.Message)
		if err := c.Validate(&req); err != nil {
			return validator.HandleValidationError(c, err)
		}
		if tooLong(req.Message, maxLen) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "message too long"})
		}

		results := svc.SendBulk(c.Request().Context(), req.Recipients, req.Message)
		return c.JSON(http.StatusOK, summarize(results, sms.Segments(req.Message)))
	}
}

func summarize(results []model.SMSResult, segments int) sendResp {
	sent, failed := sms.Tally(results)
	return sendResp{Results: results, Sent: sent, Failed: failed, Segments: segments}
}

// broadcastHandler queues a personalized message for asynchronous delivery.
func broadcastHandler(b Broadcaster, maxLen int) echo.HandlerFunc {
	return func(c echo.Context) error {
		schoolID, ok := middleware.SchoolIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		var req bulkReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		req.Message = strings.TrimSpace(req.Message)
		if err := c.Validate(&req); err != nil {
			return validator.HandleValidationError(c, err)
		}
		if tooLong(req.Message, maxLen) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "message too long"})
		}

		out, err := b.Enqueue(c.Request().Context(), schoolID, req.Recipients, req.Message)
		if errors.Is(err, queue.ErrNothingToSend) {
			return c.JSON(http.StatusUnprocessableEntity, map[string]any{
				"error":    err.Error(),
				"rejected": out.Rejected,
			})
		}
		if err != nil {
			logger.Log.Error("broadcast enqueue failed", zap.Int64("school_id", schoolID), zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusAccepted, map[string]any{
			"queued":   len(out.Queued),
			"messages": out.Queued,
			"rejected": out.Rejected,
		})
	}
}
