package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	echo "github.com/labstack/echo/v4"
	"github.com/tuitora/tuitora-gateway/internal/http/middleware"
	"github.com/tuitora/tuitora-gateway/internal/logger"
	"github.com/tuitora/tuitora-gateway/internal/model"
	"github.com/tuitora/tuitora-gateway/internal/util"
	"go.uber.org/zap"
)

// MessageLister reads broadcast history for one school.
type MessageLister interface {
	ListMessages(ctx context.Context, schoolID int64, phone string, status model.MessageStatus, limit, offset int) ([]model.Message, error)
}

func listMessagesHandler(lister MessageLister) echo.HandlerFunc {
	return func(c echo.Context) error {
		schoolID, ok := middleware.SchoolIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		var st model.MessageStatus
		if raw := strings.TrimSpace(c.QueryParam("status")); raw != "" {
			st = model.MessageStatus(raw)
			if !st.Valid() {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid status"})
			}
		}

		var phone string
		if raw := strings.TrimSpace(c.QueryParam("phone")); raw != "" {
			phone = util.NormalizePhone(raw)
		}

		msgs, err := lister.ListMessages(c.Request().Context(), schoolID, phone, st, limit, offset)
		if err != nil {
			logger.Log.Error("clickhouse list failed", zap.Int64("school_id", schoolID), zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(msgs),
			"results": msgs,
		})
	}
}
