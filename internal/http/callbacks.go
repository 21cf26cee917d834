package http

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tuitora/tuitora-gateway/internal/logger"
	"github.com/tuitora/tuitora-gateway/internal/metrics"
	"github.com/tuitora/tuitora-gateway/internal/model"
	"github.com/tuitora/tuitora-gateway/internal/sms"
	"go.uber.org/zap"
)

const callbackTimeout = 3 * time.Second

// CallbackAuditor stores provider callbacks; the ClickHouse audit repository
// implements it.
type CallbackAuditor interface {
	InsertDeliveryReport(ctx context.Context, r model.DeliveryReport) error
	InsertIncomingSMS(ctx context.Context, m model.IncomingSMS) error
}

// DeliveryStatusUpdater moves a broadcast message to its final status.
type DeliveryStatusUpdater interface {
	UpdateStatusByProviderID(ctx context.Context, providerMessageID string, status model.MessageStatus) (bool, error)
}

// deliveryReportHandler always answers 200 "OK"; anything else makes the
// provider retry. Failures are logged only.
func deliveryReportHandler(audit CallbackAuditor, messages DeliveryStatusUpdater) echo.HandlerFunc {
	return func(c echo.Context) error {
		metrics.CallbacksTotal.WithLabelValues("delivery_report").Inc()

		var dr model.DeliveryReport
		if err := c.Bind(&dr); err != nil {
			logger.Log.Warn("delivery report: bad payload", zap.Error(err))
			return c.String(http.StatusOK, "OK")
		}
		dr.ID = strings.TrimSpace(dr.ID)
		dr.ReceivedAt = time.Now().UTC()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), callbackTimeout)
		defer cancel()

		logger.Log.Info("delivery report",
			zap.String("id", dr.ID),
			zap.String("status", dr.Status),
			zap.String("phone", dr.PhoneNumber),
			zap.String("failure_reason", dr.FailureReason))

		if audit != nil {
			if err := audit.InsertDeliveryReport(ctx, dr); err != nil {
				logger.Log.Warn("delivery report: audit failed", zap.String("id", dr.ID), zap.Error(err))
			}
		}

		if messages != nil && dr.ID != "" {
			var st model.MessageStatus
			switch {
			case dr.Delivered():
				st = model.StatusDelivered
			case dr.Failed():
				st = model.StatusFailed
			}
			if st != "" {
				found, err := messages.UpdateStatusByProviderID(ctx, dr.ID, st)
				switch {
				case err != nil:
					logger.Log.Warn("delivery report: status update failed", zap.String("id", dr.ID), zap.Error(err))
				case found && st == model.StatusDelivered:
					metrics.BroadcastTotal.WithLabelValues("delivered").Inc()
				}
			}
		}

		return c.String(http.StatusOK, "OK")
	}
}

// incomingSMSHandler accepts whatever shape the provider posts.
func incomingSMSHandler(audit CallbackAuditor) echo.HandlerFunc {
	return func(c echo.Context) error {
		metrics.CallbacksTotal.WithLabelValues("incoming_sms").Inc()

		body, err := io.ReadAll(io.LimitReader(c.Request().Body, 64<<10))
		if err != nil {
			logger.Log.Warn("incoming sms: read body failed", zap.Error(err))
		}

		msg, perr := sms.ParseIncoming(c.Request().Header.Get(echo.HeaderContentType), body, c.QueryParams())
		if perr != nil {
			logger.Log.Warn("incoming sms: malformed payload", zap.Error(perr), zap.ByteString("body", body))
		}
		msg.ReceivedAt = time.Now().UTC()

		logger.Log.Info("incoming sms",
			zap.String("id", msg.ID),
			zap.String("from", msg.From),
			zap.String("to", msg.To),
			zap.Int("length", len(msg.Text)))

		if audit != nil {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), callbackTimeout)
			defer cancel()
			if err := audit.InsertIncomingSMS(ctx, msg); err != nil {
				logger.Log.Warn("incoming sms: audit failed", zap.Error(err))
			}
		}

		return c.String(http.StatusOK, "OK")
	}
}
