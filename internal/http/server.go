package http

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/tuitora/tuitora-gateway/internal/config"
	"github.com/tuitora/tuitora-gateway/internal/http/middleware"
	"github.com/tuitora/tuitora-gateway/internal/logger"
	"github.com/tuitora/tuitora-gateway/internal/metrics"
	"github.com/tuitora/tuitora-gateway/internal/repository"
	"github.com/tuitora/tuitora-gateway/internal/session"
	"github.com/tuitora/tuitora-gateway/internal/ussd"
	"github.com/tuitora/tuitora-gateway/internal/validator"
	"go.uber.org/zap"
)

// Deps are the components the HTTP layer routes to. Nil Audit / Messages /
// Sessions disable the corresponding best-effort writes.
type Deps struct {
	Config    config.Config
	Menu      Menu
	Recorder  *session.Recorder
	Sessions  session.Store
	SMS       SMSSender
	Broadcast Broadcaster
	Schools   repository.SchoolsRepository
	Audit     interface {
		CallbackAuditor
		MessageLister
	}
	Messages DeliveryStatusUpdater
	Redis    *redis.Client
}

type Server struct{ e *echo.Echo }

func NewServer(d Deps) *Server {
	cfg := d.Config

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(echoLogLevel(cfg.Log.Level))
	e.Validator = validator.New()
	e.Use(echoMid.Recover(), requestLogger())

	metrics.MustRegister(prometheus.DefaultRegisterer)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// provider-facing
	formatter := ussd.Formatter{MaxLength: cfg.USSD.MaxLength}
	e.POST("/ussd/callback", ussdCallbackHandler(d.Menu, formatter, d.Recorder))
	e.POST("/ussd/sessions", startSessionHandler(d.Sessions, cfg.USSD.ServiceCode, cfg.Session.WriteTimeout))

	var audit CallbackAuditor
	if d.Audit != nil {
		audit = d.Audit
	}
	e.POST("/sms/delivery-reports", deliveryReportHandler(audit, d.Messages))
	e.POST("/sms/incoming", incomingSMSHandler(audit))

	// school-facing
	authMW := middleware.APIKeyMiddleware(d.Schools)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          d.Redis,
		DefaultRPS:     cfg.RateLimit.RPS,
		KeyPrefix:      "rl:school:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	v1 := e.Group("/v1", authMW, rlMW)
	v1.POST("/sms/send", sendSMSHandler(d.SMS, cfg.SMS.MaxLength))
	v1.POST("/sms/bulk", bulkSMSHandler(d.SMS, cfg.SMS.MaxLength))
	if d.Broadcast != nil {
		v1.POST("/sms/broadcast", broadcastHandler(d.Broadcast, cfg.SMS.MaxLength))
	}
	if d.Audit != nil {
		v1.GET("/reports/messages", listMessagesHandler(d.Audit))
	}

	return &Server{e: e}
}

func (s *Server) Handler() http.Handler { return s.e }

func (s *Server) Start(addr string) error {
	logger.Log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

func requestLogger() echo.MiddlewareFunc {
	return echoMid.RequestLoggerWithConfig(echoMid.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echoMid.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				logger.Log.Warn("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Log.Debug("request", fields...)
			return nil
		},
	})
}

func echoLogLevel(level string) log.Lvl {
	switch level {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	default:
		return log.INFO
	}
}
