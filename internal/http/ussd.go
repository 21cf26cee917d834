package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tuitora/tuitora-gateway/internal/logger"
	"github.com/tuitora/tuitora-gateway/internal/metrics"
	"github.com/tuitora/tuitora-gateway/internal/model"
	"github.com/tuitora/tuitora-gateway/internal/response"
	"github.com/tuitora/tuitora-gateway/internal/session"
	"github.com/tuitora/tuitora-gateway/internal/ussd"
	"github.com/tuitora/tuitora-gateway/internal/util"
	"go.uber.org/zap"
)

// Menu computes the reply to one USSD callback; *ussd.Machine implements it.
type Menu interface {
	Handle(ctx context.Context, phone, text string) ussd.Outcome
}

type ussdRequest struct {
	SessionID   string  `json:"sessionId"`
	PhoneNumber string  `json:"phoneNumber"`
	ServiceCode string  `json:"serviceCode"`
	NetworkCode string  `json:"networkCode"`
	Text        *string `json:"text"`
}

// bindUSSDRequest accepts JSON or form bodies. text must be present but may
// be empty (first callback of a session).
func bindUSSDRequest(c echo.Context) (ussdRequest, error) {
	var req ussdRequest

	ct := c.Request().Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(ct, echo.MIMEApplicationJSON) {
		if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
			return req, errors.New("malformed JSON body")
		}
	} else {
		form, err := c.FormParams()
		if err != nil {
			return req, errors.New("malformed form body")
		}
		req.SessionID = form.Get("sessionId")
		req.PhoneNumber = form.Get("phoneNumber")
		req.ServiceCode = form.Get("serviceCode")
		req.NetworkCode = form.Get("networkCode")
		if vals, ok := form["text"]; ok {
			t := ""
			if len(vals) > 0 {
				t = vals[0]
			}
			req.Text = &t
		}
	}

	req.SessionID = strings.TrimSpace(req.SessionID)
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	req.ServiceCode = strings.TrimSpace(req.ServiceCode)
	req.NetworkCode = strings.TrimSpace(req.NetworkCode)

	var missing []string
	if req.SessionID == "" {
		missing = append(missing, "sessionId")
	}
	if req.PhoneNumber == "" {
		missing = append(missing, "phoneNumber")
	}
	if req.Text == nil {
		missing = append(missing, "text")
	}
	if len(missing) > 0 {
		return req, fmt.Errorf("missing required field(s): %s", strings.Join(missing, ", "))
	}
	return req, nil
}

// ussdCallbackHandler answers the provider with "CON ..." or "END ..." as
// text/plain. Anything that goes wrong after the request is validated still
// produces a well-formed END reply with status 200.
func ussdCallbackHandler(menu Menu, f ussd.Formatter, rec *session.Recorder) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		start := time.Now()

		defer func() {
			if p := recover(); p != nil {
				logger.Log.Error("ussd callback panicked", zap.Any("panic", p), zap.Stack("stack"))
				metrics.USSDTurnsTotal.WithLabelValues("error").Inc()
				err = c.String(http.StatusOK, ussd.PrefixEnd+ussd.FallbackText)
			}
		}()

		req, err := bindUSSDRequest(c)
		if err != nil {
			metrics.USSDTurnsTotal.WithLabelValues("invalid_request").Inc()
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}

		phone := util.NormalizePhone(req.PhoneNumber)
		out := menu.Handle(c.Request().Context(), phone, *req.Text)
		body := f.Format(out.Response)

		turn := model.SessionTurn{
			SessionID:   req.SessionID,
			PhoneNumber: phone,
			ServiceCode: req.ServiceCode,
			Text:        *req.Text,
			Depth:       out.Depth,
			Status:      out.Response.Status.String(),
			Response:    body,
			LatencyMs:   time.Since(start).Milliseconds(),
			CreatedAt:   start.UTC(),
		}
		if out.LookupErr != nil {
			turn.LookupError = out.LookupErr.Error()
			metrics.LookupFailuresTotal.Inc()
			logger.Log.Warn("ussd lookup failed",
				zap.String("session_id", req.SessionID),
				zap.String("phone", phone),
				zap.Error(out.LookupErr))
		}
		metrics.USSDTurnsTotal.WithLabelValues(out.Response.Status.String()).Inc()

		rec.Record(model.USSDSession{
			SessionID:    req.SessionID,
			PhoneNumber:  phone,
			ServiceCode:  req.ServiceCode,
			NetworkCode:  req.NetworkCode,
			Text:         *req.Text,
			LastResponse: body,
			Status:       out.Response.Status,
		}, turn)

		return c.String(http.StatusOK, body)
	}
}

type startSessionRequest struct {
	PhoneNumber string `json:"phoneNumber" form:"phoneNumber" validate:"required,phone"`
	ServiceCode string `json:"serviceCode" form:"serviceCode"`
}

// startSessionHandler registers a pending session for a phone and tells the
// caller which code to dial. The store write is best-effort.
func startSessionHandler(store session.Store, serviceCode string, writeTimeout time.Duration) echo.HandlerFunc {
	if writeTimeout <= 0 {
		writeTimeout = 2 * time.Second
	}
	return func(c echo.Context) error {
		var req startSessionRequest
		if err := c.Bind(&req); err != nil {
			return response.Fail(c, http.StatusBadRequest, "invalid request body")
		}
		if err := c.Validate(&req); err != nil {
			return response.Fail(c, http.StatusBadRequest, err.Error())
		}

		code := strings.TrimSpace(req.ServiceCode)
		if code == "" {
			code = serviceCode
		}
		phone, _ := util.ParsePhone(req.PhoneNumber)

		now := time.Now().UTC()
		sess := model.USSDSession{
			SessionID:   util.NewID(),
			PhoneNumber: phone,
			ServiceCode: code,
			Status:      model.SessionPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if store != nil {
			ctx, cancel := context.WithTimeout(c.Request().Context(), writeTimeout)
			defer cancel()
			if err := store.Save(ctx, sess); err != nil {
				metrics.SessionWriteFailuresTotal.WithLabelValues("redis").Inc()
				logger.Log.Warn("pending session save failed",
					zap.String("session_id", sess.SessionID), zap.Error(err))
			}
		}

		return response.Ok(c, sess, fmt.Sprintf("Dial %s from %s to continue.", code, phone))
	}
}
