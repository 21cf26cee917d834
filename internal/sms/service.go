// Package sms sends direct and bulk text messages with per-recipient results.
package sms

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tuitora/tuitora-gateway/internal/logger"
	"github.com/tuitora/tuitora-gateway/internal/metrics"
	"github.com/tuitora/tuitora-gateway/internal/model"
	"github.com/tuitora/tuitora-gateway/internal/util"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// NamePlaceholder in a bulk message is replaced with each recipient's name.
const NamePlaceholder = "{name}"

// Sender delivers one SMS upstream. *dispatcher.Dispatcher implements it.
type Sender interface {
	Send(ctx context.Context, sms model.SMS) (model.ProviderResult, error)
}

type Service struct {
	sender      Sender
	from        string
	concurrency int
	timeout     time.Duration
}

type Option func(*Service)

// WithSenderID sets the alphanumeric sender / short code put on every message.
func WithSenderID(from string) Option {
	return func(s *Service) { s.from = from }
}

func WithConcurrency(n int) Option {
	return func(s *Service) { s.concurrency = n }
}

// WithSendTimeout bounds each recipient's provider call.
func WithSendTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

func NewService(sender Sender, opts ...Option) *Service {
	s := &Service{sender: sender, concurrency: 16, timeout: 10 * time.Second}
	for _, o := range opts {
		o(s)
	}
	if s.concurrency < 1 {
		s.concurrency = 1
	}
	return s
}

// Send delivers the same message to every recipient.
func (s *Service) Send(ctx context.Context, recipients []string, message string) []model.SMSResult {
	rs := make([]model.Recipient, len(recipients))
	for i, p := range recipients {
		rs[i] = model.Recipient{Phone: p}
	}
	return s.dispatch(ctx, rs, func(model.Recipient) string { return message })
}

// SendBulk personalizes message per recipient ({name}) and delivers it.
func (s *Service) SendBulk(ctx context.Context, recipients []model.Recipient, message string) []model.SMSResult {
	return s.dispatch(ctx, recipients, func(r model.Recipient) string {
		return Personalize(message, r.Name)
	})
}

// Personalize fills the {name} placeholder.
func Personalize(message, name string) string {
	if !strings.Contains(message, NamePlaceholder) {
		return message
	}
	return strings.ReplaceAll(message, NamePlaceholder, strings.TrimSpace(name))
}

// dispatch fans out one provider call per recipient. results[i] always
// belongs to recipients[i]; nothing a single recipient does can fail the batch.
func (s *Service) dispatch(ctx context.Context, recipients []model.Recipient, text func(model.Recipient) string) []model.SMSResult {
	results := make([]model.SMSResult, len(recipients))

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for i, r := range recipients {
		g.Go(func() error {
			results[i] = s.sendOne(ctx, r, text(r))
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (s *Service) sendOne(ctx context.Context, r model.Recipient, body string) (res model.SMSResult) {
	res = model.SMSResult{Recipient: strings.TrimSpace(r.Phone), Segments: Segments(body)}

	defer func() {
		if p := recover(); p != nil {
			logger.Log.Error("sms send panicked", zap.String("to", res.Recipient), zap.Any("panic", p))
			res.Success, res.MessageID = false, ""
			res.Error = "internal error"
			metrics.SMSResultsTotal.WithLabelValues("failed").Inc()
		}
	}()

	phone, err := util.ParsePhone(r.Phone)
	if err != nil {
		res.Error = fmt.Sprintf("%s: %q", err, r.Phone)
		metrics.SMSResultsTotal.WithLabelValues("invalid").Inc()
		return res
	}
	res.Recipient = phone

	if strings.TrimSpace(body) == "" {
		res.Error = "empty message"
		metrics.SMSResultsTotal.WithLabelValues("invalid").Inc()
		return res
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	pr, err := s.sender.Send(ctx, model.SMS{Phone: phone, Text: body, From: s.from})
	if err != nil {
		logger.Log.Warn("sms send failed", zap.String("to", phone), zap.Error(err))
		res.Error = err.Error()
		metrics.SMSResultsTotal.WithLabelValues("failed").Inc()
		return res
	}

	res.Success = true
	res.MessageID = pr.MessageID
	metrics.SMSResultsTotal.WithLabelValues("sent").Inc()
	return res
}

// Tally counts successes and failures in results.
func Tally(results []model.SMSResult) (sent, failed int) {
	for _, r := range results {
		if r.Success {
			sent++
		} else {
			failed++
		}
	}
	return sent, failed
}
