package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tuitora/tuitora-gateway/internal/config"
	"github.com/tuitora/tuitora-gateway/internal/logger"
	"github.com/tuitora/tuitora-gateway/internal/model"
	"github.com/tuitora/tuitora-gateway/internal/util"
	"go.uber.org/zap"
)

type Provider interface {
	Name() string
	Ready() bool
	Acquire() bool
	Send(ctx context.Context, sms model.SMS) (model.ProviderResult, error)
}

// HTTPProvider posts a form-encoded send request and reads back a per-recipient
// JSON acknowledgement:
//
//	{"SMSMessageData":{"Message":"Sent to 1/1","Recipients":[{"number":"+2547..","status":"Success","statusCode":101,"messageId":"..","cost":"KES 0.80"}]}}
type HTTPProvider struct {
	name     string
	sendPath string
	username string
	client   *resty.Client
	br       *MicroBreaker
}

type sendResponse struct {
	SMSMessageData struct {
		Message    string `json:"Message"`
		Recipients []struct {
			Number     string `json:"number"`
			Status     string `json:"status"`
			StatusCode int    `json:"statusCode"`
			MessageID  string `json:"messageId"`
			Cost       string `json:"cost"`
		} `json:"Recipients"`
	} `json:"SMSMessageData"`
}

func NewHTTPProvider(name, baseURL, sendPath, username, apiKey string, timeoutMs, failThreshold, openForMs int) *HTTPProvider {
	if timeoutMs <= 0 {
		timeoutMs = 3000
	}

	if failThreshold <= 0 {
		failThreshold = 3
	}

	if openForMs <= 0 {
		openForMs = 15000
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(time.Duration(timeoutMs)*time.Millisecond).
		SetHeader("Accept", "application/json").
		SetHeader("apiKey", apiKey)

	return &HTTPProvider{
		name:     name,
		sendPath: sendPath,
		username: username,
		client:   client,
		br:       NewMicroBreaker(failThreshold, time.Duration(openForMs)*time.Millisecond),
	}
}

func (p *HTTPProvider) Name() string  { return p.name }
func (p *HTTPProvider) Ready() bool   { return p.br.Ready() }
func (p *HTTPProvider) Acquire() bool { return p.br.TryAcquire() }

func (p *HTTPProvider) Send(ctx context.Context, sms model.SMS) (model.ProviderResult, error) {
	res, err := p.post(ctx, sms)
	if err != nil {
		p.br.OnFailure()
		return model.ProviderResult{}, err
	}

	p.br.OnSuccess()

	return res, nil
}

func (p *HTTPProvider) post(ctx context.Context, sms model.SMS) (model.ProviderResult, error) {
	form := map[string]string{
		"username": p.username,
		"to":       sms.Phone,
		"message":  sms.Text,
	}
	if sms.From != "" {
		form["from"] = sms.From
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetFormData(form).
		Post(p.sendPath)
	if err != nil {
		return model.ProviderResult{}, fmt.Errorf("provider=%s: %w", p.name, err)
	}

	if resp.StatusCode()/100 != 2 {
		return model.ProviderResult{}, fmt.Errorf("provider=%s status=%d", p.name, resp.StatusCode())
	}

	var body sendResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return model.ProviderResult{}, fmt.Errorf("provider=%s: decode response: %w", p.name, err)
	}

	recipients := body.SMSMessageData.Recipients
	if len(recipients) == 0 {
		msg := body.SMSMessageData.Message
		if msg == "" {
			msg = "no recipients accepted"
		}
		return model.ProviderResult{}, fmt.Errorf("provider=%s: %s", p.name, msg)
	}

	r := recipients[0]
	if !accepted(r.StatusCode, r.Status) {
		return model.ProviderResult{}, fmt.Errorf("provider=%s rejected %s: %s (%d)", p.name, sms.Phone, r.Status, r.StatusCode)
	}

	return model.ProviderResult{
		Provider:  p.name,
		MessageID: r.MessageID,
		Status:    r.Status,
		Cost:      r.Cost,
	}, nil
}

// 100 processed, 101 sent, 102 queued.
func accepted(code int, status string) bool {
	if code >= 100 && code <= 102 {
		return true
	}
	return code == 0 && (status == "Success" || status == "Sent" || status == "Queued")
}

// LogProvider writes messages to the log instead of a carrier. Used for
// local development and demos.
type LogProvider struct {
	name string
}

func NewLogProvider(name string) *LogProvider {
	return &LogProvider{name: name}
}

func (p *LogProvider) Name() string  { return p.name }
func (p *LogProvider) Ready() bool   { return true }
func (p *LogProvider) Acquire() bool { return true }

func (p *LogProvider) Send(ctx context.Context, sms model.SMS) (model.ProviderResult, error) {
	if err := ctx.Err(); err != nil {
		return model.ProviderResult{}, err
	}
	id := util.NewID()
	logger.Log.Info("sms (log provider)",
		zap.String("provider", p.name),
		zap.String("message_id", id),
		zap.String("to", sms.Phone),
		zap.String("from", sms.From),
		zap.String("text", sms.Text),
	)
	return model.ProviderResult{Provider: p.name, MessageID: id, Status: "Logged"}, nil
}

// FromConfig builds the enabled providers in config order.
func FromConfig(cfgs []config.ProviderConfig) ([]Provider, error) {
	var provs []Provider
	for i, pc := range cfgs {
		if !pc.Enabled {
			continue
		}
		name := pc.Name
		if name == "" {
			name = "provider-" + strconv.Itoa(i)
		}
		switch pc.Kind {
		case "", "http":
			if pc.BaseURL == "" {
				return nil, fmt.Errorf("provider %s: base_url is required", name)
			}
			provs = append(provs, NewHTTPProvider(
				name, pc.BaseURL, pc.SendPath, pc.Username, pc.APIKey,
				pc.TimeoutMs, pc.Breaker.FailThreshold, pc.Breaker.OpenForMs,
			))
		case "log":
			provs = append(provs, NewLogProvider(name))
		default:
			return nil, fmt.Errorf("provider %s: unknown kind %q", name, pc.Kind)
		}
	}
	if len(provs) == 0 {
		return nil, fmt.Errorf("no enabled SMS providers configured")
	}
	return provs, nil
}
