package sms

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tuitora/tuitora-gateway/internal/model"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []model.SMS
	fail  map[string]error
	delay map[string]time.Duration
	panic map[string]bool
	calls atomic.Int32
}

func (f *fakeSender) Send(ctx context.Context, sms model.SMS) (model.ProviderResult, error) {
	f.calls.Add(1)
	if d := f.delay[sms.Phone]; d > 0 {
		time.Sleep(d)
	}
	if f.panic[sms.Phone] {
		panic("provider exploded")
	}
	if err := f.fail[sms.Phone]; err != nil {
		return model.ProviderResult{}, err
	}
	f.mu.Lock()
	f.sent = append(f.sent, sms)
	f.mu.Unlock()
	return model.ProviderResult{Provider: "fake", MessageID: "id-" + sms.Phone}, nil
}

func (f *fakeSender) texts() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]string{}
	for _, s := range f.sent {
		out[s.Phone] = s.Text
	}
	return out
}

func TestSendBulk_PartialFailureKeepsOrder(t *testing.T) {
	sender := &fakeSender{
		fail:  map[string]error{"+254722000002": errors.New("network unreachable")},
		delay: map[string]time.Duration{"+254722000001": 30 * time.Millisecond},
	}
	svc := NewService(sender)

	results := svc.SendBulk(context.Background(), []model.Recipient{
		{Phone: "+254722000001", Name: "Amina"},
		{Phone: "+254722000002", Name: "Baraka"},
		{Phone: "+254722000003", Name: "Chebet"},
	}, "Hello {name}, school closes Friday.")

	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.True(t, results[2].Success)

	assert.Equal(t, "+254722000001", results[0].Recipient)
	assert.Equal(t, "+254722000002", results[1].Recipient)
	assert.Equal(t, "network unreachable", results[1].Error)
	assert.Empty(t, results[1].MessageID)
	assert.Equal(t, "id-+254722000003", results[2].MessageID)

	texts := sender.texts()
	assert.Equal(t, "Hello Amina, school closes Friday.", texts["+254722000001"])
	assert.Equal(t, "Hello Chebet, school closes Friday.", texts["+254722000003"])
}

func TestSend_InvalidPhoneFailsLocally(t *testing.T) {
	sender := &fakeSender{}
	svc := NewService(sender, WithSenderID("TUITORA"))

	results := svc.Send(context.Background(), []string{"0711000000", "not-a-number"}, "Meeting at 10am")

	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.Equal(t, "+254711000000", results[0].Recipient)
	assert.False(t, results[1].Success)
	assert.Contains(t, results[1].Error, "invalid phone number")
	assert.EqualValues(t, 1, sender.calls.Load())

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "TUITORA", sender.sent[0].From)
}

func TestSend_PanicBecomesFailure(t *testing.T) {
	sender := &fakeSender{panic: map[string]bool{"+254711000001": true}}
	svc := NewService(sender)

	results := svc.Send(context.Background(), []string{"+254711000001", "+254711000002"}, "hi")

	require.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.Equal(t, "internal error", results[0].Error)
	assert.True(t, results[1].Success)
}

func TestSend_EmptyInputs(t *testing.T) {
	svc := NewService(&fakeSender{})

	assert.Empty(t, svc.Send(context.Background(), nil, "hi"))

	results := svc.Send(context.Background(), []string{"+254711000001"}, "   ")
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, "empty message", results[0].Error)
}

func TestSend_RunsConcurrently(t *testing.T) {
	phones := []string{"+254711000001", "+254711000002", "+254711000003", "+254711000004"}
	delay := map[string]time.Duration{}
	for _, p := range phones {
		delay[p] = 100 * time.Millisecond
	}
	svc := NewService(&fakeSender{delay: delay}, WithConcurrency(4))

	start := time.Now()
	results := svc.Send(context.Background(), phones, "hi")
	elapsed := time.Since(start)

	sent, failed := Tally(results)
	assert.Equal(t, 4, sent)
	assert.Equal(t, 0, failed)
	assert.Less(t, elapsed, 350*time.Millisecond)
}

func TestSegments(t *testing.T) {
	assert.Equal(t, 0, Segments(""))
	assert.Equal(t, 1, Segments("hello"))
	assert.Equal(t, 1, Segments(strings.Repeat("a", 160)))
	assert.Equal(t, 2, Segments(strings.Repeat("a", 161)))
	assert.Equal(t, 1, Segments(strings.Repeat("ж", 70)))
	assert.Equal(t, 2, Segments(strings.Repeat("ж", 71)))
	assert.Equal(t, 2, Segments(strings.Repeat("a", 100)+"😀"))
}

func TestPersonalize(t *testing.T) {
	assert.Equal(t, "Hi Wanjiku", Personalize("Hi {name}", " Wanjiku "))
	assert.Equal(t, "No placeholder", Personalize("No placeholder", "X"))
}
