package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tuitora/tuitora-gateway/internal/kafka"
	"github.com/tuitora/tuitora-gateway/internal/model"
)

type chanFetcher struct {
	ch        chan kafka.Message
	mu        sync.Mutex
	committed int
}

func (f *chanFetcher) Fetch(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-f.ch:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (f *chanFetcher) Commit(context.Context, kafka.Message) error {
	f.mu.Lock()
	f.committed++
	f.mu.Unlock()
	return nil
}

func (f *chanFetcher) commits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.committed
}

type phoneSender struct{ failFor string }

func (s phoneSender) Send(_ context.Context, sms model.SMS) (model.ProviderResult, error) {
	if sms.Phone == s.failFor {
		return model.ProviderResult{}, errors.New("rejected")
	}
	return model.ProviderResult{MessageID: "p-" + sms.Phone}, nil
}

type memResults struct {
	mu          sync.Mutex
	providerIDs map[string]string
	flushes     int
	sent        map[string]string
	failed      []string
}

func (m *memResults) SetProviderMessageID(_ context.Context, id, providerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.providerIDs == nil {
		m.providerIDs = map[string]string{}
	}
	m.providerIDs[id] = providerID
	return nil
}

func (m *memResults) snapshot() (providerIDs map[string]string, flushes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]string{}
	for k, v := range m.providerIDs {
		out[k] = v
	}
	return out, m.flushes
}

func (m *memResults) ApplySendResults(_ context.Context, sent map[string]string, failed []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	if m.sent == nil {
		m.sent = map[string]string{}
	}
	for k, v := range sent {
		m.sent[k] = v
	}
	m.failed = append(m.failed, failed...)
	return nil
}

func envelope(t *testing.T, id, phone string) kafka.Message {
	t.Helper()
	b, err := json.Marshal(model.Envelope{ID: id, SchoolID: 1, SMS: model.SMS{Phone: phone, Text: "hi"}})
	require.NoError(t, err)
	return kafka.Message{Value: b}
}

func TestBroadcast_SendsAndFlushes(t *testing.T) {
	f := &chanFetcher{ch: make(chan kafka.Message, 4)}
	f.ch <- envelope(t, "m1", "+254711000001")
	f.ch <- envelope(t, "m2", "+254711000002")
	f.ch <- kafka.Message{Value: []byte("{not json")}

	store := &memResults{}
	w := NewBroadcast(f, phoneSender{failFor: "+254711000002"}, store)
	w.Workers = 2
	w.BatchWait = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return f.commits() == 3 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, map[string]string{"m1": "p-+254711000001"}, store.sent)
	assert.Equal(t, []string{"m2"}, store.failed)
}

func TestBroadcast_ProviderIDWrittenBeforeFlush(t *testing.T) {
	f := &chanFetcher{ch: make(chan kafka.Message, 1)}
	f.ch <- envelope(t, "m1", "+254711000001")

	store := &memResults{}
	w := NewBroadcast(f, phoneSender{}, store)
	w.Workers = 1
	w.BatchWait = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return f.commits() == 1 }, 2*time.Second, 10*time.Millisecond)

	ids, flushes := store.snapshot()
	assert.Equal(t, map[string]string{"m1": "p-+254711000001"}, ids)
	assert.Zero(t, flushes)

	cancel()
	require.NoError(t, <-done)
	_, flushes = store.snapshot()
	assert.Equal(t, 1, flushes)
}
