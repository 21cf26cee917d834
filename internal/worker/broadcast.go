package worker

import (
	"context"
	"sync"
	"time"

	"github.com/tuitora/tuitora-gateway/internal/kafka"
	"github.com/tuitora/tuitora-gateway/internal/logger"
	"github.com/tuitora/tuitora-gateway/internal/metrics"
	"github.com/tuitora/tuitora-gateway/internal/model"
	"go.uber.org/zap"
)

// Fetcher is the Kafka side of the worker; *kafka.Consumer implements it.
type Fetcher interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

// Sender delivers one SMS; *dispatcher.Dispatcher implements it.
type Sender interface {
	Send(ctx context.Context, sms model.SMS) (model.ProviderResult, error)
}

// ResultStore persists send outcomes. The provider id is written per message
// right after the send; statuses are written in batches (message id ->
// provider id for sent ones).
type ResultStore interface {
	SetProviderMessageID(ctx context.Context, id, providerMessageID string) error
	ApplySendResults(ctx context.Context, sent map[string]string, failed []string) error
}

// Broadcast consumes queued broadcast envelopes, sends them through the
// providers and writes statuses back in batches.
type Broadcast struct {
	Consumer Fetcher
	Dispatch Sender
	Results  ResultStore

	Workers     int           // goroutines sending messages
	BatchSize   int           // max buffered results per flush
	BatchWait   time.Duration // max time between flushes
	SendTimeout time.Duration
}

func NewBroadcast(consumer Fetcher, dispatch Sender, results ResultStore) *Broadcast {
	return &Broadcast{
		Consumer:    consumer,
		Dispatch:    dispatch,
		Results:     results,
		Workers:     16,
		BatchSize:   200,
		BatchWait:   300 * time.Millisecond,
		SendTimeout: 10 * time.Second,
	}
}

type result struct {
	id         string
	providerID string
	status     model.MessageStatus // sent | failed
}

// Run blocks until ctx is cancelled, then drains in-flight work and flushes.
func (w *Broadcast) Run(ctx context.Context) error {
	if w.Workers <= 0 {
		w.Workers = 16
	}
	if w.BatchSize <= 0 {
		w.BatchSize = 200
	}
	if w.BatchWait <= 0 {
		w.BatchWait = 300 * time.Millisecond
	}

	results := make(chan result, w.BatchSize*2)
	msgCh := make(chan kafka.Message, w.Workers*2)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		w.runBatchWriter(results)
	}()

	go w.fetchLoop(ctx, msgCh)

	var wg sync.WaitGroup
	for i := 0; i < w.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range msgCh {
				w.processOne(ctx, m, results)
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()
	close(results)
	<-writerDone
	return nil
}

func (w *Broadcast) fetchLoop(ctx context.Context, out chan<- kafka.Message) {
	defer close(out)
	for {
		m, err := w.Consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Log.Warn("broadcast: kafka fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(200 * time.Millisecond):
			}
			continue
		}
		select {
		case out <- m:
		case <-ctx.Done():
			return
		}
	}
}

// processOne always commits: a poison message is skipped, and a failed send is
// recorded as failed rather than retried forever.
func (w *Broadcast) processOne(ctx context.Context, m kafka.Message, out chan<- result) {
	defer func() {
		if err := w.Consumer.Commit(context.WithoutCancel(ctx), m); err != nil {
			logger.Log.Warn("broadcast: commit failed", zap.Error(err))
		}
	}()

	env, err := model.DecodeEnvelope(m.Value)
	if err != nil {
		logger.Log.Warn("broadcast: dropping bad envelope",
			zap.Int64("offset", m.Offset), zap.Error(err))
		return
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.SendTimeout)
	defer cancel()

	res, err := w.Dispatch.Send(sendCtx, env.SMS)
	if err != nil {
		logger.Log.Info("broadcast: send failed",
			zap.String("id", env.ID), zap.Int64("school_id", env.SchoolID), zap.Error(err))
		metrics.BroadcastTotal.WithLabelValues("failed").Inc()
		out <- result{id: env.ID, status: model.StatusFailed}
		return
	}

	metrics.BroadcastTotal.WithLabelValues("sent").Inc()
	if res.MessageID != "" {
		if err := w.Results.SetProviderMessageID(sendCtx, env.ID, res.MessageID); err != nil {
			// the batch flush writes it again
			logger.Log.Warn("broadcast: provider id write failed", zap.String("id", env.ID), zap.Error(err))
		}
	}
	out <- result{id: env.ID, providerID: res.MessageID, status: model.StatusSent}
}

// runBatchWriter does size/time based flushes until in is closed. A failed
// flush keeps its items for the next attempt.
func (w *Broadcast) runBatchWriter(in <-chan result) {
	tick := time.NewTicker(w.BatchWait)
	defer tick.Stop()

	sent := make(map[string]string)
	var failed []string

	flush := func() {
		if len(sent) == 0 && len(failed) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := w.Results.ApplySendResults(ctx, sent, failed); err != nil {
			logger.Log.Error("broadcast: flush failed",
				zap.Int("sent", len(sent)), zap.Int("failed", len(failed)), zap.Error(err))
			return
		}
		logger.Log.Debug("broadcast: flushed", zap.Int("sent", len(sent)), zap.Int("failed", len(failed)))

		sent = make(map[string]string)
		failed = failed[:0]
	}

	for {
		select {
		case r, ok := <-in:
			if !ok {
				flush()
				return
			}
			if r.status == model.StatusSent {
				sent[r.id] = r.providerID
			} else {
				failed = append(failed, r.id)
			}
			if len(sent)+len(failed) >= w.BatchSize {
				flush()
			}
		case <-tick.C:
			flush()
		}
	}
}
