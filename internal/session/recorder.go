package session

import (
	"context"
	"sync"
	"time"

	"github.com/tuitora/tuitora-gateway/internal/logger"
	"github.com/tuitora/tuitora-gateway/internal/metrics"
	"github.com/tuitora/tuitora-gateway/internal/model"
	"go.uber.org/zap"
)

// Auditor appends one row per USSD turn to the audit log.
type Auditor interface {
	InsertSessionTurn(ctx context.Context, t model.SessionTurn) error
}

// Recorder writes session state and audit rows off the request path. Writes
// never block the caller and their failures are only logged and counted.
type Recorder struct {
	store   Store
	audit   Auditor
	timeout time.Duration
	now     func() time.Time

	wg sync.WaitGroup
}

// NewRecorder accepts nil store or auditor; the missing sink is skipped.
func NewRecorder(store Store, audit Auditor, timeout time.Duration) *Recorder {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Recorder{store: store, audit: audit, timeout: timeout, now: time.Now}
}

// Record saves the session and appends turn to the audit log asynchronously.
func (r *Recorder) Record(sess model.USSDSession, turn model.SessionTurn) {
	if r == nil || (r.store == nil && r.audit == nil) {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if r.store != nil {
			r.saveSession(ctx, sess)
		}
		if r.audit != nil {
			if err := r.audit.InsertSessionTurn(ctx, turn); err != nil {
				metrics.SessionWriteFailuresTotal.WithLabelValues("clickhouse").Inc()
				logger.Log.Warn("session audit write failed",
					zap.String("session_id", turn.SessionID), zap.Error(err))
			}
		}
	}()
}

func (r *Recorder) saveSession(ctx context.Context, sess model.USSDSession) {
	now := r.now()
	sess.UpdatedAt = now
	sess.CreatedAt = now
	sess.Turns = 1

	prev, err := r.store.Get(ctx, sess.SessionID)
	if err != nil {
		logger.Log.Debug("session read failed", zap.String("session_id", sess.SessionID), zap.Error(err))
	}
	if prev != nil {
		sess.CreatedAt = prev.CreatedAt
		sess.Turns = prev.Turns + 1
		// a provider retry repeats the previous text
		if prev.Turns > 0 && prev.Text == sess.Text {
			sess.Turns = prev.Turns
		}
		if sess.ServiceCode == "" {
			sess.ServiceCode = prev.ServiceCode
		}
	}

	if err := r.store.Save(ctx, sess); err != nil {
		metrics.SessionWriteFailuresTotal.WithLabelValues("redis").Inc()
		logger.Log.Warn("session save failed", zap.String("session_id", sess.SessionID), zap.Error(err))
	}
}

// Wait blocks until in-flight writes finish; used on shutdown and in tests.
func (r *Recorder) Wait() {
	if r == nil {
		return
	}
	r.wg.Wait()
}
