package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/tuitora/tuitora-gateway/internal/model"
)

var (
	ErrNoHealthy = errors.New("no healthy providers")
	ErrNoAcquire = errors.New("provider not acquired")
)

// Dispatcher spreads sends over healthy providers round-robin and retries a
// failed send on the next one.
type Dispatcher struct {
	providers         []Provider
	roundRobinCounter atomic.Uint64
	maxAttempts       int
}

func NewDispatcher(provs []Provider, maxAttempts int) *Dispatcher {
	if maxAttempts < 1 {
		maxAttempts = 2
	}

	return &Dispatcher{providers: provs, maxAttempts: maxAttempts}
}

func (d *Dispatcher) selectProvider() (Provider, error) {
	healthy := make([]Provider, 0, len(d.providers))
	for _, p := range d.providers {
		if p.Ready() {
			healthy = append(healthy, p)
		}
	}

	if len(healthy) == 0 {
		return nil, ErrNoHealthy
	}

	x := d.roundRobinCounter.Add(1)
	idx := int((x - 1) % uint64(len(healthy)))

	return healthy[idx], nil
}

func (d *Dispatcher) tryOnce(ctx context.Context, sms model.SMS) (model.ProviderResult, error) {
	p, err := d.selectProvider()
	if err != nil {
		return model.ProviderResult{}, err
	}

	if !p.Acquire() {
		return model.ProviderResult{}, ErrNoAcquire
	}

	return p.Send(ctx, sms)
}

// Send returns the last error once every attempt has failed. A cancelled
// context stops retrying.
func (d *Dispatcher) Send(ctx context.Context, sms model.SMS) (model.ProviderResult, error) {
	var last error
	for i := 0; i < d.maxAttempts; i++ {
		res, err := d.tryOnce(ctx, sms)
		if err == nil {
			return res, nil
		}
		last = err
		if ctx.Err() != nil {
			break
		}
	}

	if last == nil {
		last = fmt.Errorf("send failed")
	}

	return model.ProviderResult{}, last
}
