package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

// DefaultGrace is how long past its deadline an attempt may run before the
// executor stops waiting for it.
const DefaultGrace = time.Second

// Executor wraps a Prober with the target's timeout and retry policy and
// produces one finalized outcome per call. It touches no storage.
type Executor struct {
	Prober  Prober
	Backoff time.Duration
	Grace   time.Duration
}

func NewExecutor(p Prober, backoff time.Duration) *Executor {
	return &Executor{Prober: p, Backoff: backoff, Grace: DefaultGrace}
}

// Run makes one attempt plus up to t.Retries more after failures. The first
// success is returned as is; when every attempt fails the last failure wins.
func (e *Executor) Run(ctx context.Context, t domain.Target) domain.CheckOutcome {
	attempts := t.Retries + 1
	if attempts < 1 {
		attempts = 1
	}
	var last domain.CheckOutcome
	for i := 0; i < attempts; i++ {
		last = e.attempt(ctx, t)
		last.Attempts = i + 1
		if last.Success || ctx.Err() != nil {
			return last
		}
		if i < attempts-1 && e.Backoff > 0 {
			select {
			case <-ctx.Done():
				return last
			case <-time.After(e.Backoff):
			}
		}
	}
	return last
}

func (e *Executor) attempt(ctx context.Context, t domain.Target) domain.CheckOutcome {
	actx, cancel := ctx, context.CancelFunc(func() {})
	if t.Timeout > 0 {
		actx, cancel = context.WithTimeout(ctx, t.Timeout)
	}
	defer cancel()

	start := time.Now()
	done := make(chan domain.CheckOutcome, 1)
	go func() { done <- e.Prober.Check(actx, t) }()

	select {
	case out := <-done:
		return out
	case <-actx.Done():
	}

	// the probe should notice cancellation on its own; give it a moment
	grace := time.NewTimer(e.Grace)
	defer grace.Stop()
	select {
	case out := <-done:
		return out
	case <-grace.C:
		return failed(t, start, fmt.Sprintf("timeout: probe did not return within %s", t.Timeout))
	}
}
