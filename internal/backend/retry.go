package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Spectating101/cite-agent-sub002/internal/logging"
)

// DefaultSchedule is the standard backoff schedule for retryable failures.
var DefaultSchedule = []time.Duration{5 * time.Second, 15 * time.Second, 30 * time.Second}

// RetryState tracks one outbound call's retry progress. It is scoped to a
// single Call invocation and never persisted.
type RetryState struct {
	Attempts    int
	NextAllowed time.Time
	Schedule    []time.Duration
}

// Retrier wraps backend operations with bounded backoff. An operation is
// attempted once, then once more per schedule entry, waiting that entry's
// delay first. Non-retryable failures short-circuit.
type Retrier struct {
	Schedule []time.Duration

	// Sleep can be replaced in tests. nil means a ctx-aware time.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error

	log *zap.Logger
}

// NewRetrier creates a retrier with the given schedule (DefaultSchedule
// when empty).
func NewRetrier(schedule []time.Duration) *Retrier {
	if len(schedule) == 0 {
		schedule = DefaultSchedule
	}
	return &Retrier{
		Schedule: schedule,
		log:      logging.Backend().Named("retry"),
	}
}

// Call executes op, retrying retryable failures per the schedule.
// Exhausting the schedule surfaces ErrBackendUnavailable wrapping the
// last error.
func (r *Retrier) Call(ctx context.Context, op func(ctx context.Context) error) error {
	state := RetryState{Schedule: r.Schedule}
	var lastErr error

	for state.Attempts <= len(r.Schedule) {
		if state.Attempts > 0 {
			delay := r.Schedule[state.Attempts-1]
			state.NextAllowed = time.Now().Add(delay)
			r.log.Debug("waiting before retry",
				zap.Int("attempt", state.Attempts),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			if err := r.sleep(ctx, delay); err != nil {
				return err
			}
		}

		state.Attempts++
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !Retryable(err) {
			return err
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrBackendUnavailable, state.Attempts, lastErr)
}

func (r *Retrier) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ProbeGate bounds the cost of expensive health/capability probes against
// a degraded backend. After a probe fails, the failure is cached and the
// probe is not reissued until the recheck interval elapses.
type ProbeGate struct {
	Interval time.Duration

	mu          sync.Mutex
	lastFailure time.Time
	lastErr     error
}

// NewProbeGate creates a gate with the given recheck interval.
func NewProbeGate(interval time.Duration) *ProbeGate {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ProbeGate{Interval: interval}
}

// Check runs probe unless a recent failure is still cached, in which case
// the cached error is returned without reissuing the probe.
func (g *ProbeGate) Check(ctx context.Context, probe func(ctx context.Context) error) error {
	g.mu.Lock()
	if g.lastErr != nil && time.Since(g.lastFailure) < g.Interval {
		err := g.lastErr
		g.mu.Unlock()
		return err
	}
	g.mu.Unlock()

	err := probe(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		g.lastFailure = time.Now()
		g.lastErr = fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		return g.lastErr
	}
	g.lastErr = nil
	return nil
}
