package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Policy controls backoff behavior for a single Execute invocation.
type Policy struct {
	MaxRetries   int           // additional attempts after the first; total calls = MaxRetries+1
	BaseDelay    time.Duration // delay before the first retry
	MaxDelay     time.Duration // cap on the pre-jitter delay
	JitterFactor float64       // symmetric jitter in [0,1]; delay scaled by (1 ± JitterFactor)
}

// DefaultPolicy matches the join flow: 4 total attempts, 1s base, 8s cap.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		BaseDelay:    time.Second,
		MaxDelay:     8 * time.Second,
		JitterFactor: 0.2,
	}
}

// Outcome is the terminal result of an Execute invocation. Exactly one of
// Value/Err is meaningful, consistent with Success.
type Outcome[T any] struct {
	Success  bool
	Value    T
	Err      error
	Attempts int
}

// Observer is invoked before each backoff sleep with the attempt number that
// just failed, its error, and the upcoming delay. Diagnostics only; it must
// not affect control flow.
type Observer func(attempt int, err error, nextDelay time.Duration)

// Executor drives fallible operations with exponential backoff and jitter.
// Zero-config construction via NewExecutor uses a real clock and math/rand.
type Executor struct {
	clock    clockwork.Clock
	randFn   func() float64 // uniform [0,1)
	observer Observer
}

type Option func(*Executor)

// WithClock injects the clock used for backoff sleeps. Tests pass a
// clockwork fake clock.
func WithClock(c clockwork.Clock) Option {
	return func(e *Executor) { e.clock = c }
}

// WithObserver registers a diagnostics callback fired before each sleep.
func WithObserver(fn Observer) Option {
	return func(e *Executor) { e.observer = fn }
}

// WithRand overrides the jitter source. Tests pin it for determinism.
func WithRand(fn func() float64) Option {
	return func(e *Executor) { e.randFn = fn }
}

func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		clock:  clockwork.NewRealClock(),
		randFn: rand.Float64,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute calls op up to policy.MaxRetries+1 times, sleeping with jittered
// exponential backoff between retryable failures. It returns immediately on
// the first success, on a terminal (non-retryable) error, or once retries are
// exhausted. Context cancellation aborts a pending sleep and surfaces ctx.Err.
func Execute[T any](ctx context.Context, e *Executor, policy Policy, op func(context.Context) (T, error)) Outcome[T] {
	var out Outcome[T]
	for attempt := 0; ; attempt++ {
		value, err := op(ctx)
		out.Attempts = attempt + 1
		if err == nil {
			out.Success = true
			out.Value = value
			out.Err = nil
			return out
		}
		out.Err = err

		if !Retryable(err) || attempt >= policy.MaxRetries {
			return out
		}

		delay := e.nextDelay(policy, attempt)
		if e.observer != nil {
			e.observer(attempt+1, err, delay)
		}
		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Dur("next_delay", delay).
			Msg("operation failed, retrying")

		select {
		case <-ctx.Done():
			out.Err = ctx.Err()
			return out
		case <-e.clock.After(delay):
		}
	}
}

// ExecuteOrErr wraps Execute for callers preferring error-return style. It
// performs no attempts beyond Execute's.
func ExecuteOrErr[T any](ctx context.Context, e *Executor, policy Policy, op func(context.Context) (T, error)) (T, error) {
	out := Execute(ctx, e, policy, op)
	if !out.Success {
		var zero T
		return zero, out.Err
	}
	return out.Value, nil
}

// nextDelay computes min(maxDelay, base*2^attempt) scaled by symmetric
// jitter, rounded to the nearest millisecond.
func (e *Executor) nextDelay(policy Policy, attempt int) time.Duration {
	delay := policy.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= policy.MaxDelay {
			break
		}
	}
	if delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}
	if policy.JitterFactor > 0 {
		jitter := 1 + (2*e.randFn()-1)*policy.JitterFactor
		delay = time.Duration(float64(delay) * jitter)
	}
	return delay.Round(time.Millisecond)
}
