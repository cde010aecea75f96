package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusErr struct{ status int }

func (e *statusErr) Error() string   { return fmt.Sprintf("status %d", e.status) }
func (e *statusErr) StatusCode() int { return e.status }

func fastPolicy(maxRetries int) Policy {
	return Policy{
		MaxRetries:   maxRetries,
		BaseDelay:    time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		JitterFactor: 0,
	}
}

func TestExecute_SucceedsAfterRetryableFailures(t *testing.T) {
	e := NewExecutor()
	calls := 0
	out := Execute(context.Background(), e, fastPolicy(3), func(ctx context.Context) (string, error) {
		calls++
		if calls <= 3 {
			return "", &statusErr{status: 503}
		}
		return "joined", nil
	})

	require.True(t, out.Success)
	assert.Equal(t, "joined", out.Value)
	assert.Equal(t, 4, out.Attempts)
	assert.NoError(t, out.Err)
}

func TestExecute_FirstAttemptSuccess(t *testing.T) {
	e := NewExecutor()
	out := Execute(context.Background(), e, fastPolicy(3), func(ctx context.Context) (int, error) {
		return 42, nil
	})

	require.True(t, out.Success)
	assert.Equal(t, 42, out.Value)
	assert.Equal(t, 1, out.Attempts)
}

func TestExecute_NonRetryableStopsImmediately(t *testing.T) {
	e := NewExecutor()
	observed := 0
	e.observer = func(attempt int, err error, next time.Duration) { observed++ }

	calls := 0
	out := Execute(context.Background(), e, fastPolicy(5), func(ctx context.Context) (string, error) {
		calls++
		return "", &statusErr{status: 404}
	})

	require.False(t, out.Success)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, observed, "no sleep should be scheduled for a terminal error")
	var se *statusErr
	require.ErrorAs(t, out.Err, &se)
}

func TestExecute_ExhaustsRetries(t *testing.T) {
	e := NewExecutor()
	calls := 0
	out := Execute(context.Background(), e, fastPolicy(2), func(ctx context.Context) (string, error) {
		calls++
		return "", &statusErr{status: 500}
	})

	require.False(t, out.Success)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, 3, calls)
}

func TestExecute_UnknownErrorIsTerminal(t *testing.T) {
	e := NewExecutor()
	calls := 0
	out := Execute(context.Background(), e, fastPolicy(5), func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("something unexpected")
	})

	require.False(t, out.Success)
	assert.Equal(t, 1, calls)
}

func TestExecute_ObserverSeesEachRetry(t *testing.T) {
	type observation struct {
		attempt int
		delay   time.Duration
	}
	var seen []observation
	e := NewExecutor(
		WithRand(func() float64 { return 0.5 }), // jitter factor of exactly 1.0
		WithObserver(func(attempt int, err error, next time.Duration) {
			seen = append(seen, observation{attempt, next})
		}),
	)

	policy := Policy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 8 * time.Millisecond, JitterFactor: 0.2}
	out := Execute(context.Background(), e, policy, func(ctx context.Context) (string, error) {
		return "", &statusErr{status: 503}
	})

	require.False(t, out.Success)
	require.Len(t, seen, 3)
	assert.Equal(t, []observation{
		{1, 1 * time.Millisecond},
		{2, 2 * time.Millisecond},
		{3, 4 * time.Millisecond},
	}, seen)
}

func TestExecute_ContextCancelAbortsSleep(t *testing.T) {
	e := NewExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{MaxRetries: 3, BaseDelay: time.Hour, MaxDelay: time.Hour}

	done := make(chan Outcome[string])
	go func() {
		done <- Execute(ctx, e, policy, func(ctx context.Context) (string, error) {
			return "", &statusErr{status: 503}
		})
	}()
	cancel()

	select {
	case out := <-done:
		require.False(t, out.Success)
		assert.ErrorIs(t, out.Err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("execute did not abort on context cancellation")
	}
}

func TestExecuteOrErr(t *testing.T) {
	e := NewExecutor()

	v, err := ExecuteOrErr(context.Background(), e, fastPolicy(0), func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	calls := 0
	_, err = ExecuteOrErr(context.Background(), e, fastPolicy(1), func(ctx context.Context) (string, error) {
		calls++
		return "", &statusErr{status: 502}
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls, "convenience wrapper must not add attempts")
}

func TestNextDelay_Bounds(t *testing.T) {
	policy := Policy{
		MaxRetries:   5,
		BaseDelay:    time.Second,
		MaxDelay:     8 * time.Second,
		JitterFactor: 0.25,
	}

	low := NewExecutor(WithRand(func() float64 { return 0 }))
	high := NewExecutor(WithRand(func() float64 { return 0.999999 }))

	// First retry sits between base*(1-j) and base*(1+j).
	assert.Equal(t, 750*time.Millisecond, low.nextDelay(policy, 0))
	assert.InDelta(t, float64(1250*time.Millisecond), float64(high.nextDelay(policy, 0)), float64(time.Millisecond))

	// Deep attempts cap at max*(1±j).
	assert.Equal(t, 6*time.Second, low.nextDelay(policy, 10))
	maxAllowed := time.Duration(float64(policy.MaxDelay) * (1 + policy.JitterFactor))
	for attempt := 0; attempt < 12; attempt++ {
		d := high.nextDelay(policy, attempt)
		assert.LessOrEqual(t, d, maxAllowed)
	}
}

func TestRetryable_Classification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout status", &statusErr{408}, true},
		{"rate limited", &statusErr{429}, true},
		{"server error", &statusErr{500}, true},
		{"bad gateway", &statusErr{502}, true},
		{"unavailable", &statusErr{503}, true},
		{"gateway timeout", &statusErr{504}, true},
		{"bad request", &statusErr{400}, false},
		{"unauthorized", &statusErr{401}, false},
		{"forbidden", &statusErr{403}, false},
		{"not found", &statusErr{404}, false},
		{"conflict", &statusErr{409}, false},
		{"unprocessable", &statusErr{422}, false},
		{"wrapped status", fmt.Errorf("join: %w", &statusErr{503}), true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"connect unavailable", connect.NewError(connect.CodeUnavailable, errors.New("down")), true},
		{"connect resource exhausted", connect.NewError(connect.CodeResourceExhausted, errors.New("slow down")), true},
		{"connect invalid argument", connect.NewError(connect.CodeInvalidArgument, errors.New("bad slip")), false},
		{"connect not found", connect.NewError(connect.CodeNotFound, errors.New("missing")), false},
		{"net op error", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, true},
		{"unknown", errors.New("mystery"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}
