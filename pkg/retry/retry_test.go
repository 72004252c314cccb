package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(retries int) Policy {
	return Policy{MaxRetries: retries, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func TestDo(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name         string
		retries      int
		failures     int
		permanent    bool
		wantErr      error
		wantAttempts int
	}{
		{name: "first attempt succeeds", retries: 3, failures: 0, wantAttempts: 1},
		{name: "succeeds after retries", retries: 3, failures: 2, wantAttempts: 3},
		{name: "exhausted", retries: 2, failures: 10, wantErr: ErrAttemptsExhausted, wantAttempts: 3},
		{name: "permanent stops immediately", retries: 5, failures: 10, permanent: true, wantErr: boom, wantAttempts: 1},
		{name: "no retries", retries: 0, failures: 10, wantErr: ErrAttemptsExhausted, wantAttempts: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			out := Do(context.Background(), fastPolicy(tt.retries), func(ctx context.Context) error {
				calls++
				if calls <= tt.failures {
					if tt.permanent {
						return Permanent(boom)
					}
					return boom
				}
				return nil
			}, nil)

			assert.Equal(t, tt.wantAttempts, out.Attempts)
			assert.Equal(t, tt.wantAttempts, calls)
			if tt.wantErr == nil {
				assert.NoError(t, out.Err)
			} else {
				assert.ErrorIs(t, out.Err, tt.wantErr)
			}
		})
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	out := Do(ctx, Policy{MaxRetries: 10, BaseDelay: 50 * time.Millisecond}, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	}, nil)

	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_OnRetryCallback(t *testing.T) {
	var seen []int
	Do(context.Background(), fastPolicy(2), func(ctx context.Context) error {
		return errors.New("nope")
	}, func(attempt int, err error, wait time.Duration) {
		seen = append(seen, attempt)
		assert.Greater(t, wait, time.Duration(0))
	})

	assert.Equal(t, []int{1, 2}, seen)
}

func TestPolicy_Delay(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	assert.Equal(t, 100*time.Millisecond, p.Delay(0))
	assert.Equal(t, 200*time.Millisecond, p.Delay(1))
	assert.Equal(t, 400*time.Millisecond, p.Delay(2))
	assert.Equal(t, time.Second, p.Delay(10))
}

func TestPolicy_DelayWithJitter(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, Jitter: 0.1}

	for i := 0; i < 50; i++ {
		d := p.Delay(0)
		require.GreaterOrEqual(t, d, 90*time.Millisecond)
		require.LessOrEqual(t, d, 110*time.Millisecond)
	}
}

func TestPermanent(t *testing.T) {
	assert.Nil(t, Permanent(nil))

	cause := errors.New("bad payload")
	err := Permanent(cause)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsPermanent(cause))
}
