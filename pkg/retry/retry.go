package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

var (
	ErrAttemptsExhausted = errors.New("retry attempts exhausted")
)

// Policy describes an exponential backoff schedule
type Policy struct {
	// MaxRetries after the first attempt (0 = single attempt)
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	// Jitter is the +/- fraction applied to each delay
	Jitter float64
}

// DefaultPolicy is 3 retries at 200ms, 400ms, 800ms (±10%)
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2,
		Jitter:     0.1,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 200 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 5 * time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Jitter > 1 {
		p.Jitter = 1
	}
	return p
}

// Delay returns the wait before retry number n (0-based)
func (p Policy) Delay(n int) time.Duration {
	p = p.normalized()
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(n))
	if p.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * p.Jitter
	}
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if d <= 0 {
		d = float64(p.BaseDelay)
	}
	return time.Duration(d)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent stops the retry loop and surfaces err unchanged
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Outcome describes a finished retry loop
type Outcome struct {
	Attempts int
	// Err is nil on success, the unwrapped cause for a permanent failure,
	// ErrAttemptsExhausted or the context error otherwise
	Err error
	// LastErr is the error returned by the final attempt
	LastErr error
}

// OnRetry is invoked before sleeping between attempts
type OnRetry func(attempt int, err error, wait time.Duration)

// Do runs op until it succeeds, returns a permanent error, the policy is
// exhausted or ctx is done.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error, onRetry OnRetry) Outcome {
	p = p.normalized()
	var out Outcome

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			out.Err = err
			return out
		}

		out.Attempts = attempt + 1
		err := op(ctx)
		if err == nil {
			out.Err, out.LastErr = nil, nil
			return out
		}
		out.LastErr = err

		var perm *permanentError
		if errors.As(err, &perm) {
			out.Err = perm.err
			out.LastErr = perm.err
			return out
		}

		if attempt == p.MaxRetries {
			break
		}

		wait := p.Delay(attempt)
		if onRetry != nil {
			onRetry(attempt+1, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			out.Err = ctx.Err()
			return out
		case <-timer.C:
		}
	}

	out.Err = ErrAttemptsExhausted
	return out
}
