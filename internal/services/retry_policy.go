package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"fieldpay/pkg/utils"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 10 * time.Second
)

// IsRetryable reports whether a failed attempt may be followed by another one.
// Only validation and gateway failures qualify, and never the terminal ones
// that share those kinds.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if !errors.Is(err, utils.ErrValidation) && !errors.Is(err, utils.ErrGateway) {
		return false
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "already paid") || strings.Contains(msg, "maximum retry attempts") {
		return false
	}
	return true
}

type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

// Delay is the wait before attempt n (1-based). The first attempt runs
// immediately; attempt n>1 waits BaseDelay*2^(n-2), capped at MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	d := p.BaseDelay
	for i := 2; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Sleeper blocks for d or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type timerSleeper struct{}

func NewTimerSleeper() Sleeper { return timerSleeper{} }

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
