package retry

import (
	"context"
	"errors"
	"fmt"

	"github.com/Borislavv/segment-registry/pkg/config"
	"github.com/cenkalti/backoff/v4"
)

var ErrAttemptsExhausted = errors.New("exhausted all retry attempts")

// Policy attempts an operation until it succeeds, the policy gives up,
// the context is done or the operation returns a Permanent error.
type Policy interface {
	Attempt(ctx context.Context, op func() error) error
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// IsPermanent reports whether err was marked by Permanent.
func IsPermanent(err error) bool {
	var perm *backoff.PermanentError
	return errors.As(err, &perm)
}

// Exponential waits exponentially longer between attempts, up to a fixed number of them.
type Exponential struct {
	cfg config.Retry
}

func NewExponential(cfg config.Retry) *Exponential {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	return &Exponential{cfg: cfg}
}

func (p *Exponential) Attempts() int { return p.cfg.Attempts }

func (p *Exponential) Attempt(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	if p.cfg.InitialInterval > 0 {
		b.InitialInterval = p.cfg.InitialInterval
	}
	if p.cfg.MaxInterval > 0 {
		b.MaxInterval = p.cfg.MaxInterval
	}
	if p.cfg.Multiplier > 1 {
		b.Multiplier = p.cfg.Multiplier
	}
	b.MaxElapsedTime = 0
	b.Reset()

	var (
		attempts  int
		permanent bool
	)
	err := backoff.Retry(func() error {
		attempts++
		err := op()
		if IsPermanent(err) {
			permanent = true
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.cfg.Attempts-1)), ctx))

	switch {
	case err == nil:
		return nil
	case permanent:
		return err
	case ctx.Err() != nil:
		return fmt.Errorf("retry interrupted after %d attempts: %w", attempts, errors.Join(ctx.Err(), err))
	default:
		return fmt.Errorf("%w (%d): %w", ErrAttemptsExhausted, attempts, err)
	}
}

// NoRetry runs the operation exactly once.
type NoRetry struct{}

func (NoRetry) Attempt(ctx context.Context, op func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := op(); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}
		return err
	}
	return nil
}
