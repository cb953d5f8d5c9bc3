package airtable

import (
	"context"
	"errors"
	"time"
)

// permanent marks an error that must not be retried.
type permanent struct {
	err error
}

func (p *permanent) Error() string { return p.err.Error() }
func (p *permanent) Unwrap() error { return p.err }

func stop(err error) error {
	return &permanent{err: err}
}

// retry runs fn up to attempts times with exponential backoff capped at
// maxDelay. Errors wrapped by stop end the loop immediately.
func retry(ctx context.Context, attempts int, initial, maxDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	d := initial
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			t := time.NewTimer(d)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			}
			d = min(d*2, maxDelay)
		}
		err = fn()
		if err == nil {
			return nil
		}
		var p *permanent
		if errors.As(err, &p) {
			return p.err
		}
	}
	return err
}
