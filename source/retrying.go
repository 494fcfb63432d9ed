package source

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultRetryInterval = 50 * time.Millisecond
	DefaultMaxRetries    = 5
)

// Retrying wraps an EventSource so that arming a cursor is retried with
// exponential backoff while the underlying source reports temporary failures.
// Permanent failures are returned immediately.
type Retrying struct {
	src     EventSource
	backoff func() backoff.BackOff
}

// NewRetrying retries up to maxRetries times, starting at interval.
// Zero values select the package defaults.
func NewRetrying(src EventSource, interval time.Duration, maxRetries uint64) *Retrying {
	if interval <= 0 {
		interval = DefaultRetryInterval
	}
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Retrying{
		src: src,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = interval
			b.MaxElapsedTime = 0
			return backoff.WithMaxRetries(b, maxRetries)
		},
	}
}

func (r *Retrying) ArmCursor(ctx context.Context, window Window) (c Cursor, err error) {
	try := 1
	op := func() error {
		log.WithFields(
			log.Fields{
				"window": window,
				"try":    try,
			}).Debug("Arming cursor")
		try++
		c, err = r.src.ArmCursor(ctx, window)
		if err != nil && !IsTemporary(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	if rerr := backoff.Retry(op, backoff.WithContext(r.backoff(), ctx)); rerr != nil {
		if err == nil {
			err = rerr
		}
		return nil, err
	}
	return c, nil
}
