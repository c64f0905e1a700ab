package store

import (
	"context"
	"errors"
	"time"

	"github.com/park285/xo-kenar-bot/internal/util"
)

const (
	DefaultRetryAttempts = 5
	retryBaseDelay       = 10 * time.Millisecond
)

// Retry runs fn until it returns something other than ErrConflict or attempts
// are exhausted. The last ErrConflict is returned when every attempt conflicts.
func Retry(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if !errors.Is(err, ErrConflict) {
			return err
		}
		if attempt == attempts {
			break
		}
		if sleepErr := util.SleepContext(ctx, util.Backoff(retryBaseDelay, attempt)); sleepErr != nil {
			return err
		}
	}
	return err
}
