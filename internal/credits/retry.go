package credits

import (
	"context"
	"errors"
	"time"

	"github.com/fabzclean/fabzclean-backend/internal/customers"
)

const retryBackoff = 10 * time.Millisecond

// RetryOnConflict reruns fn, at most attempts times, while it fails because a
// customer balance write lost its compare-and-swap. onRetry, when set, is
// called before each new attempt.
func RetryOnConflict(ctx context.Context, attempts int, onRetry func(attempt int), fn func() error) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, customers.ErrVersionConflict) {
			return err
		}
		if attempt == attempts {
			break
		}
		if onRetry != nil {
			onRetry(attempt)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}
	return err
}
