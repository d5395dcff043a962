package retryutil

import (
	"context"
	"log/slog"
	"time"

	"github.com/dchen327/telegram-chatbot/internal/outputfmt"
)

const defaultRetryDelay = 2 * time.Second

// Until calls fn until it succeeds or ctx ends, sleeping delay between
// attempts. It returns ctx.Err() when cancelled.
func Until(ctx context.Context, logger *slog.Logger, name string, delay time.Duration, fn func(ctx context.Context) error) error {
	if fn == nil {
		return nil
	}
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			if logger != nil && attempt > 1 {
				logger.Info(name+"_retry_ok", "attempts", attempt)
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if logger != nil {
			logger.Warn(name+"_retry_scheduled", "attempt", attempt, "delay", delay.String(), "error", outputfmt.FormatErrorForDisplay(err))
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
