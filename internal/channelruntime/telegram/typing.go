package telegram

import (
	"context"
	"strings"
	"time"
)

const defaultTypingInterval = 4 * time.Second

type chatActionSender interface {
	SendChatAction(ctx context.Context, chatID int64, action string) error
}

// startTypingTicker sends action right away and then every interval until
// the returned stop func is called or ctx ends.
func startTypingTicker(ctx context.Context, api chatActionSender, chatID int64, action string, interval time.Duration) func() {
	if ctx == nil {
		ctx = context.Background()
	}
	if api == nil || chatID == 0 {
		return func() {}
	}
	if interval <= 0 {
		interval = defaultTypingInterval
	}
	action = strings.TrimSpace(action)
	if action == "" {
		action = "typing"
	}

	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		_ = api.SendChatAction(ctx, chatID, action)
		for {
			select {
			case <-ticker.C:
				_ = api.SendChatAction(ctx, chatID, action)
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		select {
		case <-done:
		default:
			close(done)
		}
		ticker.Stop()
		<-stopped
	}
}
