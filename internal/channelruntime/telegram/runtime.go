package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	runtimeworker "github.com/dchen327/telegram-chatbot/internal/channelruntime/worker"
	"github.com/dchen327/telegram-chatbot/internal/logutil"
	"github.com/dchen327/telegram-chatbot/internal/outputfmt"
	"github.com/dchen327/telegram-chatbot/internal/retryutil"
)

type Dependencies struct {
	API    *API
	Bot    *Bot
	Logger *slog.Logger
}

type updateHandler interface {
	HandleUpdate(ctx context.Context, u telegramUpdate) error
}

// Run serves the bot until ctx ends, either by long polling or behind the
// webhook server depending on opts.Mode.
func Run(ctx context.Context, d Dependencies, opts RunOptions) error {
	if d.API == nil || d.Bot == nil {
		return fmt.Errorf("telegram: missing api or bot")
	}
	logger := logutil.OrDiscard(d.Logger)
	loopOpts := resolveRuntimeLoopOptionsFromRunOptions(opts)
	if loopOpts.Mode != ModePolling && loopOpts.Mode != ModeWebhook {
		return fmt.Errorf("telegram: unknown mode %q (want %s or %s)", loopOpts.Mode, ModePolling, ModeWebhook)
	}

	var me *telegramUser
	err := retryutil.Until(ctx, logger, "telegram_get_me", 2*time.Second, func(ctx context.Context) error {
		var err error
		me, err = d.API.GetMe(ctx)
		return err
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("telegram_stop", "reason", "context_canceled")
			return nil
		}
		return err
	}
	d.Bot.SetUsername(me.Username)

	logger.Info("telegram_start",
		"mode", loopOpts.Mode,
		"bot_username", me.Username,
		"bot_id", me.ID,
		"poll_timeout", loopOpts.PollTimeout.String(),
		"task_timeout", loopOpts.TaskTimeout.String(),
		"max_concurrency", loopOpts.MaxConcurrency,
	)

	if loopOpts.Mode == ModeWebhook {
		return runWebhookServer(ctx, d.Bot, logger, loopOpts)
	}
	return runTelegramLoop(ctx, d.API, d.Bot, logger, loopOpts)
}

// runTelegramLoop long-polls getUpdates and hands each update to a per-user
// lane, so one user's messages are answered in order while different users
// are served concurrently.
func runTelegramLoop(ctx context.Context, api *API, h updateHandler, logger *slog.Logger, opts runtimeLoopOptions) error {
	err := retryutil.Until(ctx, logger, "telegram_delete_webhook", 2*time.Second, func(ctx context.Context) error {
		return api.DeleteWebhook(ctx, opts.DropPendingUpdates)
	})
	if err != nil {
		logger.Info("telegram_stop", "reason", "context_canceled")
		return nil
	}

	workersCtx, stopWorkers := context.WithCancel(ctx)
	pool := runtimeworker.NewPool[int64, telegramUpdate](workersCtx, runtimeworker.PoolOptions[telegramUpdate]{
		MaxConcurrency: opts.MaxConcurrency,
		Handle: func(ctx context.Context, u telegramUpdate) {
			handleUpdate(ctx, h, logger, u, opts.TaskTimeout)
		},
	})
	defer func() {
		stopWorkers()
		pool.Wait()
	}()

	var offset int64
	for {
		updates, nextOffset, err := api.GetUpdates(ctx, offset, opts.PollTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				logger.Info("telegram_stop", "reason", "context_canceled")
				return nil
			}
			if isPollTimeoutError(err) {
				logger.Debug("telegram_get_updates_timeout", "error", outputfmt.FormatErrorForDisplay(err))
			} else {
				logger.Warn("telegram_get_updates_error", "error", outputfmt.FormatErrorForDisplay(err))
			}
			select {
			case <-ctx.Done():
				logger.Info("telegram_stop", "reason", "context_canceled")
				return nil
			case <-time.After(1 * time.Second):
			}
			continue
		}
		offset = nextOffset

		for _, u := range updates {
			if err := pool.Submit(ctx, laneKey(u), u); err != nil {
				if ctx.Err() != nil {
					logger.Info("telegram_stop", "reason", "context_canceled")
					return nil
				}
				logger.Warn("telegram_enqueue_error", "update_id", u.UpdateID, "error", err.Error())
			}
		}
	}
}

func laneKey(u telegramUpdate) int64 {
	if u.Message != nil && u.Message.From != nil {
		return u.Message.From.ID
	}
	return 0
}

func handleUpdate(ctx context.Context, h updateHandler, logger *slog.Logger, u telegramUpdate, timeout time.Duration) {
	taskCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := h.HandleUpdate(taskCtx, u); err != nil {
		logger.Error("telegram_handle_error", "update_id", u.UpdateID, "error", outputfmt.FormatErrorForDisplay(err))
	}
}
