package telegramcmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dchen327/telegram-chatbot/internal/allowlist"
	"github.com/dchen327/telegram-chatbot/internal/channelruntime/telegram"
	"github.com/dchen327/telegram-chatbot/internal/configutil"
	"github.com/dchen327/telegram-chatbot/internal/relay"
	"github.com/dchen327/telegram-chatbot/internal/texts"
)

type Dependencies struct {
	LoggerFromViper func() (*slog.Logger, error)
	RelayFromViper  func(ctx context.Context, logger *slog.Logger) (*relay.Relay, func() error, error)
	TextsFromViper  func() (texts.Catalog, error)
}

func NewCommand(d Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "telegram",
		Short: "Run the Telegram bot (long polling or webhook)",
		RunE: func(cmd *cobra.Command, args []string) error {
			token := strings.TrimSpace(configutil.FlagOrViperString(cmd, "telegram-bot-token", "telegram.bot_token"))
			if token == "" {
				return fmt.Errorf("missing telegram.bot_token (set via --telegram-bot-token or TELEGRAM_BOT_TOKEN)")
			}
			gate, err := allowlist.Parse(configutil.FlagOrViperString(cmd, "telegram-allowed-user-id", "telegram.allowed_user_id"))
			if err != nil {
				return err
			}
			mode := strings.ToLower(strings.TrimSpace(configutil.FlagOrViperString(cmd, "mode", "telegram.mode")))
			if mode != telegram.ModePolling && mode != telegram.ModeWebhook {
				return fmt.Errorf("invalid --mode %q (want %s or %s)", mode, telegram.ModePolling, telegram.ModeWebhook)
			}

			logger, err := d.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			catalog, err := d.TextsFromViper()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r, closeRelay, err := d.RelayFromViper(ctx, logger)
			if err != nil {
				return err
			}
			defer func() { _ = closeRelay() }()

			if gate.Open() {
				logger.Warn("telegram_allowlist_open", "reason", "telegram.allowed_user_id is not set; every user can talk to the bot")
			} else {
				logger.Info("telegram_allowlist", "allowed_user_id", gate.UserID())
			}

			api := telegram.NewAPI(nil, configutil.FlagOrViperString(cmd, "telegram-base-url", "telegram.base_url"), token)
			bot, err := telegram.NewBot(telegram.BotOptions{
				Relay:     r,
				Messenger: api,
				Texts:     catalog,
				Gate:      gate,
				Logger:    logger,
			})
			if err != nil {
				return err
			}

			return telegram.Run(ctx, telegram.Dependencies{API: api, Bot: bot, Logger: logger}, telegram.RunOptions{
				Mode:               mode,
				PollTimeout:        configutil.FlagOrViperDuration(cmd, "telegram-poll-timeout", "telegram.poll_timeout"),
				TaskTimeout:        configutil.FlagOrViperDuration(cmd, "telegram-task-timeout", "telegram.task_timeout"),
				MaxConcurrency:     configutil.FlagOrViperInt(cmd, "telegram-max-concurrency", "telegram.max_concurrency"),
				DropPendingUpdates: configutil.FlagOrViperBool(cmd, "drop-pending-updates", "telegram.drop_pending_updates"),
				WebhookListen:      configutil.FlagOrViperString(cmd, "webhook-listen", "telegram.webhook_listen"),
				WebhookPath:        configutil.FlagOrViperString(cmd, "webhook-path", "telegram.webhook_path"),
				WebhookSecret:      configutil.FlagOrViperString(cmd, "webhook-secret", "telegram.webhook_secret"),
			})
		},
	}

	cmd.Flags().String("telegram-bot-token", "", "Telegram bot token.")
	cmd.Flags().String("telegram-base-url", "https://api.telegram.org", "Telegram Bot API base URL.")
	cmd.Flags().String("telegram-allowed-user-id", "", "Only this Telegram user id may use the bot. If empty, allows all.")
	cmd.Flags().String("mode", telegram.ModePolling, "Update source: polling|webhook.")
	cmd.Flags().Duration("telegram-poll-timeout", 30*time.Second, "Long polling timeout for getUpdates.")
	cmd.Flags().Duration("telegram-task-timeout", 5*time.Minute, "Per-message processing timeout.")
	cmd.Flags().Int("telegram-max-concurrency", 4, "Max number of users served concurrently in polling mode.")
	cmd.Flags().Bool("drop-pending-updates", false, "Drop updates queued while the bot was offline (polling mode).")
	cmd.Flags().String("webhook-listen", ":8080", "Listen address for webhook mode.")
	cmd.Flags().String("webhook-path", "/webhook", "HTTP path Telegram posts updates to.")
	cmd.Flags().String("webhook-secret", "", "Expected X-Telegram-Bot-Api-Secret-Token header (optional).")

	return cmd
}
