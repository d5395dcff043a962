package telegramcmd

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dchen327/telegram-chatbot/internal/channelruntime/telegram"
	"github.com/dchen327/telegram-chatbot/internal/clifmt"
	"github.com/dchen327/telegram-chatbot/internal/configutil"
	"github.com/dchen327/telegram-chatbot/internal/outputfmt"
)

func NewWebhookCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Manage the Telegram webhook registration",
	}
	cmd.PersistentFlags().String("telegram-bot-token", "", "Telegram bot token.")
	cmd.PersistentFlags().String("telegram-base-url", "https://api.telegram.org", "Telegram Bot API base URL.")
	cmd.PersistentFlags().Duration("timeout", 15*time.Second, "Timeout for the Bot API call.")

	cmd.AddCommand(newWebhookSetCmd(), newWebhookDeleteCmd(), newWebhookInfoCmd())
	return cmd
}

func apiFromFlags(cmd *cobra.Command) (*telegram.API, error) {
	token := strings.TrimSpace(configutil.FlagOrViperString(cmd, "telegram-bot-token", "telegram.bot_token"))
	if token == "" {
		return nil, fmt.Errorf("missing telegram.bot_token (set via --telegram-bot-token or TELEGRAM_BOT_TOKEN)")
	}
	return telegram.NewAPI(nil, configutil.FlagOrViperString(cmd, "telegram-base-url", "telegram.base_url"), token), nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return context.WithTimeout(cmd.Context(), timeout)
}

// webhookURL appends path to base unless base already ends with it.
func webhookURL(base, path string) (string, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return "", fmt.Errorf("missing --url")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid --url %q: %w", base, err)
	}
	if u.Scheme != "https" {
		return "", fmt.Errorf("invalid --url %q: Telegram requires https", base)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid --url %q: missing host", base)
	}
	path = "/" + strings.Trim(strings.TrimSpace(path), "/")
	if path == "/" || strings.HasSuffix(u.Path, path) {
		return base, nil
	}
	return base + path, nil
}

func newWebhookSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Register <url>/webhook with Telegram",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := apiFromFlags(cmd)
			if err != nil {
				return err
			}
			base, _ := cmd.Flags().GetString("url")
			target, err := webhookURL(base, configutil.FlagOrViperString(cmd, "webhook-path", "telegram.webhook_path"))
			if err != nil {
				return err
			}
			secret := strings.TrimSpace(configutil.FlagOrViperString(cmd, "webhook-secret", "telegram.webhook_secret"))
			generated := false
			if secret == "" {
				if gen, _ := cmd.Flags().GetBool("generate-secret"); gen {
					secret = strings.ReplaceAll(uuid.NewString(), "-", "")
					generated = true
				}
			}
			drop, _ := cmd.Flags().GetBool("drop-pending-updates")

			ctx, cancel := commandContext(cmd)
			defer cancel()
			if err := api.SetWebhook(ctx, telegram.SetWebhookOptions{
				URL:                target,
				SecretToken:        secret,
				DropPendingUpdates: drop,
				AllowedUpdates:     []string{"message"},
			}); err != nil {
				return fmt.Errorf("set webhook: %s", outputfmt.FormatErrorForDisplay(err))
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "webhook set: %s\n", target)
			if generated {
				_, _ = fmt.Fprintf(out, "secret token: %s\n", secret)
				_, _ = fmt.Fprintln(out, "configure the server with CHATBOT_TELEGRAM_WEBHOOK_SECRET set to this value")
			}
			return nil
		},
	}
	cmd.Flags().String("url", "", "Public https base URL of the webhook server.")
	cmd.Flags().String("webhook-path", "/webhook", "Path appended to --url.")
	cmd.Flags().String("webhook-secret", "", "Secret token Telegram sends in X-Telegram-Bot-Api-Secret-Token.")
	cmd.Flags().Bool("generate-secret", false, "Generate a random secret token when none is configured.")
	cmd.Flags().Bool("drop-pending-updates", false, "Drop updates queued before the webhook was set.")
	return cmd
}

func newWebhookDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove the webhook so the bot can long-poll again",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := apiFromFlags(cmd)
			if err != nil {
				return err
			}
			drop, _ := cmd.Flags().GetBool("drop-pending-updates")
			ctx, cancel := commandContext(cmd)
			defer cancel()
			if err := api.DeleteWebhook(ctx, drop); err != nil {
				return fmt.Errorf("delete webhook: %s", outputfmt.FormatErrorForDisplay(err))
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "webhook deleted")
			return nil
		},
	}
	cmd.Flags().Bool("drop-pending-updates", false, "Drop queued updates as well.")
	return cmd
}

func newWebhookInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the current webhook registration",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := apiFromFlags(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()
			info, err := api.GetWebhookInfo(ctx)
			if err != nil {
				return fmt.Errorf("get webhook info: %s", outputfmt.FormatErrorForDisplay(err))
			}
			target := info.URL
			if target == "" {
				target = "(none, polling mode)"
			}
			fields := []clifmt.Field{
				{Name: "url", Value: target},
				{Name: "pending_update_count", Value: strconv.Itoa(info.PendingUpdateCount)},
			}
			if info.MaxConnections > 0 {
				fields = append(fields, clifmt.Field{Name: "max_connections", Value: strconv.Itoa(info.MaxConnections)})
			}
			if info.IPAddress != "" {
				fields = append(fields, clifmt.Field{Name: "ip_address", Value: info.IPAddress})
			}
			if info.LastErrorMessage != "" {
				when := time.Unix(info.LastErrorDate, 0).UTC().Format(time.RFC3339)
				fields = append(fields, clifmt.Field{Name: "last_error", Value: fmt.Sprintf("%s (%s)", info.LastErrorMessage, when)})
			}
			clifmt.PrintFieldTable(cmd.OutOrStdout(), clifmt.FieldTableOptions{Fields: fields})
			return nil
		},
	}
}
