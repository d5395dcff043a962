package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dchen327/telegram-chatbot/internal/configutil"
	"github.com/dchen327/telegram-chatbot/internal/logutil"
	"github.com/dchen327/telegram-chatbot/internal/relay"
	"github.com/dchen327/telegram-chatbot/internal/telegramutil"
	"github.com/dchen327/telegram-chatbot/internal/texts"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the model from the terminal, without Telegram",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			catalog, err := textsFromViper()
			if err != nil {
				return err
			}
			userID := configutil.FlagOrViperInt64(cmd, "user-id", "chat.user_id")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			r, closeRelay, err := relayFromViper(ctx, logger)
			if err != nil {
				return err
			}
			defer func() { _ = closeRelay() }()

			interactive := term.IsTerminal(int(os.Stdin.Fd()))
			return runChat(ctx, r, catalog, cmd.InOrStdin(), cmd.OutOrStdout(), userID, interactive)
		},
	}
	cmd.Flags().Int64("user-id", 1, "User id the local session is stored under.")
	return cmd
}

// runChat reads one message per line. "/newchat" and "/search <query>" work
// as in Telegram; "/quit" or EOF ends the session.
func runChat(ctx context.Context, r *relay.Relay, catalog texts.Catalog, in io.Reader, out io.Writer, userID int64, interactive bool) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	prompt := func() {
		if interactive {
			_, _ = fmt.Fprint(out, "> ")
		}
	}
	say := func(s string) {
		_, _ = fmt.Fprintln(out, strings.TrimSpace(s))
	}

	prompt()
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)

		switch {
		case line == "":
		case cmd == "/quit" || cmd == "/exit":
			return nil
		case cmd == "/newchat":
			cleared, err := r.NewChat(ctx, userID)
			switch {
			case err != nil:
				say(catalog.Apology)
			case cleared:
				say(catalog.NewChatCleared)
			default:
				say(catalog.NewChatEmpty)
			}
		case cmd == "/search" && arg == "":
			say(catalog.SearchUsage)
		default:
			text, search := line, false
			if cmd == "/search" {
				text, search = arg, true
			}
			reply, err := r.Respond(ctx, userID, text, search)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				say(catalog.Apology)
				break
			}
			for _, chunk := range reply.Chunks {
				say(telegramutil.StripTags(chunk))
			}
		}
		prompt()
	}
	if interactive {
		_, _ = fmt.Fprintln(out)
	}
	return scanner.Err()
}
