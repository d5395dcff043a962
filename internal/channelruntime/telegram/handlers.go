package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dchen327/telegram-chatbot/internal/allowlist"
	"github.com/dchen327/telegram-chatbot/internal/logutil"
	"github.com/dchen327/telegram-chatbot/internal/relay"
	"github.com/dchen327/telegram-chatbot/internal/texts"
)

const (
	cmdStart   = "/start"
	cmdHelp    = "/help"
	cmdNewChat = "/newchat"
	cmdSearch  = "/search"
	cmdID      = "/id"
)

// Event is one inbound Telegram message reduced to what the bot acts on.
type Event struct {
	RequestID string
	UpdateID  int64
	ChatID    int64
	MessageID int64
	UserID    int64
	Text      string
	// Command is the lower-cased command without its @bot suffix, empty for
	// plain messages.
	Command string
	Args    string
}

type Handler interface {
	Handle(ctx context.Context, ev Event) error
}

type HandlerFunc func(ctx context.Context, ev Event) error

func (f HandlerFunc) Handle(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// RequireAllowed runs next only for users the gate admits. Everyone else is
// passed to refusal and nothing else happens.
func RequireAllowed(gate allowlist.Gate, refusal Handler, next Handler) Handler {
	return HandlerFunc(func(ctx context.Context, ev Event) error {
		if !gate.IsAllowed(ev.UserID) {
			if refusal == nil {
				return nil
			}
			return refusal.Handle(ctx, ev)
		}
		return next.Handle(ctx, ev)
	})
}

// Messenger is the part of the Bot API the handlers talk to.
type Messenger interface {
	relay.Sender
	chatActionSender
}

type BotOptions struct {
	Relay     *relay.Relay
	Messenger Messenger
	Texts     texts.Catalog
	Gate      allowlist.Gate
	Logger    *slog.Logger
	// BotUsername is used to ignore commands addressed to other bots.
	BotUsername    string
	TypingInterval time.Duration
}

type Bot struct {
	relay    *relay.Relay
	api      Messenger
	texts    texts.Catalog
	log      *slog.Logger
	username string
	typing   time.Duration
	handler  Handler
}

func NewBot(opts BotOptions) (*Bot, error) {
	if opts.Relay == nil {
		return nil, fmt.Errorf("telegram: nil relay")
	}
	if opts.Messenger == nil {
		return nil, fmt.Errorf("telegram: nil messenger")
	}
	b := &Bot{
		relay:    opts.Relay,
		api:      opts.Messenger,
		texts:    opts.Texts,
		log:      logutil.OrDiscard(opts.Logger),
		username: strings.TrimPrefix(strings.TrimSpace(opts.BotUsername), "@"),
		typing:   opts.TypingInterval,
	}
	b.handler = RequireAllowed(opts.Gate, HandlerFunc(b.refuse), HandlerFunc(b.route))
	return b, nil
}

// SetUsername records the bot's @username once getMe has answered.
func (b *Bot) SetUsername(name string) {
	b.username = strings.TrimPrefix(strings.TrimSpace(name), "@")
}

// HandleUpdate turns an update into an Event and runs it through the gate
// and router. Updates without a message or sender are ignored.
func (b *Bot) HandleUpdate(ctx context.Context, u telegramUpdate) error {
	ev, ok := b.eventFromUpdate(u)
	if !ok {
		b.log.Debug("telegram_update_ignored", "update_id", u.UpdateID)
		return nil
	}
	return b.Handle(ctx, ev)
}

func (b *Bot) Handle(ctx context.Context, ev Event) error {
	if ev.RequestID == "" {
		ev.RequestID = uuid.NewString()
	}
	return b.handler.Handle(ctx, ev)
}

func (b *Bot) eventFromUpdate(u telegramUpdate) (Event, bool) {
	msg := u.Message
	if msg == nil || msg.Chat == nil || msg.From == nil {
		return Event{}, false
	}
	ev := Event{
		RequestID: uuid.NewString(),
		UpdateID:  u.UpdateID,
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		UserID:    msg.From.ID,
		Text:      strings.TrimSpace(msg.Text),
	}
	cmd, args, forUs := parseCommand(ev.Text, b.username)
	if !forUs {
		return Event{}, false
	}
	ev.Command = cmd
	ev.Args = args
	return ev, true
}

// parseCommand splits "/cmd@bot args". forUs is false when the command
// names a different bot.
func parseCommand(text, botUsername string) (cmd, args string, forUs bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", true
	}
	head, rest, _ := strings.Cut(text, " ")
	if i := strings.IndexAny(head, "\n\t"); i >= 0 {
		rest = head[i:] + " " + rest
		head = head[:i]
	}
	name, target, hasTarget := strings.Cut(head, "@")
	if hasTarget && botUsername != "" && !strings.EqualFold(target, botUsername) {
		return "", "", false
	}
	return strings.ToLower(name), strings.TrimSpace(rest), true
}

func (b *Bot) logger(ev Event) *slog.Logger {
	return b.log.With("request_id", ev.RequestID, "chat_id", ev.ChatID, "user_id", ev.UserID)
}

func (b *Bot) refuse(ctx context.Context, ev Event) error {
	b.logger(ev).Warn("telegram_unauthorized", "command", ev.Command)
	return b.reply(ctx, ev, b.texts.Refusal)
}

func (b *Bot) route(ctx context.Context, ev Event) error {
	log := b.logger(ev)
	log.Info("telegram_message", "update_id", ev.UpdateID, "command", ev.Command, "text_len", len(ev.Text))

	if ev.Text == "" {
		return b.reply(ctx, ev, b.texts.TextOnly)
	}
	switch ev.Command {
	case "":
		return b.respond(ctx, ev, ev.Text, false)
	case cmdStart, cmdHelp:
		return b.reply(ctx, ev, b.texts.Welcome)
	case cmdNewChat:
		cleared, err := b.relay.NewChat(ctx, ev.UserID)
		if err != nil {
			log.Error("telegram_newchat_error", "error", err.Error())
			return b.reply(ctx, ev, b.texts.Apology)
		}
		if cleared {
			return b.reply(ctx, ev, b.texts.NewChatCleared)
		}
		return b.reply(ctx, ev, b.texts.NewChatEmpty)
	case cmdSearch:
		if ev.Args == "" {
			return b.reply(ctx, ev, b.texts.SearchUsage)
		}
		return b.respond(ctx, ev, ev.Args, true)
	case cmdID:
		return b.reply(ctx, ev, fmt.Sprintf("user id: %d\nchat id: %d", ev.UserID, ev.ChatID))
	default:
		return b.reply(ctx, ev, b.texts.UnknownCommand)
	}
}

func (b *Bot) respond(ctx context.Context, ev Event, text string, useSearch bool) error {
	stopTyping := startTypingTicker(ctx, b.api, ev.ChatID, "typing", b.typing)
	reply, err := b.relay.Respond(ctx, ev.UserID, text, useSearch)
	stopTyping()
	if err != nil {
		if !errors.Is(err, relay.ErrUpstream) {
			b.logger(ev).Error("telegram_respond_error", "error", err.Error())
		}
		return b.reply(ctx, ev, b.texts.Apology)
	}
	if err := b.relay.Deliver(ctx, b.api, ev.ChatID, reply.Chunks); err != nil {
		return fmt.Errorf("deliver reply: %w", err)
	}
	return nil
}

func (b *Bot) reply(ctx context.Context, ev Event, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return b.api.SendPlain(ctx, ev.ChatID, text)
}
