// Package relay turns one user message into sanitized Telegram replies: it
// resolves the user's conversation, calls the model once and formats the
// answer for delivery.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dchen327/telegram-chatbot/internal/conversation"
	"github.com/dchen327/telegram-chatbot/internal/logutil"
	"github.com/dchen327/telegram-chatbot/internal/outputfmt"
	"github.com/dchen327/telegram-chatbot/internal/promptprofile"
	"github.com/dchen327/telegram-chatbot/internal/telegramutil"
	"github.com/dchen327/telegram-chatbot/llm"
)

const (
	DefaultModel           = "gpt-5-mini"
	DefaultMaxOutputTokens = 4000
	DefaultReasoningEffort = llm.ReasoningLow
	DefaultEmptyNotice     = "I apologize, but I couldn't generate a response. Please try again."
)

// ErrUpstream marks failures of the conversation or completion API. The
// original cause stays reachable through errors.Is / errors.As.
var ErrUpstream = errors.New("relay: upstream failure")

// DefaultSearchKeywords turn on web search for a plain message that contains
// any of them, case-insensitively.
var DefaultSearchKeywords = []string{"search", "look up", "find", "latest", "current", "recent", "news"}

type Options struct {
	Model           string
	MaxOutputTokens int
	ReasoningEffort string
	// RequestTimeout bounds the completion call. Zero leaves it to the
	// client and the caller's context.
	RequestTimeout time.Duration
	// SearchKeywords enable web search for plain messages mentioning one of
	// them. Nil or empty disables detection.
	SearchKeywords []string
	ChunkLimit     int
	// EmptyNotice replaces a blank model answer.
	EmptyNotice string
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.Model) == "" {
		o.Model = DefaultModel
	}
	if o.MaxOutputTokens <= 0 {
		o.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if strings.TrimSpace(o.ReasoningEffort) == "" {
		o.ReasoningEffort = DefaultReasoningEffort
	}
	if o.RequestTimeout < 0 {
		o.RequestTimeout = 0
	}
	if o.ChunkLimit <= 0 || o.ChunkLimit > outputfmt.TelegramMessageLimit {
		o.ChunkLimit = outputfmt.TelegramMessageLimit
	}
	if strings.TrimSpace(o.EmptyNotice) == "" {
		o.EmptyNotice = DefaultEmptyNotice
	}
	var keywords []string
	for _, k := range o.SearchKeywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}
	o.SearchKeywords = keywords
	return o
}

type Relay struct {
	client llm.Client
	store  conversation.Store
	opts   Options
	log    *slog.Logger
}

func New(client llm.Client, store conversation.Store, opts Options, logger *slog.Logger) (*Relay, error) {
	if client == nil {
		return nil, fmt.Errorf("relay: nil llm client")
	}
	if store == nil {
		return nil, fmt.Errorf("relay: nil conversation store")
	}
	opts = opts.withDefaults()
	if !llm.ValidReasoningEffort(opts.ReasoningEffort) {
		return nil, fmt.Errorf("relay: invalid reasoning effort %q", opts.ReasoningEffort)
	}
	return &Relay{client: client, store: store, opts: opts, log: logutil.OrDiscard(logger)}, nil
}

func (r *Relay) Options() Options {
	return r.opts
}

type Reply struct {
	Chunks          []string
	ConversationID  string
	NewConversation bool
	// Empty is set when the model produced nothing usable and Chunks holds
	// the empty-response notice.
	Empty bool
	Usage llm.Usage
}

// MentionsSearch reports whether text contains one of the configured search
// keywords.
func (r *Relay) MentionsSearch(text string) bool {
	lower := strings.ToLower(text)
	for _, k := range r.opts.SearchKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// Respond runs one turn for userID. With useSearch the text is treated as a
// search query: it is wrapped with answer-now instructions and the web search
// tool is offered to the model. Without it the tool is still offered when the
// text mentions a search keyword, but the text is sent as written.
func (r *Relay) Respond(ctx context.Context, userID int64, text string, useSearch bool) (Reply, error) {
	input := strings.TrimSpace(text)
	webSearch := useSearch || r.MentionsSearch(input)
	if useSearch {
		wrapped, err := promptprofile.SearchInput(input)
		if err != nil {
			return Reply{}, err
		}
		input = wrapped
	}

	handle, created, err := r.store.GetOrCreate(ctx, userID)
	if err != nil {
		r.log.Error("relay_conversation_error", "user_id", userID, "error", outputfmt.FormatErrorForDisplay(err))
		return Reply{}, fmt.Errorf("%w: conversation: %w", ErrUpstream, err)
	}

	callCtx := ctx
	if r.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.opts.RequestTimeout)
		defer cancel()
	}
	res, err := r.client.Respond(callCtx, llm.Request{
		Model:           r.opts.Model,
		Input:           input,
		ConversationID:  handle,
		MaxOutputTokens: r.opts.MaxOutputTokens,
		ReasoningEffort: r.opts.ReasoningEffort,
		WebSearch:       webSearch,
	})
	if err != nil {
		r.log.Error("relay_upstream_error",
			"user_id", userID,
			"conversation_id", handle,
			"search", webSearch,
			"error", outputfmt.FormatErrorForDisplay(err),
		)
		return Reply{}, fmt.Errorf("%w: completion: %w", ErrUpstream, err)
	}

	reply := Reply{ConversationID: handle, NewConversation: created, Usage: res.Usage}
	reply.Chunks = Format(res.Text, r.opts.ChunkLimit)
	if len(reply.Chunks) == 0 {
		r.log.Warn("relay_empty_output", "user_id", userID, "conversation_id", handle, "response_id", res.ResponseID)
		reply.Empty = true
		reply.Chunks = Format(r.opts.EmptyNotice, r.opts.ChunkLimit)
	}
	r.log.Info("relay_reply",
		"user_id", userID,
		"conversation_id", handle,
		"new_conversation", created,
		"search", webSearch,
		"search_keyword", webSearch && !useSearch,
		"chunks", len(reply.Chunks),
		"input_tokens", res.Usage.InputTokens,
		"output_tokens", res.Usage.OutputTokens,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return reply, nil
}

// NewChat forgets the user's conversation. It reports whether there was one.
func (r *Relay) NewChat(ctx context.Context, userID int64) (bool, error) {
	cleared, err := r.store.Clear(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("relay: clear conversation: %w", err)
	}
	r.log.Info("relay_newchat", "user_id", userID, "cleared", cleared)
	return cleared, nil
}

// Format converts raw model Markdown into Telegram HTML chunks with links
// and URLs removed. Blank output yields no chunks.
func Format(raw string, limit int) []string {
	html := outputfmt.StripLinks(telegramutil.MarkdownToHTML(raw))
	html = strings.TrimSpace(html)
	if telegramutil.StripTags(html) == "" {
		return nil
	}
	var out []string
	for _, c := range outputfmt.Chunk(html, limit) {
		if strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	return out
}
