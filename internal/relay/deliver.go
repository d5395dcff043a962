package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dchen327/telegram-chatbot/internal/outputfmt"
	"github.com/dchen327/telegram-chatbot/internal/telegramutil"
)

// Sender is the slice of the Telegram API that delivery needs.
type Sender interface {
	SendHTML(ctx context.Context, chatID int64, text string) error
	SendPlain(ctx context.Context, chatID int64, text string) error
}

// Deliver sends chunks in order. Each chunk goes out as HTML unless its
// markup would be rejected, in which case that chunk alone is sent as plain
// text; the same happens when Telegram itself refuses to parse the markup.
func (r *Relay) Deliver(ctx context.Context, s Sender, chatID int64, chunks []string) error {
	for i, chunk := range chunks {
		if err := r.deliverChunk(ctx, s, chatID, chunk); err != nil {
			return fmt.Errorf("deliver chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}

func (r *Relay) deliverChunk(ctx context.Context, s Sender, chatID int64, chunk string) error {
	res := telegramutil.RenderHTML(chunk)
	if res.Status == telegramutil.NeedsPlainFallback {
		r.log.Debug("relay_plain_fallback", "chat_id", chatID, "reason", res.Reason)
		return sendPlain(ctx, s, chatID, res.Text)
	}
	err := s.SendHTML(ctx, chatID, res.Text)
	if err == nil {
		return nil
	}
	if !errors.Is(err, telegramutil.ErrParseEntities) {
		return err
	}
	r.log.Warn("relay_plain_fallback", "chat_id", chatID, "reason", outputfmt.FormatErrorForDisplay(err))
	return sendPlain(ctx, s, chatID, telegramutil.StripTags(chunk))
}

func sendPlain(ctx context.Context, s Sender, chatID int64, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.SendPlain(ctx, chatID, text)
}
