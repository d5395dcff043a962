// Package conversation maps Telegram users to server-side LLM conversation
// handles. A handle is created lazily on a user's first message, seeded with
// the system instruction, and reused until the user clears it.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/dchen327/telegram-chatbot/internal/logutil"
)

// Creator opens a new upstream conversation. llm.Client satisfies it.
type Creator interface {
	CreateConversation(ctx context.Context, systemInstruction string) (string, error)
}

type Store interface {
	// GetOrCreate returns the user's handle, creating one first when the user
	// has none. created reports whether this call caused the creation.
	GetOrCreate(ctx context.Context, userID int64) (handle string, created bool, err error)
	// Clear forgets the user's handle and reports whether one existed. The
	// upstream conversation itself is left alone.
	Clear(ctx context.Context, userID int64) (bool, error)
	// Peek returns the stored handle without creating one.
	Peek(ctx context.Context, userID int64) (string, bool, error)
}

var ErrEmptyHandle = errors.New("conversation: creator returned an empty handle")

type Options struct {
	SystemInstruction string
	Logger            *slog.Logger
}

type flightResult struct {
	handle  string
	created bool
}

// seeder runs get-or-create under a per-user singleflight key so concurrent
// first messages from one user share a single creation call.
type seeder struct {
	creator     Creator
	instruction string
	log         *slog.Logger
	flight      singleflight.Group
}

func newSeeder(creator Creator, opts Options) (*seeder, error) {
	if creator == nil {
		return nil, fmt.Errorf("conversation: nil creator")
	}
	return &seeder{
		creator:     creator,
		instruction: strings.TrimSpace(opts.SystemInstruction),
		log:         logutil.OrDiscard(opts.Logger),
	}, nil
}

type lookupFunc func(ctx context.Context) (string, bool, error)

// saveFunc stores a fresh handle and returns the handle that ended up stored,
// which differs when another writer won the race.
type saveFunc func(ctx context.Context, handle string) (string, error)

func (s *seeder) getOrCreate(ctx context.Context, userID int64, lookup lookupFunc, save saveFunc) (string, bool, error) {
	if h, ok, err := lookup(ctx); err != nil || ok {
		return h, false, err
	}
	v, err, _ := s.flight.Do(strconv.FormatInt(userID, 10), func() (any, error) {
		if h, ok, err := lookup(ctx); err != nil {
			return nil, err
		} else if ok {
			return flightResult{handle: h}, nil
		}
		h, err := s.creator.CreateConversation(ctx, s.instruction)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(h) == "" {
			return nil, ErrEmptyHandle
		}
		stored, err := save(ctx, h)
		if err != nil {
			return nil, err
		}
		if stored != h {
			s.log.Warn("conversation_create_lost_race", "user_id", userID, "discarded", h)
			return flightResult{handle: stored}, nil
		}
		s.log.Info("conversation_created", "user_id", userID, "conversation_id", h)
		return flightResult{handle: h, created: true}, nil
	})
	if err != nil {
		return "", false, err
	}
	res := v.(flightResult)
	return res.handle, res.created, nil
}
