package conversation

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultMaxUsers = 10000

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps handles in a bounded LRU. Evicting a user has the same
// effect as a restart for that user: the next message opens a new
// conversation.
type MemoryStore struct {
	*seeder
	entries *lru.Cache[int64, string]
}

func NewMemory(creator Creator, maxUsers int, opts Options) (*MemoryStore, error) {
	s, err := newSeeder(creator, opts)
	if err != nil {
		return nil, err
	}
	if maxUsers <= 0 {
		maxUsers = DefaultMaxUsers
	}
	m := &MemoryStore{seeder: s}
	m.entries, err = lru.NewWithEvict[int64, string](maxUsers, m.onEvicted)
	if err != nil {
		return nil, fmt.Errorf("conversation: new lru: %w", err)
	}
	return m, nil
}

func (m *MemoryStore) onEvicted(userID int64, handle string) {
	m.log.Info("conversation_evicted", "user_id", userID, "conversation_id", handle)
}

func (m *MemoryStore) GetOrCreate(ctx context.Context, userID int64) (string, bool, error) {
	lookup := func(context.Context) (string, bool, error) {
		h, ok := m.entries.Get(userID)
		return h, ok, nil
	}
	save := func(_ context.Context, h string) (string, error) {
		m.entries.Add(userID, h)
		return h, nil
	}
	return m.getOrCreate(ctx, userID, lookup, save)
}

func (m *MemoryStore) Clear(_ context.Context, userID int64) (bool, error) {
	return m.entries.Remove(userID), nil
}

func (m *MemoryStore) Peek(_ context.Context, userID int64) (string, bool, error) {
	h, ok := m.entries.Peek(userID)
	return h, ok, nil
}

// Len returns the number of users holding a handle.
func (m *MemoryStore) Len() int {
	return m.entries.Len()
}
