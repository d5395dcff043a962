package conversation

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dchen327/telegram-chatbot/internal/fsstore"
)

var _ Store = (*FileStore)(nil)

// FileStore keeps handles in one JSON file on local disk, keyed by user id.
// Every read and write takes the file's lock, so a single-host deployment
// keeps its conversations across restarts without running Redis.
type FileStore struct {
	*seeder
	path string
}

type fileState struct {
	Conversations map[string]string `json:"conversations"`
}

func NewFile(creator Creator, path string, opts Options) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("conversation: empty file path")
	}
	s, err := newSeeder(creator, opts)
	if err != nil {
		return nil, err
	}
	return &FileStore{seeder: s, path: path}, nil
}

func fileKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

func (f *FileStore) update(ctx context.Context, fn func(m map[string]string) bool) error {
	err := fsstore.UpdateJSON(ctx, f.path, fsstore.FileOptions{}, func(st *fileState) (bool, error) {
		if st.Conversations == nil {
			st.Conversations = map[string]string{}
		}
		return fn(st.Conversations), nil
	})
	if err != nil {
		return fmt.Errorf("conversation: file store: %w", err)
	}
	return nil
}

func (f *FileStore) GetOrCreate(ctx context.Context, userID int64) (string, bool, error) {
	lookup := func(ctx context.Context) (string, bool, error) {
		return f.Peek(ctx, userID)
	}
	save := func(ctx context.Context, h string) (string, error) {
		stored := h
		err := f.update(ctx, func(m map[string]string) bool {
			if existing, ok := m[fileKey(userID)]; ok && existing != "" {
				stored = existing
				return false
			}
			m[fileKey(userID)] = h
			return true
		})
		return stored, err
	}
	return f.getOrCreate(ctx, userID, lookup, save)
}

func (f *FileStore) Clear(ctx context.Context, userID int64) (bool, error) {
	existed := false
	err := f.update(ctx, func(m map[string]string) bool {
		_, existed = m[fileKey(userID)]
		delete(m, fileKey(userID))
		return existed
	})
	return existed, err
}

func (f *FileStore) Peek(ctx context.Context, userID int64) (string, bool, error) {
	var h string
	var ok bool
	err := fsstore.WithLock(ctx, fsstore.LockPathFor(f.path), func() error {
		var st fileState
		if _, err := fsstore.ReadJSON(f.path, &st); err != nil {
			return err
		}
		h, ok = st.Conversations[fileKey(userID)]
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("conversation: file store: %w", err)
	}
	return h, ok && h != "", nil
}
