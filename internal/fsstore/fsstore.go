// Package fsstore holds small JSON state files on local disk. Writes go
// through a temp file and rename; read-modify-write cycles hold an advisory
// file lock so several bot processes can share one state file.
package fsstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultDirPerm  = 0o700
	defaultFilePerm = 0o600
)

var (
	ErrInvalidPath       = errors.New("fsstore: invalid path")
	ErrLockTimeout       = errors.New("fsstore: lock timeout")
	ErrLockUnavailable   = errors.New("fsstore: lock unavailable")
	ErrDecodeFailed      = errors.New("fsstore: decode failed")
	ErrAtomicWriteFailed = errors.New("fsstore: atomic write failed")
)

type FileOptions struct {
	DirPerm  os.FileMode
	FilePerm os.FileMode
}

func (o FileOptions) withDefaults() FileOptions {
	if o.DirPerm == 0 {
		o.DirPerm = defaultDirPerm
	}
	if o.FilePerm == 0 {
		o.FilePerm = defaultFilePerm
	}
	return o
}

func cleanPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	return filepath.Clean(path), nil
}

func EnsureDir(path string, perm os.FileMode) error {
	path, err := cleanPath(path)
	if err != nil {
		return err
	}
	if perm == 0 {
		perm = defaultDirPerm
	}
	if err := os.MkdirAll(path, perm); err != nil {
		return fmt.Errorf("fsstore ensure dir %s: %w", path, err)
	}
	return nil
}

// ReadJSON decodes path into out. A missing or blank file reports false.
func ReadJSON(path string, out any) (bool, error) {
	path, err := cleanPath(path)
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("fsstore read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrDecodeFailed, path, err)
	}
	return true, nil
}

func WriteJSONAtomic(path string, v any, opts FileOptions) error {
	path, err := cleanPath(path)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("fsstore encode %s: %w", path, err)
	}
	return writeAtomic(path, append(data, '\n'), opts.withDefaults())
}

// UpdateJSON loads path into a zero T under the file's lock, applies fn and
// writes the result back. fn reports whether anything changed; unchanged
// state is not rewritten.
func UpdateJSON[T any](ctx context.Context, path string, opts FileOptions, fn func(state *T) (bool, error)) error {
	if fn == nil {
		return fmt.Errorf("fsstore update: nil mutator")
	}
	return WithLock(ctx, LockPathFor(path), func() error {
		var state T
		if _, err := ReadJSON(path, &state); err != nil {
			return err
		}
		changed, err := fn(&state)
		if err != nil || !changed {
			return err
		}
		return WriteJSONAtomic(path, state, opts)
	})
}

func writeAtomic(path string, content []byte, opts FileOptions) error {
	dir := filepath.Dir(path)
	if err := EnsureDir(dir, opts.DirPerm); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("%w: create temp for %s: %v", ErrAtomicWriteFailed, path, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	steps := []struct {
		name string
		run  func() error
	}{
		{"write", func() error { _, err := tmp.Write(content); return err }},
		{"sync", tmp.Sync},
		{"chmod", func() error { return tmp.Chmod(opts.FilePerm) }},
		{"close", tmp.Close},
		{"rename", func() error { return os.Rename(tmpPath, path) }},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return fmt.Errorf("%w: %s temp for %s: %v", ErrAtomicWriteFailed, step.name, path, err)
		}
	}

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
