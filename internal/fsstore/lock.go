package fsstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const lockRetryWait = 25 * time.Millisecond

// LockPathFor returns the sidecar lock file guarding path.
func LockPathFor(path string) string {
	return filepath.Clean(path) + ".lock"
}

// WithLock runs fn while holding an exclusive lock on lockPath. It waits for
// other holders until ctx is done.
func WithLock(ctx context.Context, lockPath string, fn func() error) error {
	lockPath, err := cleanPath(lockPath)
	if err != nil {
		return err
	}
	if fn == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := EnsureDir(filepath.Dir(lockPath), defaultDirPerm); err != nil {
		return err
	}
	return withLockFile(ctx, lockPath, fn)
}

func writeLockOwner(file *os.File) {
	_ = file.Truncate(0)
	_, _ = file.Seek(0, 0)
	_, _ = file.WriteString(strconv.Itoa(os.Getpid()) + "\n")
}

func waitForLockRetry(ctx context.Context, lockPath string) error {
	timer := time.NewTimer(lockRetryWait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %v", ErrLockTimeout, lockPath, ctx.Err())
	case <-timer.C:
		return nil
	}
}
