package indexer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrLocked is returned when another sync holds the collection lock.
var ErrLocked = errors.New("collection sync already in progress")

// SyncLock is a non-blocking per-collection lock backed by an exclusive
// lock file, so concurrent syncs are refused across processes too.
type SyncLock struct {
	path string
}

// AcquireSyncLock attempts to take the lock for a collection without
// blocking. A lock file whose recorded pid no longer maps to a live
// process is a leftover from a crashed holder and is reclaimed; an
// existing lock with a live holder returns ErrLocked.
func AcquireSyncLock(dir, collection string) (*SyncLock, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "qmd-sync-"+collection+".lock")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if os.IsExist(err) && lockIsStale(path) {
		_ = os.Remove(path)
		f, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	}
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, collection)
		}
		return nil, fmt.Errorf("create lock file: %w", err)
	}
	_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
	_ = f.Close()

	return &SyncLock{path: path}, nil
}

// lockIsStale reports whether the lock's recorded pid is no longer a
// live process. Unreadable or malformed lock files are treated as held,
// never reclaimed.
func lockIsStale(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return true
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return false
	}
	// EPERM still means the process exists
	return !errors.Is(err, syscall.EPERM)
}

// Release removes the lock file. Must only be called by the holder.
func (l *SyncLock) Release() {
	_ = os.Remove(l.path)
}
