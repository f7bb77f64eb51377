package scratch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

const (
	runPrefix = "run-"
	lockName  = ".lock"
)

// Run is the scratch directory owned by one preparation run.
type Run struct {
	ID   string
	Dir  string
	lock *flock.Flock
}

// NewRun creates and locks root/run-<id>.
func NewRun(root, id string) (*Run, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("scratch root not configured")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch root: %w", err)
	}
	dir := filepath.Join(root, runPrefix+id)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}
	lock := flock.New(filepath.Join(dir, lockName))
	ok, err := lock.TryLock()
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("lock run directory: %w", err)
	}
	if !ok {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("run directory %s is locked by another process", dir)
	}
	return &Run{ID: id, Dir: dir, lock: lock}, nil
}

// Close releases the lock and removes the run directory with everything in it.
func (r *Run) Close() error {
	if r == nil || r.lock == nil {
		return nil
	}
	unlockErr := r.lock.Unlock()
	r.lock = nil
	if err := os.RemoveAll(r.Dir); err != nil {
		return fmt.Errorf("remove run directory: %w", err)
	}
	if unlockErr != nil {
		return fmt.Errorf("unlock run directory: %w", unlockErr)
	}
	return nil
}

// inUse reports whether another holder has dir's lock.
func inUse(dir string) bool {
	lockPath := filepath.Join(dir, lockName)
	if _, err := os.Stat(lockPath); err != nil {
		return false
	}
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil || !ok {
		return true
	}
	_ = lock.Unlock()
	return false
}
