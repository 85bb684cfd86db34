// Package dblock serializes writers of one config database directory across
// processes. The store itself is last-writer-wins; the lock is opt-in.
package dblock

import (
	"fmt"
	"os"
	"path/filepath"
)

const lockName = ".convtune.lock"

// Lock is a held advisory lock on a database root.
type Lock struct {
	f *os.File
}

// Acquire blocks until it holds the exclusive lock on root. The root is
// created when missing.
func Acquire(root string) (*Lock, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(root, lockName), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock %s: %w", root, err)
	}
	return &Lock{f: f}, nil
}

// Release drops the lock. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unlockFile(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}
