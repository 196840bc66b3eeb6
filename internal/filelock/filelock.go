// Package filelock provides the advisory, cross-process exclusive lock a
// storage manager takes on its container file, enforcing the "exclusive
// file ownership" clause of spec.md §5 (modb is single-process, but the
// lock still guards against two processes racing on the same path).
package filelock

import (
	"fmt"

	"github.com/gofrs/flock"
)

// Lock wraps a *flock.Flock for a single container file.
type Lock struct {
	fl *flock.Flock
}

// New returns a Lock for the file at path+".lock".
func New(path string) *Lock {
	return &Lock{fl: flock.New(path + ".lock")}
}

// TryLock attempts to acquire the exclusive lock without blocking,
// reporting whether it succeeded.
func (l *Lock) TryLock() (bool, error) {
	return l.fl.TryLock()
}

// Unlock releases the lock.
func (l *Lock) Unlock() error {
	return l.fl.Unlock()
}

// MustTryLock acquires the lock or returns an error naming the path,
// used at storage manager Open time where a locked file is fatal.
func MustTryLock(path string) (*Lock, error) {
	l := New(path)
	ok, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock for %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("container file %s is locked by another process", path)
	}
	return l, nil
}
