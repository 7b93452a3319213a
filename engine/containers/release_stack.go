package containers

import (
	"sync"

	"github.com/cockroachdb/errors"
)

type release struct {
	name string
	fn   func() error
}

// ReleaseStack collects the teardown functions of resources as they are
// created and runs them in reverse order, so consumers are always released
// before the producers they were built from. Each function runs at most once.
type ReleaseStack struct {
	mu      sync.Mutex
	entries []release
}

func NewReleaseStack() *ReleaseStack {
	return &ReleaseStack{}
}

// Push registers fn under name. The most recently pushed entry is released first.
func (rs *ReleaseStack) Push(name string, fn func() error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.entries = append(rs.entries, release{name: name, fn: fn})
}

// PushFunc registers a release function that cannot fail.
func (rs *ReleaseStack) PushFunc(name string, fn func()) {
	rs.Push(name, func() error {
		fn()
		return nil
	})
}

// Len returns the number of pending releases.
func (rs *ReleaseStack) Len() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.entries)
}

// Release runs every pending entry, newest first, and empties the stack.
// All entries run even when some fail; the failures are combined.
func (rs *ReleaseStack) Release() error {
	rs.mu.Lock()
	entries := rs.entries
	rs.entries = nil
	rs.mu.Unlock()

	var result error
	for i := len(entries) - 1; i >= 0; i-- {
		if err := entries[i].fn(); err != nil {
			result = errors.CombineErrors(result, errors.Wrapf(err, "releasing %s", entries[i].name))
		}
	}
	return result
}
