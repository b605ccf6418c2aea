// Package event provides a level-triggered waitable flag, safe for one
// waiter and many setters, used to wake the async engine's worker
// goroutine.
package event

import "sync"

// Flag is a level-triggered boolean condition. Set is idempotent; Wait
// returns immediately if the flag is already set.
type Flag struct {
	mu   sync.Mutex
	cond *sync.Cond
	set  bool
}

// NewFlag returns a Flag in the reset state.
func NewFlag() *Flag {
	f := &Flag{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Set raises the flag and wakes any goroutine blocked in Wait.
func (f *Flag) Set() {
	f.mu.Lock()
	f.set = true
	f.mu.Unlock()
	f.cond.Broadcast()
}

// Reset lowers the flag.
func (f *Flag) Reset() {
	f.mu.Lock()
	f.set = false
	f.mu.Unlock()
}

// Wait blocks until the flag is set. It does not clear the flag; callers
// that want edge-triggered behavior must call Reset themselves.
func (f *Flag) Wait() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for !f.set {
		f.cond.Wait()
	}
}

// IsSet reports the current state without blocking.
func (f *Flag) IsSet() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.set
}
