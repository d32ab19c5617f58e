// Package clockx abstracts wall-clock reads so that expiry decisions are
// testable. Production code passes Real (or nil, which most consumers treat
// as Real); tests drive a Fake.
package clockx

import (
	"sync"
	"time"
)

// Clock provides the current time for expiry comparisons.
type Clock interface {
	Now() time.Time
}

// Real reads the system clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

// Fake is a manually driven clock for tests. The zero value starts at the
// zero time; use Set before relying on comparisons.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake returns a Fake pinned to t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set pins the clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// OrNow returns c.Now() or the system time when c is nil.
func OrNow(c Clock) time.Time {
	if c == nil {
		return time.Now()
	}
	return c.Now()
}
