// Package idx generates lexicographically sortable record identifiers backed
// by ULIDs with a process-wide monotonic entropy source.
package idx

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ID is a string-typed ULID.
type ID string

func (id ID) String() string { return string(id) }

var (
	mu      sync.Mutex
	once    sync.Once
	entropy *ulid.MonotonicEntropy
)

// New returns a fresh ULID-based ID using the current UTC time. Safe for
// concurrent use.
func New() ID {
	once.Do(func() {
		entropy = ulid.Monotonic(rand.Reader, 0)
	})

	mu.Lock()
	defer mu.Unlock()
	return ID(ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy).String())
}
