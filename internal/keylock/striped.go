// Package keylock provides per-key mutual exclusion over a fixed set of
// mutex stripes.
package keylock

import (
	"hash/maphash"
	"sync"
)

// DefaultStripes is enough to keep unrelated users apart at the expected
// load of tens of users.
const DefaultStripes = 64

// Striped maps keys onto a fixed array of mutexes. Two keys on the same
// stripe serialise each other; a key always lands on the same stripe.
type Striped struct {
	seed    maphash.Seed
	stripes []sync.Mutex
}

// New returns a Striped with n stripes (DefaultStripes when n <= 0).
func New(n int) *Striped {
	if n <= 0 {
		n = DefaultStripes
	}
	return &Striped{
		seed:    maphash.MakeSeed(),
		stripes: make([]sync.Mutex, n),
	}
}

func (s *Striped) stripe(key string) *sync.Mutex {
	h := maphash.String(s.seed, key)
	return &s.stripes[h%uint64(len(s.stripes))]
}

// Lock acquires the stripe for key and returns its unlock func.
func (s *Striped) Lock(key string) (unlock func()) {
	mu := s.stripe(key)
	mu.Lock()
	return mu.Unlock
}

// Do runs fn while holding the stripe for key.
func (s *Striped) Do(key string, fn func() error) error {
	unlock := s.Lock(key)
	defer unlock()
	return fn()
}
