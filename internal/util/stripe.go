package util

import (
	"hash/fnv"
	"sync"
)

const stripes = 64

// Striped serialises read-modify-write sequences per key without a global lock.
// Two keys may share a stripe; that only costs contention, never correctness.
type Striped struct {
	mu [stripes]sync.Mutex
}

func (s *Striped) Lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	m := &s.mu[h.Sum32()%stripes]
	m.Lock()
	return m.Unlock
}
