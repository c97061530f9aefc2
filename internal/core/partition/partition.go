// Package partition maps keys onto a fixed set of lock stripes.
package partition

import (
	"hash/fnv"
	"sync"
)

// Count is the fixed number of stripes.
const Count = 256

// For returns the stripe for a key. The same key always maps to the same stripe.
func For(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % Count)
}

// Mutexes is a striped lock set. The zero value is ready to use.
type Mutexes [Count]sync.Mutex

// For returns the mutex guarding key. Distinct keys may share a mutex.
func (m *Mutexes) For(key string) *sync.Mutex {
	return &m[For(key)]
}
