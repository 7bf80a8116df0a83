package utils

import (
	"hash/fnv"
	"strconv"
	"sync"
)

func Hash(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))

	return h.Sum64()
}

// HashInt hashes the decimal form of n, to spread integer keys like
// thread ids over workers.
func HashInt(n int) uint64 {
	return Hash(strconv.Itoa(n))
}

// RWMutex guards a value with a reader/writer lock: any number of readers
// or a single writer.
type RWMutex[T any] struct {
	mu sync.RWMutex
	v  T
}

type Unlocker struct {
	mu *sync.RWMutex
}

type RUnlocker struct {
	mu *sync.RWMutex
}

func NewRWMutex[T any](v T) *RWMutex[T] {
	return &RWMutex[T]{v: v}
}

func (m *RWMutex[T]) Lock() (T, Unlocker) {
	m.mu.Lock()
	return m.v, Unlocker{&m.mu}
}

func (m *RWMutex[T]) RLock() (T, RUnlocker) {
	m.mu.RLock()
	return m.v, RUnlocker{&m.mu}
}

func (u Unlocker) Unlock()   { u.mu.Unlock() }
func (u RUnlocker) RUnlock() { u.mu.RUnlock() }
