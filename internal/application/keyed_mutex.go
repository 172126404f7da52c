package application

import (
	"sync"

	"github.com/google/uuid"
)

// keyedMutex serializes work per reservation id. Operations on
// different reservations proceed in parallel; two transitions against
// the same reservation never interleave, which keeps the current
// status equal to the last log entry. Entries are reference-counted so
// the map does not grow with every reservation ever touched.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[uuid.UUID]*lockEntry)}
}

// Lock acquires the mutex for the given key, blocking until available.
func (k *keyedMutex) Lock(key uuid.UUID) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &lockEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the mutex for the given key.
func (k *keyedMutex) Unlock(key uuid.UUID) {
	k.mu.Lock()
	e := k.locks[key]
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()

	e.mu.Unlock()
}
