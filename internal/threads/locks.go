package threads

import (
	"fmt"
	"sort"
	"sync"
)

// KeyLocks hands out one mutex per key. Multi-key locking always acquires
// in sorted order. An entry lives only while someone holds or waits on it.
type KeyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewKeyLocks() *KeyLocks {
	return &KeyLocks{locks: make(map[string]*keyLock)}
}

// Lock acquires every key and returns a function releasing them.
func (k *KeyLocks) Lock(keys ...string) func() {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	held := make([]string, 0, len(sorted))
	for i, key := range sorted {
		if i > 0 && sorted[i-1] == key {
			continue
		}
		k.acquire(key).mu.Lock()
		held = append(held, key)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			k.release(held[i])
		}
	}
}

func (k *KeyLocks) acquire(key string) *keyLock {
	k.mu.Lock()
	defer k.mu.Unlock()
	lock, ok := k.locks[key]
	if !ok {
		lock = &keyLock{}
		k.locks[key] = lock
	}
	lock.refs++
	return lock
}

func (k *KeyLocks) release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	lock := k.locks[key]
	lock.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(k.locks, key)
	}
}

func (k *KeyLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// RangeKey identifies a thread anchor.
func RangeKey(documentID string, start, end int) string {
	return fmt.Sprintf("%s|%d|%d", documentID, start, end)
}
