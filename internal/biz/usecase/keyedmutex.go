package usecase

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/devricklin/chatwarden/internal/biz/domain"
)

// KeyedMutex serializes work per actor
type KeyedMutex struct {
	locks *xsync.MapOf[string, *sync.Mutex]
}

// NewKeyedMutex creates a keyed mutex
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: xsync.NewMapOf[string, *sync.Mutex]()}
}

// Lock acquires the mutex for key and returns its unlock func
func (k *KeyedMutex) Lock(key string) func() {
	m, _ := k.locks.LoadOrCompute(domain.NormalizeID(key), func() *sync.Mutex {
		return &sync.Mutex{}
	})
	m.Lock()
	return m.Unlock
}
