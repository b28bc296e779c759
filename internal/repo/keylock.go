package repo

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const defaultStripes = 256

// KeyLock is a striped mutex. Two keys may share a stripe, which only costs
// throughput; a key never maps to two stripes.
type KeyLock struct {
	stripes []sync.Mutex
}

func NewKeyLock(stripes int) *KeyLock {
	if stripes <= 0 {
		stripes = defaultStripes
	}
	return &KeyLock{stripes: make([]sync.Mutex, stripes)}
}

// Lock blocks until key is held and returns the matching unlock func.
func (l *KeyLock) Lock(key string) func() {
	m := &l.stripes[xxhash.Sum64String(key)%uint64(len(l.stripes))]
	m.Lock()
	return m.Unlock
}
