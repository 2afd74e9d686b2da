// Package sync provides per-key locking for the lifecycle service.
package sync

import (
	"hash/fnv"
	"sync"
)

const defaultShards = 64

// ShardedMutex serializes work per key without one global lock. Keys hash
// onto a fixed set of mutexes, so unrelated keys may contend. A caller that
// holds keys of two kinds uses one ShardedMutex per kind and always acquires
// them in the same order.
type ShardedMutex struct {
	shards []sync.Mutex
}

// NewShardedMutex creates n shards; n <= 0 selects 64.
func NewShardedMutex(n int) *ShardedMutex {
	if n <= 0 {
		n = defaultShards
	}
	return &ShardedMutex{shards: make([]sync.Mutex, n)}
}

// Acquire locks key's shard and returns the matching release.
func (m *ShardedMutex) Acquire(key string) (release func()) {
	mu := &m.shards[m.shardFor(key)]
	mu.Lock()
	return mu.Unlock
}

// Do runs fn while holding key's shard.
func (m *ShardedMutex) Do(key string, fn func() error) error {
	defer m.Acquire(key)()
	return fn()
}

func (m *ShardedMutex) shardFor(key string) int {
	if key == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(m.shards)))
}
