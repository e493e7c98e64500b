// Package cmap provides a sharded concurrent map.
//
// Each shard has its own RWMutex, so lookups for unrelated keys do not
// contend. GetOrCreate runs its constructor under the shard lock, which
// makes lazy per-key initialization race-free without a global mutex.
//
//	m := cmap.New[string, *Buffer]()
//	buf, created, err := m.GetOrCreate("diagram-1", newBuffer)
package cmap
