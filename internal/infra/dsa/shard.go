// Package dsa implements the data structures backing the scheduler's
// in-process performance-sensitive paths:
//
//  1. ShardRing   — fixed shard-count hashing for cache lock striping
//  2. AntiRepeat  — bloom-filter-fronted decaying frequency counters
//  3. Frontier    — a max-heap over candidate units for best-first traversal
package dsa

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/trane-project/trane/internal/domain"
)

// ShardRing maps a domain.UnitHandle to one of a fixed number of shards, so
// the unit-score cache can guard each shard with its own RWMutex instead of
// a single global lock (spec §5: "bounded lock contention via shard
// striping"). Unlike a resizable consistent-hash ring, the shard count is
// fixed at construction — there is no node join/leave to rebalance, so no
// virtual-node indirection is needed, just a direct hash-mod.
type ShardRing struct {
	numShards uint32
}

// NewShardRing creates a ring with the given fixed shard count. A
// non-positive count is coerced to 1.
func NewShardRing(numShards int) *ShardRing {
	if numShards <= 0 {
		numShards = 1
	}
	return &ShardRing{numShards: uint32(numShards)}
}

// Shard returns the shard index for h, in [0, NumShards).
func (r *ShardRing) Shard(h domain.UnitHandle) int {
	return int(hashHandle(h) % r.numShards)
}

// NumShards returns the fixed shard count.
func (r *ShardRing) NumShards() int { return int(r.numShards) }

// hashHandle derives a well-distributed 32-bit hash from a unit handle via
// SHA-256 truncation, so adjacent handles (which are allocated sequentially
// by the interner) don't cluster on adjacent shards.
func hashHandle(h domain.UnitHandle) uint32 {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(h))
	sum := sha256.Sum256(buf[:])
	return binary.BigEndian.Uint32(sum[:4])
}
