package bucketing

import (
	"hash"
	"sync"

	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"
)

// Manager maps entity ids onto a fixed number of buckets. Buckets serve
// two purposes: they prefix wide partitions in the scylla schema, and
// they select the mutex stripe that serializes mutations of one wallet.
type Manager struct {
	partitionBuckets int
	lockStripes      int
	hasherPool       sync.Pool
}

func NewManager(partitionBuckets, lockStripes int) *Manager {
	if partitionBuckets <= 0 {
		partitionBuckets = 64
	}
	if lockStripes <= 0 {
		lockStripes = 256
	}
	m := &Manager{
		partitionBuckets: partitionBuckets,
		lockStripes:      lockStripes,
	}
	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}
	return m
}

// PartitionBucket returns the storage bucket for an entity id,
// in [0, partitionBuckets).
func (m *Manager) PartitionBucket(id uuid.UUID) int {
	return int(m.sum(id[:]) % uint64(m.partitionBuckets))
}

// LockStripe returns the mutex stripe for a wallet id, in
// [0, lockStripes). The same wallet always maps to the same stripe, so
// holding the stripe lock serializes all mutations of that wallet.
func (m *Manager) LockStripe(walletID uuid.UUID) int {
	return int(m.sum(walletID[:]) % uint64(m.lockStripes))
}

func (m *Manager) LockStripes() int {
	return m.lockStripes
}

func (m *Manager) sum(b []byte) uint64 {
	h := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(h)
	h.Reset()
	h.Write(b)
	return h.Sum64()
}
