package bucketing

import (
	"testing"

	"github.com/google/uuid"
)

func TestLockStripeIsStable(t *testing.T) {
	m := NewManager(64, 256)
	id := uuid.New()

	first := m.LockStripe(id)
	for i := 0; i < 100; i++ {
		if got := m.LockStripe(id); got != first {
			t.Fatalf("stripe changed between calls: %d != %d", got, first)
		}
	}
}

func TestBucketsWithinRange(t *testing.T) {
	m := NewManager(8, 16)
	for i := 0; i < 1000; i++ {
		id := uuid.New()
		if b := m.PartitionBucket(id); b < 0 || b >= 8 {
			t.Fatalf("partition bucket out of range: %d", b)
		}
		if s := m.LockStripe(id); s < 0 || s >= 16 {
			t.Fatalf("lock stripe out of range: %d", s)
		}
	}
}
