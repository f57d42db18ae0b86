package tree

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// stripeCount is the number of independent rwlocks LasTree spreads leaf
// locking across, per spec.md §5.1 — enough that two concurrently-hot
// leaves rarely collide, cheap enough to keep resident permanently
// rather than one lock per leaf (which a long-lived tree could grow
// without bound).
const stripeCount = 128

// stripedLocks hashes a leaf's node ID into one of stripeCount rwmutexes,
// replacing a per-leaf lock map whose size would otherwise be unbounded.
// Only LasTree uses this; SimpleTree and plain OptimizedTree serialize
// every mutation through the coordinator's single mu instead.
type stripedLocks struct {
	stripes [stripeCount]sync.RWMutex
}

func newStripedLocks() *stripedLocks {
	return &stripedLocks{}
}

func (s *stripedLocks) index(nodeID uint32) uint32 {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], nodeID)
	return uint32(xxhash.Sum64(buf[:]) % stripeCount)
}

func (s *stripedLocks) Lock(nodeID uint32)    { s.stripes[s.index(nodeID)].Lock() }
func (s *stripedLocks) Unlock(nodeID uint32)  { s.stripes[s.index(nodeID)].Unlock() }
func (s *stripedLocks) RLock(nodeID uint32)   { s.stripes[s.index(nodeID)].RLock() }
func (s *stripedLocks) RUnlock(nodeID uint32) { s.stripes[s.index(nodeID)].RUnlock() }
