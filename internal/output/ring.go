package output

import "sync/atomic"

// block is one slab of PCM tagged with the generation it was staged under
type block struct {
	generation uint64
	pcm        []byte
	off        int
}

// frameRing is a fixed-capacity single-producer single-consumer queue of
// PCM blocks. The feeder goroutine is the only producer and the device data
// callback the only consumer, so publication needs nothing stronger than
// the two atomic indices; the callback side never blocks or allocates.
type frameRing struct {
	slots []*block
	mask  uint64
	head  atomic.Uint64 // consumer position
	tail  atomic.Uint64 // producer position
}

// newFrameRing creates a ring with the given power-of-two capacity
func newFrameRing(capacity int) *frameRing {
	if capacity&(capacity-1) != 0 {
		panic("frameRing capacity must be a power of two")
	}
	return &frameRing{
		slots: make([]*block, capacity),
		mask:  uint64(capacity - 1),
	}
}

// push adds a block; returns false when the ring is full
func (r *frameRing) push(b *block) bool {
	tail := r.tail.Load()
	if tail-r.head.Load() >= uint64(len(r.slots)) {
		return false
	}
	r.slots[tail&r.mask] = b
	r.tail.Store(tail + 1)
	return true
}

// pop removes the oldest block; nil when empty. Consumer side only.
func (r *frameRing) pop() *block {
	head := r.head.Load()
	if head == r.tail.Load() {
		return nil
	}
	b := r.slots[head&r.mask]
	r.slots[head&r.mask] = nil
	r.head.Store(head + 1)
	return b
}

// len reports queued blocks; approximate under concurrency
func (r *frameRing) len() int {
	return int(r.tail.Load() - r.head.Load())
}
