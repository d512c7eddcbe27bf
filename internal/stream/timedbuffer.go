package stream

import (
	"sync"
	"time"

	"github.com/smallnest/ringbuffer"
)

// maxLateness is how far past its play time a chunk may be before it is
// dropped instead of played. Late audio is worse than missing audio in a
// multi-room setup.
const maxLateness = 50 * time.Millisecond

// dueRingSize is the capacity of the staging ring for due PCM.
// Half a second of 48kHz/16-bit stereo.
const dueRingSize = 48000 * 2 * 2 / 2

type timedChunk struct {
	playAt     time.Time
	generation uint64
	pcm        []byte
}

// TimedBuffer holds decoded audio tagged with its scheduled local play
// time and the session generation it belongs to. Producers push in arrival
// order; the output side calls ReadDue, which releases only audio whose
// time has come and silently drops chunks that are stale by generation or
// arrived too late to play.
type TimedBuffer struct {
	mu         sync.Mutex
	chunks     []timedChunk
	due        *ringbuffer.RingBuffer
	dueGen     uint64
	generation uint64
	dropped    uint64
}

// NewTimedBuffer creates an empty buffer accepting the given generation
func NewTimedBuffer(generation uint64) *TimedBuffer {
	return &TimedBuffer{
		due:        ringbuffer.New(dueRingSize),
		generation: generation,
		dueGen:     generation,
	}
}

// Push appends one decoded chunk scheduled for playAt
func (b *TimedBuffer) Push(pcm []byte, playAt time.Time, generation uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if generation != b.generation {
		b.dropped++
		return
	}
	b.chunks = append(b.chunks, timedChunk{playAt: playAt, generation: generation, pcm: pcm})
}

// ReadDue fills dst with audio that is due for playback at now. Returns
// the number of bytes written and the generation that audio belongs to.
// Never blocks; returns 0 when nothing is due yet.
func (b *TimedBuffer) ReadDue(dst []byte, now time.Time) (int, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// stage everything whose play time has arrived
	for len(b.chunks) > 0 {
		c := b.chunks[0]
		if c.playAt.After(now) {
			break
		}
		b.chunks = b.chunks[1:]

		if c.generation != b.generation || now.Sub(c.playAt) > maxLateness {
			b.dropped++
			continue
		}
		if b.dueGen != c.generation {
			b.due.Reset()
			b.dueGen = c.generation
		}
		if b.due.Free() < len(c.pcm) {
			// overrun: the output is not draining; drop the oldest staged audio
			b.due.Reset()
			b.dropped++
		}
		b.due.Write(c.pcm)
	}

	if b.due.IsEmpty() {
		return 0, b.dueGen
	}
	n, _ := b.due.Read(dst)
	return n, b.dueGen
}

// Reset discards all buffered audio and arms the buffer for a new generation.
// Called on reconnect so the tail of the previous session is never played.
func (b *TimedBuffer) Reset(generation uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks = nil
	b.due.Reset()
	b.generation = generation
	b.dueGen = generation
}

// Pending returns how many chunks are waiting for their play time
func (b *TimedBuffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}

// Dropped returns how many chunks were discarded as stale or late
func (b *TimedBuffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
