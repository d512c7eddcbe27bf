package output

import (
	"fmt"
	"sync"
	"time"

	"github.com/snapforge/snapforged/internal/decoder"
	"github.com/snapforge/snapforged/internal/stream"
)

// Stub is a playback sink without hardware: a ticker goroutine drives the
// same renderer the real device callback uses, consuming audio at the
// stream rate and discarding the samples. Used for --no-audio mode and for
// tests, so the whole pipeline above the device is exercised unchanged.
type Stub struct {
	cell *Cell

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewStub creates a stopped stub sink
func NewStub() *Stub {
	return &Stub{cell: NewCell()}
}

func (s *Stub) Start(format decoder.Format, src *stream.TimedBuffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("output already running")
	}

	ring := newFrameRing(ringCapacity)
	rdr := &renderer{
		cell:          s.cell,
		ring:          ring,
		bytesPerFrame: format.Channels * 2,
	}

	s.stopCh = make(chan struct{})
	s.running = true
	stopCh := s.stopCh

	chunkBytes := format.SampleRate * format.Channels * 2 * int(feedInterval/time.Millisecond) / 1000
	if chunkBytes < 4 {
		chunkBytes = 4
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		feedBuf := make([]byte, chunkBytes*2)
		out := make([]byte, chunkBytes)

		ticker := time.NewTicker(feedInterval)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				return
			case now := <-ticker.C:
				if n, gen := src.ReadDue(feedBuf, now); n > 0 {
					pcm := make([]byte, n)
					copy(pcm, feedBuf[:n])
					ring.push(&block{generation: gen, pcm: pcm})
				}
				rdr.render(out)
			}
		}
	}()

	return nil
}

func (s *Stub) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.wg.Wait()
	return nil
}

// Close is a no-op; the stub holds no backend resources
func (s *Stub) Close() {}

func (s *Stub) Pause(paused bool)      { s.cell.SetPaused(paused) }
func (s *Stub) Paused() bool           { return s.cell.Paused() }
func (s *Stub) BumpGeneration() uint64 { return s.cell.BumpGeneration() }
func (s *Stub) Generation() uint64     { return s.cell.Generation() }
func (s *Stub) SetVolume(percent int)  { s.cell.SetVolume(percent) }
func (s *Stub) SetMuted(muted bool)    { s.cell.SetMuted(muted) }

// Cell exposes the callback cell for tests
func (s *Stub) Cell() *Cell { return s.cell }
