package output

import "time"

// feedInterval is how often the feeder moves due audio from the timed
// buffer into the callback ring
const feedInterval = 10 * time.Millisecond

// ringCapacity is the callback ring depth in blocks
const ringCapacity = 64

// renderer holds the consumer-side playback state: the ring, the cell and
// the partially-played block. Only the output callback touches it, from a
// single thread, so no synchronization is needed beyond the ring and cell
// atomics.
type renderer struct {
	cell          *Cell
	ring          *frameRing
	current       *block
	bytesPerFrame int
}

// render fills out with due PCM. It reads the generation once per
// invocation and drops any queued block carrying an older tag; while the
// pause flag is set it keeps consuming queued audio at rate but writes
// silence. It never blocks and never allocates.
func (r *renderer) render(out []byte) {
	gen := r.cell.Generation()
	paused := r.cell.Paused()
	muted := r.cell.Muted()
	volume := r.cell.Volume()

	if r.current != nil && r.current.generation != gen {
		r.current = nil
	}

	n := 0
	for n < len(out) {
		if r.current == nil {
			r.current = r.ring.pop()
			if r.current == nil {
				break
			}
		}
		if r.current.generation != gen {
			r.current = nil
			continue
		}

		avail := len(r.current.pcm) - r.current.off
		want := len(out) - n
		if avail > want {
			avail = want
		}
		if !paused {
			copy(out[n:n+avail], r.current.pcm[r.current.off:r.current.off+avail])
		}
		r.current.off += avail
		n += avail
		if r.current.off == len(r.current.pcm) {
			r.current = nil
		}
	}

	if paused {
		zero(out)
		return
	}
	zero(out[n:])

	if muted {
		zero(out[:n])
	} else if volume < 100 {
		scaleS16(out[:n], volume)
	}

	if r.bytesPerFrame > 0 {
		r.cell.advanceCursor(int64(n / r.bytesPerFrame))
	}
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// scaleS16 applies a linear volume scale to interleaved 16-bit samples
func scaleS16(b []byte, percent int) {
	for i := 0; i+1 < len(b); i += 2 {
		s := int16(uint16(b[i]) | uint16(b[i+1])<<8)
		v := int32(s) * int32(percent) / 100
		b[i] = byte(uint16(v))
		b[i+1] = byte(uint16(v) >> 8)
	}
}
