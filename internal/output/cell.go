package output

import "sync/atomic"

// Cell is the audio-thread-resident state shared between the control plane
// and the hardware data callback. The callback reads it with atomic loads
// only and the control plane writes it with atomic stores only; neither side
// ever takes a lock the other could hold, so the callback can never be
// stalled by a teardown or a paused control-plane goroutine.
type Cell struct {
	generation atomic.Uint64
	paused     atomic.Bool
	cursor     atomic.Int64

	volume atomic.Int32 // 0-100
	muted  atomic.Bool
}

// NewCell returns a cell at generation 1 with full volume
func NewCell() *Cell {
	c := &Cell{}
	c.generation.Store(1)
	c.volume.Store(100)
	return c
}

// Generation returns the current session generation tag
func (c *Cell) Generation() uint64 {
	return c.generation.Load()
}

// BumpGeneration advances the generation tag, invalidating all audio
// buffered under earlier tags. Called on every connect and reset.
func (c *Cell) BumpGeneration() uint64 {
	c.cursor.Store(0)
	return c.generation.Add(1)
}

// Paused reports the pause flag
func (c *Cell) Paused() bool {
	return c.paused.Load()
}

// SetPaused sets the pause flag; while paused the callback keeps consuming
// input at rate but emits silence
func (c *Cell) SetPaused(paused bool) {
	c.paused.Store(paused)
}

// Cursor returns frames played in the current generation
func (c *Cell) Cursor() int64 {
	return c.cursor.Load()
}

func (c *Cell) advanceCursor(frames int64) {
	c.cursor.Add(frames)
}

// Volume returns the playback volume percentage
func (c *Cell) Volume() int {
	return int(c.volume.Load())
}

// SetVolume stores the playback volume, clamped to 0-100
func (c *Cell) SetVolume(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	c.volume.Store(int32(percent))
}

// Muted reports the mute flag
func (c *Cell) Muted() bool {
	return c.muted.Load()
}

// SetMuted stores the mute flag
func (c *Cell) SetMuted(muted bool) {
	c.muted.Store(muted)
}
