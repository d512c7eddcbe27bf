package output

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCellDefaults(t *testing.T) {
	t.Parallel()
	c := NewCell()

	assert.Equal(t, uint64(1), c.Generation())
	assert.Equal(t, 100, c.Volume())
	assert.False(t, c.Paused())
	assert.False(t, c.Muted())
	assert.Zero(t, c.Cursor())
}

func TestCellBumpGenerationResetsCursor(t *testing.T) {
	t.Parallel()
	c := NewCell()

	c.advanceCursor(4800)
	assert.Equal(t, int64(4800), c.Cursor())

	gen := c.BumpGeneration()
	assert.Equal(t, uint64(2), gen)
	assert.Zero(t, c.Cursor())

	assert.Equal(t, uint64(3), c.BumpGeneration())
}

func TestCellVolumeClamped(t *testing.T) {
	t.Parallel()
	c := NewCell()

	c.SetVolume(250)
	assert.Equal(t, 100, c.Volume())
	c.SetVolume(-1)
	assert.Equal(t, 0, c.Volume())
	c.SetVolume(73)
	assert.Equal(t, 73, c.Volume())
}

func TestCellFlags(t *testing.T) {
	t.Parallel()
	c := NewCell()

	c.SetPaused(true)
	c.SetMuted(true)
	assert.True(t, c.Paused())
	assert.True(t, c.Muted())

	c.SetPaused(false)
	c.SetMuted(false)
	assert.False(t, c.Paused())
	assert.False(t, c.Muted())
}
