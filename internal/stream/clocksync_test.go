package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClockSyncEmpty(t *testing.T) {
	t.Parallel()
	c := NewClockSync()

	assert.Zero(t, c.Offset())
	assert.False(t, c.Synchronized())
}

func TestClockSyncOffsetEstimate(t *testing.T) {
	t.Parallel()
	c := NewClockSync()

	// Server clock 100ms ahead, symmetric 10ms round trips:
	// c2s = offset + rtt/2 = 105ms
	for i := 0; i < 5; i++ {
		c.AddMeasurement(105*time.Millisecond, 10*time.Millisecond)
	}

	assert.Equal(t, 100*time.Millisecond, c.Offset())
	assert.True(t, c.Synchronized())
}

func TestClockSyncMedianRejectsSpikes(t *testing.T) {
	t.Parallel()
	c := NewClockSync()

	for i := 0; i < 9; i++ {
		c.AddMeasurement(105*time.Millisecond, 10*time.Millisecond)
	}
	// One exchange hit a congested path
	c.AddMeasurement(400*time.Millisecond, 600*time.Millisecond)

	assert.Equal(t, 100*time.Millisecond, c.Offset())
}

func TestClockSyncIgnoresNegativeRTT(t *testing.T) {
	t.Parallel()
	c := NewClockSync()

	c.AddMeasurement(50*time.Millisecond, -time.Millisecond)
	assert.Zero(t, c.Offset())
	assert.False(t, c.Synchronized())
}

func TestClockSyncWindowSlides(t *testing.T) {
	t.Parallel()
	c := NewClockSync()

	// Fill the window with an old offset, then drift to a new one; the
	// estimate must follow once the new samples dominate.
	for i := 0; i < clockWindow; i++ {
		c.AddMeasurement(105*time.Millisecond, 10*time.Millisecond)
	}
	for i := 0; i < clockWindow; i++ {
		c.AddMeasurement(25*time.Millisecond, 10*time.Millisecond)
	}

	assert.Equal(t, 20*time.Millisecond, c.Offset())
}

func TestServerToLocal(t *testing.T) {
	t.Parallel()
	c := NewClockSync()

	// Server 1s ahead of local
	for i := 0; i < 5; i++ {
		c.AddMeasurement(time.Second, 0)
	}

	serverTime := 10 * time.Second
	local := c.ServerToLocal(serverTime)
	assert.Equal(t, time.Unix(9, 0), local)
}
