package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapforge/snapforged/internal/session"
)

func newTestHandle(t *testing.T, f *fakeFactory) *Handle {
	t.Helper()
	h := Create(f.New, nil)
	require.NotNil(t, h)
	return h
}

func TestHandleNilSafe(t *testing.T) {
	var h *Handle

	// Every operation must degrade gracefully on a nil handle
	assert.False(t, h.Start("server-a", 1704))
	h.Stop()
	h.Destroy()
	h.Pause()
	h.Resume()
	h.SetVolume(50)
	h.SetMuted(true)
	h.SetLatency(10)
	assert.Equal(t, uuid.Nil, h.ID())
	assert.Equal(t, StateDisconnected, h.State())
	assert.False(t, h.IsConnected())
	assert.False(t, h.IsPaused())
}

func TestHandleStartWhileRunning(t *testing.T) {
	f := &fakeFactory{}
	h := newTestHandle(t, f)
	defer h.Destroy()

	require.True(t, h.Start("server-a", 1704))
	require.Equal(t, StateConnected, h.State())

	// A second start on a live handle must be refused without touching the
	// session; otherwise it would dial a duplicate connection.
	assert.False(t, h.Start("server-b", 1704))
	assert.Equal(t, int32(1), f.runner(0).attempts.Load())
	assert.Equal(t, StateConnected, h.State())
}

func TestHandlePauseResumeContention(t *testing.T) {
	f := &fakeFactory{}
	h := newTestHandle(t, f)
	defer h.Destroy()
	require.True(t, h.Start("server-a", 1704))

	const workers = 8
	const flips = 400

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(pausing bool) {
			defer wg.Done()
			for j := 0; j < flips; j++ {
				if pausing {
					h.Pause()
				} else {
					h.Resume()
				}
				h.IsPaused()
			}
		}(i%2 == 0)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("contended pause/resume deadlocked")
	}

	// With the contention over, the last issued operation decides the state
	h.Pause()
	assert.True(t, h.IsPaused())
	h.Resume()
	assert.False(t, h.IsPaused())
}

func TestHandleCreateFailure(t *testing.T) {
	h := Create(func(session.Events) Runner { return nil }, nil)
	assert.Nil(t, h)
}

func TestHandleCallInAfterDestroyDropped(t *testing.T) {
	f := &fakeFactory{}
	h := newTestHandle(t, f)

	var mu sync.Mutex
	var calls int
	h.SetStateCallback(func(State) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	require.True(t, h.Start("server-a", 1704))
	r := f.runner(0)

	mu.Lock()
	before := calls
	mu.Unlock()
	require.Positive(t, before)

	h.Destroy()

	// A session goroutine firing after destroy must be silently dropped
	r.events.State(session.StatePlaying)
	r.events.Settings(session.Settings{Volume: 10})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, before, calls)
	assert.NotEqual(t, StatePlaying, h.State())
}

func TestHandleDestroyIdempotent(t *testing.T) {
	f := &fakeFactory{}
	h := newTestHandle(t, f)
	require.True(t, h.Start("server-a", 1704))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Destroy()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("concurrent Destroy deadlocked")
	}

	assert.True(t, f.runner(0).stopped.Load())
}

func TestHandleDestroyUnderCallInFire(t *testing.T) {
	f := &fakeFactory{}
	h := newTestHandle(t, f)
	h.SetStateCallback(func(State) {})
	require.True(t, h.Start("server-a", 1704))
	r := f.runner(0)

	// Hammer call-ins from several goroutines while destroy runs
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					r.events.State(session.StatePlaying)
					r.events.Settings(session.Settings{Volume: 50})
				}
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	h.Destroy()

	// After destroy returns no call-in can mutate the handle
	h.state.Store(int32(StateDisconnected))
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, StateDisconnected, h.State())

	close(stop)
	wg.Wait()
}

func TestHandleSettingsCached(t *testing.T) {
	f := &fakeFactory{}
	h := newTestHandle(t, f)
	require.True(t, h.Start("server-a", 1704))

	f.runner(0).events.Settings(session.Settings{Volume: 65, Muted: true, LatencyMs: 30})

	assert.Equal(t, 65, h.Volume())
	assert.True(t, h.Muted())
	assert.Equal(t, 30, h.Latency())

	h.Destroy()

	// Cached values survive destroy; live ones no longer flow
	assert.Equal(t, 65, h.Volume())
}
