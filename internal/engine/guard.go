package engine

import (
	"runtime"
	"sync/atomic"
	"time"
)

// callGuard admits callbacks arriving from the session's own goroutines into
// a handle, and lets teardown wait for the ones already inside. It is a gate,
// not a lock: enter and exit are a pair of atomic operations, so callbacks on
// the audio and network paths never contend on a mutex with the goroutine
// running teardown.
type callGuard struct {
	inflight atomic.Int64
	closed   atomic.Bool
}

// enter admits a call-in. It reports false once beginDestroy has run, and the
// caller must then drop the call without touching the handle.
func (g *callGuard) enter() bool {
	if g.closed.Load() {
		return false
	}
	g.inflight.Add(1)
	// Re-check after publishing: beginDestroy may have flipped closed between
	// the first load and the increment, and it only waits on counts it can see.
	if g.closed.Load() {
		g.inflight.Add(-1)
		return false
	}
	return true
}

func (g *callGuard) exit() {
	g.inflight.Add(-1)
}

// beginDestroy closes the gate and blocks until every admitted call-in has
// exited. Call-ins are short (they copy state and fire a callback), so the
// wait spins briefly before backing off to a sleep.
func (g *callGuard) beginDestroy() {
	if !g.closed.CompareAndSwap(false, true) {
		// Another destroyer closed the gate; still wait for drainage so both
		// callers observe a quiesced handle.
	}
	for i := 0; g.inflight.Load() > 0; i++ {
		if i < 64 {
			runtime.Gosched()
		} else {
			time.Sleep(100 * time.Microsecond)
		}
	}
}
