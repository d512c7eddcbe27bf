// Package engine owns the lifecycle of the playback session: which server is
// the current target, how a superseded session is retired, and how callbacks
// from session goroutines are kept away from handles being destroyed. Every
// public method returns promptly; anything that can block runs on a
// background goroutine.
package engine

import (
	"log"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/snapforge/snapforged/internal/metrics"
)

const (
	// DefaultStopTimeout bounds how long a retiring session's stop may run
	// before its teardown is detached to the zombie registry.
	DefaultStopTimeout = 400 * time.Millisecond

	// DefaultZombieGrace is how long a detached teardown may keep draining
	// before diagnostics flag it as hanging.
	DefaultZombieGrace = 5 * time.Second
)

// Options configures an Engine. Factory is required; zero durations take the
// package defaults and a nil Metrics disables instrumentation.
type Options struct {
	Factory     SessionFactory
	Metrics     *metrics.Metrics
	StopTimeout time.Duration
	ZombieGrace time.Duration
}

// Engine holds at most one active handle. Start and Stop swap that handle
// under a mutex held only for the swap itself; the old handle's blocking
// teardown always happens off to the side.
type Engine struct {
	opts    Options
	zombies *zombieRegistry
	closed  atomic.Bool

	// desired settings, applied to every new handle
	volume  atomic.Int32
	muted   atomic.Bool
	latency atomic.Int32

	mu         sync.Mutex
	active     *Handle
	target     string
	stateCb    StateCallback
	settingsCb SettingsCallback
}

func New(opts Options) *Engine {
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if opts.ZombieGrace <= 0 {
		opts.ZombieGrace = DefaultZombieGrace
	}
	e := &Engine{
		opts:    opts,
		zombies: newZombieRegistry(opts.ZombieGrace, opts.Metrics),
	}
	e.volume.Store(100)
	return e
}

// SetStateCallback registers the hook that observes the active session's
// transitions. Notifications from retired sessions never reach it.
func (e *Engine) SetStateCallback(cb StateCallback) {
	e.mu.Lock()
	e.stateCb = cb
	e.mu.Unlock()
}

func (e *Engine) SetSettingsCallback(cb SettingsCallback) {
	e.mu.Lock()
	e.settingsCb = cb
	e.mu.Unlock()
}

// Start makes host:port the current target. Any previous session is retired
// in the background; the connection attempt also runs in the background, and
// if a later Start or Stop supersedes it, its outcome is discarded. Returns
// promptly in all cases.
func (e *Engine) Start(host string, port int) {
	if e.closed.Load() {
		return
	}
	target := net.JoinHostPort(host, strconv.Itoa(port))

	h := Create(e.opts.Factory, e.opts.Metrics)
	if h == nil {
		log.Printf("Could not create session for %s", target)
		return
	}
	h.SetStateCallback(func(s State) { e.onHandleState(h, s) })
	h.SetSettingsCallback(func(volume int, muted bool, latencyMs int) {
		e.onHandleSettings(h, volume, muted, latencyMs)
	})
	h.SetVolume(int(e.volume.Load()))
	h.SetMuted(e.muted.Load())
	h.SetLatency(int(e.latency.Load()))

	e.mu.Lock()
	if e.closed.Load() {
		// Close raced past the check above; never install a handle after it
		e.mu.Unlock()
		go e.retire(h)
		return
	}
	old := e.active
	e.active = h
	e.target = target
	e.mu.Unlock()

	if old != nil {
		go e.retire(old)
	}

	go func() {
		ok := h.Start(host, port)
		if !e.isActive(h) {
			// A later request won while we were connecting. The superseding
			// call already owns this handle's retirement; just drop the result.
			e.opts.Metrics.IncStaleCompletions()
			return
		}
		if !ok {
			log.Printf("Connection to %s failed", target)
		}
	}()
}

// Stop retires the current session, if any. Returns promptly; the teardown
// runs in the background and is bounded by the stop timeout before being
// detached.
func (e *Engine) Stop() {
	e.mu.Lock()
	old := e.active
	e.active = nil
	e.target = ""
	e.mu.Unlock()

	if old != nil {
		go e.retire(old)
	}
}

// retire stops and destroys a handle that is no longer the active target.
// When the stop exceeds the stop timeout the teardown is handed to the
// zombie registry and this returns without it.
func (e *Engine) retire(h *Handle) {
	done := make(chan struct{})
	go func() {
		h.Stop()
		h.Destroy()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(e.opts.StopTimeout):
		e.zombies.adopt(h.ID(), done)
	}
}

func (e *Engine) isActive(h *Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active != nil && e.active.ID() == h.ID()
}

func (e *Engine) handle() *Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// State reports the active session's lifecycle state; StateDisconnected when
// there is no target.
func (e *Engine) State() State {
	return e.handle().State()
}

// Target reports the current server address, empty when stopped.
func (e *Engine) Target() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.target
}

func (e *Engine) IsConnected() bool {
	return e.handle().IsConnected()
}

// Pause silences output while keeping the stream consumed at rate, so Resume
// picks up at the live position. Idempotent.
func (e *Engine) Pause() {
	e.handle().Pause()
}

// Resume undoes Pause. Idempotent.
func (e *Engine) Resume() {
	e.handle().Resume()
}

func (e *Engine) IsPaused() bool {
	return e.handle().IsPaused()
}

func (e *Engine) SetVolume(percent int) {
	if percent < 0 {
		percent = 0
	} else if percent > 100 {
		percent = 100
	}
	e.volume.Store(int32(percent))
	e.handle().SetVolume(percent)
}

func (e *Engine) Volume() int {
	if h := e.handle(); h != nil {
		return h.Volume()
	}
	return int(e.volume.Load())
}

func (e *Engine) SetMuted(muted bool) {
	e.muted.Store(muted)
	e.handle().SetMuted(muted)
}

func (e *Engine) Muted() bool {
	if h := e.handle(); h != nil {
		return h.Muted()
	}
	return e.muted.Load()
}

func (e *Engine) SetLatency(ms int) {
	e.latency.Store(int32(ms))
	e.handle().SetLatency(ms)
}

func (e *Engine) Latency() int {
	if h := e.handle(); h != nil {
		return h.Latency()
	}
	return int(e.latency.Load())
}

// Diagnostics snapshots engine health. It takes only the swap mutex and the
// registry mutex, so it stays responsive while teardowns hang.
func (e *Engine) Diagnostics() Diagnostics {
	e.mu.Lock()
	target := e.target
	h := e.active
	e.mu.Unlock()

	return Diagnostics{
		State:           h.State(),
		ActiveTarget:    target,
		ActiveZombies:   e.zombies.count(),
		StopTaskHanging: e.zombies.hanging(),
	}
}

// Drain waits until every detached teardown has finished, up to timeout.
func (e *Engine) Drain(timeout time.Duration) bool {
	return e.zombies.drain(timeout)
}

// Close stops the active session and waits out all teardowns, detached ones
// included. After Close the engine accepts no further Start calls.
func (e *Engine) Close(timeout time.Duration) bool {
	e.closed.Store(true)

	e.mu.Lock()
	old := e.active
	e.active = nil
	e.target = ""
	e.mu.Unlock()

	deadline := time.Now().Add(timeout)
	if old != nil {
		done := make(chan struct{})
		go func() {
			old.Stop()
			old.Destroy()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(timeout):
			e.zombies.adopt(old.ID(), done)
		}
	}

	remaining := time.Until(deadline)
	if remaining < 0 {
		remaining = 0
	}
	return e.zombies.drain(remaining)
}

// onHandleState forwards a transition to the engine-level callback, but only
// while h is still the active handle; completions of superseded sessions are
// discarded here.
func (e *Engine) onHandleState(h *Handle, s State) {
	e.mu.Lock()
	current := e.active != nil && e.active.ID() == h.ID()
	cb := e.stateCb
	e.mu.Unlock()

	if !current {
		e.opts.Metrics.IncStaleCompletions()
		return
	}
	if cb != nil {
		cb(s)
	}
}

func (e *Engine) onHandleSettings(h *Handle, volume int, muted bool, latencyMs int) {
	e.mu.Lock()
	current := e.active != nil && e.active.ID() == h.ID()
	cb := e.settingsCb
	e.mu.Unlock()

	if !current {
		return
	}
	e.volume.Store(int32(volume))
	e.muted.Store(muted)
	if cb != nil {
		cb(volume, muted, latencyMs)
	}
}
