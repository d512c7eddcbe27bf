package engine

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/snapforge/snapforged/internal/metrics"
	"github.com/snapforge/snapforged/internal/session"
)

// Runner is the slice of a stream session a handle drives. *session.Session
// satisfies it; tests substitute slow or failing fakes.
type Runner interface {
	Start(host string, port int) error
	Stop()
	IsConnected() bool
	Pause()
	Resume()
	IsPaused() bool
	SetVolume(percent int)
	SetMuted(muted bool)
	SetLatency(ms int)
}

var _ Runner = (*session.Session)(nil)

// SessionFactory builds the runner a handle owns. The events hooks it is
// given are the only path by which the runner may call back into the handle.
type SessionFactory func(events session.Events) Runner

// Handle owns exactly one session for its whole lifetime and is the only
// thing above the session layer allowed to touch it. Every callback from the
// session's goroutines passes through the handle's admission gate, so once
// Destroy returns nothing can reach the handle or its callbacks again.
//
// All methods are safe on a nil receiver and after Destroy; they degrade to
// no-ops or zero values.
type Handle struct {
	id    uuid.UUID
	guard callGuard
	met   *metrics.Metrics

	destroyed atomic.Bool
	state     atomic.Int32

	// server-pushed settings, cached so reads never touch the session
	volume  atomic.Int32
	muted   atomic.Bool
	latency atomic.Int32

	mu         sync.Mutex
	sess       Runner
	stateCb    StateCallback
	settingsCb SettingsCallback
}

// Create builds a handle around a fresh session. It returns nil when the
// factory cannot produce a runner; callers must tolerate a nil handle.
func Create(factory SessionFactory, met *metrics.Metrics) *Handle {
	h := &Handle{
		id:  uuid.New(),
		met: met,
	}
	h.volume.Store(100)
	sess := factory(session.Events{
		State:    h.onSessionState,
		Settings: h.onSessionSettings,
	})
	if sess == nil {
		return nil
	}
	h.sess = sess
	return h
}

// ID is the handle's identity; the engine compares identities, never pointers
// it got back from callbacks, to decide whether a completion is stale.
func (h *Handle) ID() uuid.UUID {
	if h == nil {
		return uuid.Nil
	}
	return h.id
}

func (h *Handle) State() State {
	if h == nil {
		return StateDisconnected
	}
	return State(h.state.Load())
}

// SetStateCallback registers the transition hook. Must be set before Start;
// replacing it later races with in-flight notifications.
func (h *Handle) SetStateCallback(cb StateCallback) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.stateCb = cb
	h.mu.Unlock()
}

func (h *Handle) SetSettingsCallback(cb SettingsCallback) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.settingsCb = cb
	h.mu.Unlock()
}

// Start connects the session. Blocking; the engine runs it on a background
// goroutine. Reports whether the connection came up; returns false when the
// handle is already connecting or connected.
func (h *Handle) Start(host string, port int) bool {
	if h == nil || h.destroyed.Load() {
		return false
	}
	if !h.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		// already running; the session would double-connect
		return false
	}
	h.notifyState(StateConnecting)

	h.mu.Lock()
	sess := h.sess
	h.mu.Unlock()
	if sess == nil {
		h.setState(StateDisconnected)
		return false
	}
	if err := sess.Start(host, port); err != nil {
		h.setState(StateDisconnected)
		return false
	}
	// the session reports StateConnected itself through the events hook
	return true
}

// Stop tears the session down. Blocking; bounded by the engine's stop
// timeout, not here.
func (h *Handle) Stop() {
	if h == nil {
		return
	}
	h.mu.Lock()
	sess := h.sess
	h.mu.Unlock()
	if sess != nil {
		sess.Stop()
	}
	h.state.Store(int32(StateDisconnected))
}

// Destroy closes the admission gate, waits out call-ins already inside, then
// releases the session. Idempotent; concurrent destroys both return only
// after the handle has quiesced.
func (h *Handle) Destroy() {
	if h == nil {
		return
	}
	if !h.destroyed.CompareAndSwap(false, true) {
		h.guard.beginDestroy()
		return
	}
	h.guard.beginDestroy()

	h.mu.Lock()
	sess := h.sess
	h.sess = nil
	h.stateCb = nil
	h.settingsCb = nil
	h.mu.Unlock()

	if sess != nil {
		sess.Stop()
	}
}

func (h *Handle) IsConnected() bool {
	if h == nil || h.destroyed.Load() {
		return false
	}
	h.mu.Lock()
	sess := h.sess
	h.mu.Unlock()
	return sess != nil && sess.IsConnected()
}

func (h *Handle) Pause() {
	if sess := h.runner(); sess != nil {
		sess.Pause()
	}
}

func (h *Handle) Resume() {
	if sess := h.runner(); sess != nil {
		sess.Resume()
	}
}

func (h *Handle) IsPaused() bool {
	if sess := h.runner(); sess != nil {
		return sess.IsPaused()
	}
	return false
}

func (h *Handle) SetVolume(percent int) {
	if percent < 0 {
		percent = 0
	} else if percent > 100 {
		percent = 100
	}
	if h == nil {
		return
	}
	h.volume.Store(int32(percent))
	if sess := h.runner(); sess != nil {
		sess.SetVolume(percent)
	}
}

func (h *Handle) Volume() int {
	if h == nil {
		return 0
	}
	return int(h.volume.Load())
}

func (h *Handle) SetMuted(muted bool) {
	if h == nil {
		return
	}
	h.muted.Store(muted)
	if sess := h.runner(); sess != nil {
		sess.SetMuted(muted)
	}
}

func (h *Handle) Muted() bool {
	return h != nil && h.muted.Load()
}

func (h *Handle) SetLatency(ms int) {
	if h == nil {
		return
	}
	h.latency.Store(int32(ms))
	if sess := h.runner(); sess != nil {
		sess.SetLatency(ms)
	}
}

func (h *Handle) Latency() int {
	if h == nil {
		return 0
	}
	return int(h.latency.Load())
}

func (h *Handle) runner() Runner {
	if h == nil || h.destroyed.Load() {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sess
}

// onSessionState is a call-in: it runs on a session goroutine and must pass
// the gate before touching the handle.
func (h *Handle) onSessionState(st session.State) {
	if !h.guard.enter() {
		h.met.IncDroppedCallIns()
		return
	}
	defer h.guard.exit()

	var s State
	switch st {
	case session.StateConnected:
		s = StateConnected
	case session.StatePlaying:
		s = StatePlaying
	default:
		s = StateDisconnected
	}
	h.setState(s)
}

func (h *Handle) onSessionSettings(st session.Settings) {
	if !h.guard.enter() {
		h.met.IncDroppedCallIns()
		return
	}
	defer h.guard.exit()

	h.volume.Store(int32(st.Volume))
	h.muted.Store(st.Muted)
	h.latency.Store(int32(st.LatencyMs))

	h.mu.Lock()
	cb := h.settingsCb
	h.mu.Unlock()
	if cb != nil {
		cb(st.Volume, st.Muted, st.LatencyMs)
	}
}

func (h *Handle) setState(s State) {
	h.state.Store(int32(s))
	h.notifyState(s)
}

func (h *Handle) notifyState(s State) {
	h.mu.Lock()
	cb := h.stateCb
	h.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}
