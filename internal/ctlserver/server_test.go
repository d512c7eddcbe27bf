package ctlserver

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapforge/snapforged/internal/engine"
	"github.com/snapforge/snapforged/internal/session"
)

type nopRunner struct {
	connected atomic.Bool
	paused    atomic.Bool
	events    session.Events
}

func (r *nopRunner) Start(host string, port int) error {
	r.connected.Store(true)
	if r.events.State != nil {
		r.events.State(session.StateConnected)
	}
	return nil
}

func (r *nopRunner) Stop()             { r.connected.Store(false) }
func (r *nopRunner) IsConnected() bool { return r.connected.Load() }
func (r *nopRunner) Pause()            { r.paused.Store(true) }
func (r *nopRunner) Resume()           { r.paused.Store(false) }
func (r *nopRunner) IsPaused() bool    { return r.paused.Load() }
func (r *nopRunner) SetVolume(int)     {}
func (r *nopRunner) SetMuted(bool)     {}
func (r *nopRunner) SetLatency(int)    {}

func newTestServer(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()
	eng := engine.New(engine.Options{
		Factory: func(events session.Events) engine.Runner {
			return &nopRunner{events: events}
		},
	})
	t.Cleanup(func() { eng.Close(time.Second) })
	return NewServer("127.0.0.1:0", eng), eng
}

func TestHandleCommandPing(t *testing.T) {
	s, _ := newTestServer(t)
	assert.Equal(t, "OK\n", s.handleCommand("ping"))
}

func TestHandleCommandUnknown(t *testing.T) {
	s, _ := newTestServer(t)
	assert.Equal(t, "ACK [5@0] {bogus} unknown command\n", s.handleCommand("bogus"))
}

func TestHandleCommandStatus(t *testing.T) {
	s, _ := newTestServer(t)

	resp := s.handleCommand("status")
	assert.Contains(t, resp, "state: disconnected\n")
	assert.Contains(t, resp, "volume: 100\n")
	assert.Contains(t, resp, "muted: 0\n")
	assert.Contains(t, resp, "paused: 0\n")
	assert.Contains(t, resp, "OK\n")
	assert.NotContains(t, resp, "server:")
}

func TestHandleCommandConnectDisconnect(t *testing.T) {
	s, eng := newTestServer(t)

	assert.Equal(t, "OK\n", s.handleCommand("connect music.local 1704"))
	require.Eventually(t, func() bool {
		return eng.State() == engine.StateConnected
	}, time.Second, 5*time.Millisecond)

	resp := s.handleCommand("status")
	assert.Contains(t, resp, "state: connected\n")
	assert.Contains(t, resp, "server: music.local:1704\n")

	assert.Equal(t, "OK\n", s.handleCommand("disconnect"))
	assert.Empty(t, eng.Target())
}

func TestHandleCommandConnectValidation(t *testing.T) {
	s, _ := newTestServer(t)

	assert.Equal(t, "ACK [2@0] {connect} missing host\n", s.handleCommand("connect"))
	assert.Equal(t, "ACK [2@0] {connect} invalid port\n", s.handleCommand("connect host notaport"))
	assert.Equal(t, "ACK [2@0] {connect} invalid port\n", s.handleCommand("connect host 70000"))
}

func TestHandleCommandVolume(t *testing.T) {
	s, eng := newTestServer(t)

	assert.Equal(t, "volume: 100\nOK\n", s.handleCommand("volume"))
	assert.Equal(t, "OK\n", s.handleCommand("volume 42"))
	assert.Equal(t, 42, eng.Volume())
	assert.Equal(t, "ACK [2@0] {volume} invalid volume\n", s.handleCommand("volume 101"))
	assert.Equal(t, "ACK [2@0] {volume} invalid volume\n", s.handleCommand("volume loud"))
}

func TestHandleCommandMute(t *testing.T) {
	s, eng := newTestServer(t)

	assert.Equal(t, "muted: 0\nOK\n", s.handleCommand("mute"))
	assert.Equal(t, "OK\n", s.handleCommand("mute 1"))
	assert.True(t, eng.Muted())
	assert.Equal(t, "OK\n", s.handleCommand("mute 0"))
	assert.False(t, eng.Muted())
	assert.Equal(t, "ACK [2@0] {mute} invalid argument\n", s.handleCommand("mute yes"))
}

func TestHandleCommandPauseToggle(t *testing.T) {
	s, eng := newTestServer(t)

	s.handleCommand("connect music.local")
	require.Eventually(t, func() bool {
		return eng.State() == engine.StateConnected
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, "OK\n", s.handleCommand("pause"))
	assert.True(t, eng.IsPaused())
	assert.Equal(t, "OK\n", s.handleCommand("pause"))
	assert.False(t, eng.IsPaused())

	assert.Equal(t, "OK\n", s.handleCommand("pause 1"))
	assert.True(t, eng.IsPaused())
	assert.Equal(t, "OK\n", s.handleCommand("resume"))
	assert.False(t, eng.IsPaused())
	assert.Equal(t, "ACK [2@0] {pause} invalid argument\n", s.handleCommand("pause 2"))
}

func TestHandleCommandLatency(t *testing.T) {
	s, eng := newTestServer(t)

	assert.Equal(t, "latency: 0\nOK\n", s.handleCommand("latency"))
	assert.Equal(t, "OK\n", s.handleCommand("latency 150"))
	assert.Equal(t, 150, eng.Latency())
	assert.Equal(t, "ACK [2@0] {latency} invalid latency\n", s.handleCommand("latency 999999"))
}

func TestHandleCommandDiag(t *testing.T) {
	s, _ := newTestServer(t)

	resp := s.handleCommand("diag")
	assert.Contains(t, resp, "state: disconnected\n")
	assert.Contains(t, resp, "zombies: 0\n")
	assert.Contains(t, resp, "stop_hanging: 0\n")
}

func TestHandleCommandClose(t *testing.T) {
	s, _ := newTestServer(t)
	assert.Empty(t, s.handleCommand("close"))
}
