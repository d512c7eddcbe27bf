// Package ctlserver exposes a line-oriented control protocol over TCP, the
// local surface CLIs and scripts use to drive the daemon.
package ctlserver

import (
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/snapforge/snapforged/internal/engine"
)

// Pusher propagates settings changes upstream so the server and its other
// clients see them. Optional; a nil pusher keeps changes local.
type Pusher interface {
	SetVolume(clientID string, percent int, muted bool) error
	SetLatency(clientID string, ms int) error
}

// Server implements the control protocol server
type Server struct {
	mu       sync.Mutex
	listener net.Listener
	engine   *engine.Engine
	addr     string
	running  bool

	pushMu   sync.Mutex
	pusher   Pusher
	clientID string

	// connections parked in idle mode
	idleMu   sync.RWMutex
	watchers map[*watcher]struct{}
}

// NewServer creates a new control protocol server
func NewServer(addr string, e *engine.Engine) *Server {
	return &Server{
		addr:     addr,
		engine:   e,
		watchers: make(map[*watcher]struct{}),
	}
}

// SetPusher attaches the upstream control channel used to mirror volume and
// latency changes to the server.
func (s *Server) SetPusher(p Pusher, clientID string) {
	s.pushMu.Lock()
	s.pusher = p
	s.clientID = clientID
	s.pushMu.Unlock()
}

func (s *Server) pushVolume(percent int, muted bool) {
	s.pushMu.Lock()
	p, id := s.pusher, s.clientID
	s.pushMu.Unlock()
	if p == nil {
		return
	}
	if err := p.SetVolume(id, percent, muted); err != nil {
		log.Printf("Failed to push volume to server: %v", err)
	}
}

func (s *Server) pushLatency(ms int) {
	s.pushMu.Lock()
	p, id := s.pusher, s.clientID
	s.pushMu.Unlock()
	if p == nil {
		return
	}
	if err := p.SetLatency(id, ms); err != nil {
		log.Printf("Failed to push latency to server: %v", err)
	}
}

// Start starts the control server
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to start control server: %w", err)
	}

	s.listener = listener
	s.running = true

	log.Printf("Control server listening on %s", s.addr)

	go s.acceptLoop()

	return nil
}

// Stop stops the control server
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.running = false
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// acceptLoop accepts incoming connections
func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			running := s.running
			s.mu.Unlock()
			if !running {
				return
			}
			log.Printf("Accept error: %v", err)
			continue
		}

		go s.handleConnection(conn)
	}
}
