package session

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/snapforge/snapforged/internal/decoder"
	"github.com/snapforge/snapforged/internal/protocol"
	"github.com/snapforge/snapforged/internal/stream"
)

// State is the session's own view of connectivity
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StatePlaying
)

// Settings mirrors the server's per-client playback settings
type Settings struct {
	Volume    int
	Muted     bool
	LatencyMs int
	BufferMs  int
}

// Events are the call-ins the session makes into its owner. Both run on
// session-internal goroutines; the owner is responsible for guarding them
// against its own teardown.
type Events struct {
	State    func(State)
	Settings func(Settings)
}

// Output is the playback sink the session renders into. The session owns it
// for its whole life and closes it on Stop.
type Output interface {
	Start(format decoder.Format, src *stream.TimedBuffer) error
	Stop() error
	Close()
	Pause(paused bool)
	Paused() bool
	BumpGeneration() uint64
	Generation() uint64
	SetVolume(percent int)
	SetMuted(muted bool)
}

// Config identifies this client to the server
type Config struct {
	Name     string
	ID       string
	Instance int
	BufferMs int // initial buffer until the server announces its own
}

const (
	dialTimeout      = 5 * time.Second
	timeSyncInterval = time.Second
	defaultBufferMs  = 1000
)

// Session speaks the stream protocol to one server: it dials, performs the
// hello handshake, then runs a reader goroutine and a time-sync goroutine
// until stopped. Decoded audio flows into a timed buffer the output drains.
type Session struct {
	cfg    Config
	out    Output
	events Events

	mu   sync.Mutex
	conn net.Conn
	wg   sync.WaitGroup

	writeMu sync.Mutex // serializes frame writes from both loops

	running   atomic.Bool
	connected atomic.Bool
	playing   atomic.Bool
	stopped   atomic.Bool
	stopCh    chan struct{}

	clock *stream.ClockSync
	buf   *stream.TimedBuffer
	gen   uint64

	bufferMs  atomic.Int32
	latencyMs atomic.Int32

	msgID atomic.Uint32

	// outstanding time exchanges by message id
	timeMu   sync.Mutex
	timeSent map[uint16]time.Time
}

// New creates a session bound to an output sink
func New(cfg Config, out Output, events Events) *Session {
	if cfg.BufferMs == 0 {
		cfg.BufferMs = defaultBufferMs
	}
	s := &Session{
		cfg:      cfg,
		out:      out,
		events:   events,
		clock:    stream.NewClockSync(),
		timeSent: make(map[uint16]time.Time),
		stopCh:   make(chan struct{}),
	}
	s.bufferMs.Store(int32(cfg.BufferMs))
	return s
}

// Start dials the server, performs the handshake and launches the reader
// and time-sync loops. Blocking; run it off the caller's context. Fails if
// the session is already running or has been stopped.
func (s *Session) Start(host string, port int) error {
	if s.stopped.Load() {
		return fmt.Errorf("session already stopped")
	}
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("session already running")
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	hostname, _ := os.Hostname()
	hello := &protocol.Hello{
		MAC:             "00:00:00:00:00:00",
		HostName:        hostname,
		Version:         Version,
		ClientName:      s.cfg.Name,
		OS:              runtime.GOOS,
		Arch:            runtime.GOARCH,
		Instance:        s.cfg.Instance,
		ID:              s.cfg.ID,
		ProtocolVersion: ProtocolVersion,
	}
	payload, err := hello.Encode()
	if err != nil {
		conn.Close()
		s.running.Store(false)
		return err
	}
	if err := protocol.WriteMessage(conn, protocol.TypeHello, uint16(s.msgID.Add(1)), 0, payload); err != nil {
		conn.Close()
		s.running.Store(false)
		return fmt.Errorf("handshake failed: %w", err)
	}

	// new generation so anything buffered from a previous run is dead
	s.gen = s.out.BumpGeneration()
	s.buf = stream.NewTimedBuffer(s.gen)

	s.mu.Lock()
	if s.stopped.Load() {
		// Stop raced the dial; hand the connection straight back.
		s.mu.Unlock()
		conn.Close()
		return fmt.Errorf("session stopped during connect to %s", addr)
	}
	// conn and the loop count must publish together, so a Stop landing after
	// this section both sees the connection and waits for the loops
	s.conn = conn
	s.wg.Add(2)
	s.mu.Unlock()

	s.connected.Store(true)
	s.notifyState(StateConnected)

	go s.readerLoop(conn)
	go s.timeLoop(conn)

	return nil
}

// Stop closes the connection and joins both loops. May block for as long
// as the loops take to unwind; callers bound it themselves.
func (s *Session) Stop() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	close(s.stopCh)

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	s.wg.Wait()

	if err := s.out.Stop(); err != nil {
		log.Printf("Error stopping output: %v", err)
	}
	s.out.Close()
}

// IsConnected reports whether the stream connection is up
func (s *Session) IsConnected() bool {
	return s.connected.Load()
}

// Pause silences output without interrupting the stream
func (s *Session) Pause() {
	s.out.Pause(true)
}

// Resume lifts a pause
func (s *Session) Resume() {
	s.out.Pause(false)
}

// IsPaused reports the output pause flag
func (s *Session) IsPaused() bool {
	return s.out.Paused()
}

// SetVolume forwards the cached volume to the output
func (s *Session) SetVolume(percent int) {
	s.out.SetVolume(percent)
}

// SetMuted forwards the cached mute flag to the output
func (s *Session) SetMuted(muted bool) {
	s.out.SetMuted(muted)
}

// SetLatency adjusts the extra client latency applied to chunk scheduling
func (s *Session) SetLatency(ms int) {
	s.latencyMs.Store(int32(ms))
}

func (s *Session) notifyState(st State) {
	if s.events.State != nil {
		s.events.State(st)
	}
}

// readerLoop dispatches inbound frames until the connection dies
func (s *Session) readerLoop(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.connected.Store(false)
		s.playing.Store(false)
		s.notifyState(StateDisconnected)
	}()

	r := bufio.NewReaderSize(conn, 64*1024)
	var dec decoder.Decoder
	defer func() {
		if dec != nil {
			dec.Close()
		}
	}()

	for {
		msg, err := protocol.ReadMessage(r)
		if err != nil {
			if !s.stopped.Load() {
				log.Printf("Stream read error: %v", err)
			}
			return
		}

		switch msg.Header.Type {
		case protocol.TypeCodecHeader:
			if dec != nil {
				dec.Close()
			}
			dec, err = s.handleCodecHeader(msg.Payload)
			if err != nil {
				log.Printf("Codec setup failed: %v", err)
				return
			}

		case protocol.TypeWireChunk:
			if dec == nil {
				continue
			}
			if err := s.handleChunk(dec, msg.Payload); err != nil {
				log.Printf("Chunk decode failed: %v", err)
				continue
			}
			if s.playing.CompareAndSwap(false, true) {
				s.notifyState(StatePlaying)
			}

		case protocol.TypeServerSettings:
			s.handleServerSettings(msg.Payload)

		case protocol.TypeTime:
			s.handleTime(msg)
		}
	}
}

func (s *Session) handleCodecHeader(payload []byte) (decoder.Decoder, error) {
	ch, err := protocol.ParseCodecHeader(payload)
	if err != nil {
		return nil, err
	}
	log.Printf("Stream codec: %s", ch.Codec)

	dec, err := decoder.New(ch.Codec, ch.Header)
	if err != nil {
		return nil, err
	}

	// the output always runs 16-bit; ToS16 normalizes per chunk
	format := dec.Format()
	outFormat := decoder.Format{
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
		BitDepth:   16,
	}
	if err := s.out.Start(outFormat, s.buf); err != nil {
		dec.Close()
		return nil, err
	}
	return dec, nil
}

func (s *Session) handleChunk(dec decoder.Decoder, payload []byte) error {
	chunk, err := protocol.ParseWireChunk(payload)
	if err != nil {
		return err
	}
	pcm, err := dec.Decode(chunk.Payload)
	if err != nil {
		return err
	}
	if len(pcm) == 0 {
		return nil
	}
	pcm, err = decoder.ToS16(pcm, dec.Format().BitDepth)
	if err != nil {
		return err
	}

	serverTime := chunk.Timestamp.Duration() +
		time.Duration(s.bufferMs.Load())*time.Millisecond -
		time.Duration(s.latencyMs.Load())*time.Millisecond

	s.buf.Push(pcm, s.clock.ServerToLocal(serverTime), s.gen)
	return nil
}

func (s *Session) handleServerSettings(payload []byte) {
	settings, err := protocol.ParseServerSettings(payload)
	if err != nil {
		log.Printf("Bad server settings: %v", err)
		return
	}

	if settings.BufferMs > 0 {
		s.bufferMs.Store(int32(settings.BufferMs))
	}
	s.latencyMs.Store(int32(settings.Latency))
	s.out.SetVolume(settings.Volume)
	s.out.SetMuted(settings.Muted)

	if s.events.Settings != nil {
		s.events.Settings(Settings{
			Volume:    settings.Volume,
			Muted:     settings.Muted,
			LatencyMs: settings.Latency,
			BufferMs:  settings.BufferMs,
		})
	}
}

// timeLoop runs the clock-sync exchange once a second
func (s *Session) timeLoop(conn net.Conn) {
	defer s.wg.Done()

	ticker := time.NewTicker(timeSyncInterval)
	defer ticker.Stop()

	for !s.stopped.Load() {
		id := uint16(s.msgID.Add(1))

		s.timeMu.Lock()
		s.timeSent[id] = time.Now()
		// drop stale entries the server never answered
		if len(s.timeSent) > 16 {
			for k := range s.timeSent {
				if k != id {
					delete(s.timeSent, k)
				}
			}
		}
		s.timeMu.Unlock()

		s.writeMu.Lock()
		err := protocol.WriteMessage(conn, protocol.TypeTime, id, 0, protocol.EncodeTime(protocol.Tv{}))
		s.writeMu.Unlock()
		if err != nil {
			return
		}

		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
		}
	}
}

// handleTime folds one completed exchange into the clock estimate
func (s *Session) handleTime(msg *protocol.Message) {
	now := time.Now()

	s.timeMu.Lock()
	sentAt, ok := s.timeSent[msg.Header.RefersTo]
	if ok {
		delete(s.timeSent, msg.Header.RefersTo)
	}
	s.timeMu.Unlock()
	if !ok {
		return
	}

	c2s, err := protocol.ParseTime(msg.Payload)
	if err != nil {
		return
	}
	s.clock.AddMeasurement(c2s.Duration(), now.Sub(sentAt))
}
