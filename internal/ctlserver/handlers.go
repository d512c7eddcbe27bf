package ctlserver

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/snapforge/snapforged/internal/discovery"
)

// cmdStatus handles the 'status' command
func (s *Server) cmdStatus(args []string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "state: %s\n", s.engine.State())
	if target := s.engine.Target(); target != "" {
		fmt.Fprintf(&sb, "server: %s\n", target)
	}
	fmt.Fprintf(&sb, "volume: %d\n", s.engine.Volume())
	fmt.Fprintf(&sb, "muted: %d\n", boolDigit(s.engine.Muted()))
	fmt.Fprintf(&sb, "latency: %d\n", s.engine.Latency())
	fmt.Fprintf(&sb, "paused: %d\n", boolDigit(s.engine.IsPaused()))
	sb.WriteString("OK\n")

	return sb.String()
}

// cmdConnect handles the 'connect' command
// connect HOST [PORT] - make HOST the playback target
func (s *Server) cmdConnect(args []string) string {
	if len(args) == 0 {
		return "ACK [2@0] {connect} missing host\n"
	}

	host := args[0]
	port := 1704
	if len(args) > 1 {
		p, err := strconv.Atoi(args[1])
		if err != nil || p <= 0 || p > 65535 {
			return "ACK [2@0] {connect} invalid port\n"
		}
		port = p
	}

	s.engine.Start(host, port)
	return "OK\n"
}

// cmdDisconnect handles the 'disconnect' command
func (s *Server) cmdDisconnect(args []string) string {
	s.engine.Stop()
	return "OK\n"
}

// cmdServers handles the 'servers' command: browse the local network
func (s *Server) cmdServers(args []string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	found, err := discovery.Browse(ctx)
	if err != nil {
		return fmt.Sprintf("ACK [50@0] {servers} %s\n", err.Error())
	}

	var sb strings.Builder
	for _, e := range found {
		fmt.Fprintf(&sb, "server: %s\n", e.Name)
		fmt.Fprintf(&sb, "host: %s\n", e.Host)
		fmt.Fprintf(&sb, "port: %d\n", e.Port)
	}
	sb.WriteString("OK\n")
	return sb.String()
}

// cmdPause handles the 'pause' command
// pause 0 = resume, pause 1 = pause, no arg = toggle
func (s *Server) cmdPause(args []string) string {
	var shouldPause bool

	if len(args) > 0 {
		arg := args[0]
		if arg != "0" && arg != "1" {
			return "ACK [2@0] {pause} invalid argument\n"
		}
		shouldPause = (arg == "1")
	} else {
		shouldPause = !s.engine.IsPaused()
	}

	if shouldPause {
		s.engine.Pause()
	} else {
		s.engine.Resume()
	}
	return "OK\n"
}

// cmdResume handles the 'resume' command
func (s *Server) cmdResume(args []string) string {
	s.engine.Resume()
	return "OK\n"
}

// cmdVolume handles the 'volume' command
// volume [N] - report or set volume percent
func (s *Server) cmdVolume(args []string) string {
	if len(args) == 0 {
		return fmt.Sprintf("volume: %d\nOK\n", s.engine.Volume())
	}

	v, err := strconv.Atoi(args[0])
	if err != nil || v < 0 || v > 100 {
		return "ACK [2@0] {volume} invalid volume\n"
	}
	s.engine.SetVolume(v)
	go s.pushVolume(v, s.engine.Muted())
	return "OK\n"
}

// cmdMute handles the 'mute' command
// mute [0|1] - report or set mute state
func (s *Server) cmdMute(args []string) string {
	if len(args) == 0 {
		return fmt.Sprintf("muted: %d\nOK\n", boolDigit(s.engine.Muted()))
	}

	arg := args[0]
	if arg != "0" && arg != "1" {
		return "ACK [2@0] {mute} invalid argument\n"
	}
	s.engine.SetMuted(arg == "1")
	go s.pushVolume(s.engine.Volume(), arg == "1")
	return "OK\n"
}

// cmdLatency handles the 'latency' command
// latency [MS] - report or set the extra client latency
func (s *Server) cmdLatency(args []string) string {
	if len(args) == 0 {
		return fmt.Sprintf("latency: %d\nOK\n", s.engine.Latency())
	}

	ms, err := strconv.Atoi(args[0])
	if err != nil || ms < -2000 || ms > 10000 {
		return "ACK [2@0] {latency} invalid latency\n"
	}
	s.engine.SetLatency(ms)
	go s.pushLatency(ms)
	return "OK\n"
}

// cmdDiag handles the 'diag' command: engine health snapshot
func (s *Server) cmdDiag(args []string) string {
	d := s.engine.Diagnostics()

	var sb strings.Builder
	fmt.Fprintf(&sb, "state: %s\n", d.State)
	if d.ActiveTarget != "" {
		fmt.Fprintf(&sb, "server: %s\n", d.ActiveTarget)
	}
	fmt.Fprintf(&sb, "zombies: %d\n", d.ActiveZombies)
	fmt.Fprintf(&sb, "stop_hanging: %d\n", boolDigit(d.StopTaskHanging))
	sb.WriteString("OK\n")
	return sb.String()
}

func boolDigit(b bool) int {
	if b {
		return 1
	}
	return 0
}
