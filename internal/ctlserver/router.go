package ctlserver

import (
	"fmt"
	"strings"
)

// handleCommand processes a single control command
func (s *Server) handleCommand(line string) string {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return "OK\n"
	}

	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "ping":
		return "OK\n"

	case "status":
		return s.cmdStatus(args)

	case "connect":
		return s.cmdConnect(args)

	case "disconnect":
		return s.cmdDisconnect(args)

	case "servers":
		return s.cmdServers(args)

	case "pause":
		return s.cmdPause(args)

	case "resume":
		return s.cmdResume(args)

	case "volume":
		return s.cmdVolume(args)

	case "mute":
		return s.cmdMute(args)

	case "latency":
		return s.cmdLatency(args)

	case "diag":
		return s.cmdDiag(args)

	case "close":
		return "" // Client will close connection

	default:
		return fmt.Sprintf("ACK [5@0] {%s} unknown command\n", command)
	}
}
