package ctlserver

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"

	"github.com/snapforge/snapforged/internal/session"
)

// handleConnection handles a single control client connection
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	log.Printf("New control client connected: %s", conn.RemoteAddr())

	fmt.Fprintf(conn, "OK snapforge %s\n", session.Version)

	// at most one watcher per connection
	var parked *watcher
	var parkedMu sync.Mutex

	scanner := bufio.NewScanner(conn)

	defer func() {
		parkedMu.Lock()
		if parked != nil {
			s.unwatch(parked)
		}
		parkedMu.Unlock()
	}()

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		log.Printf("Control command: %s", line)

		parts := strings.Fields(line)
		var response string

		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "idle":
			parkedMu.Lock()
			if parked != nil {
				parkedMu.Unlock()
				continue
			}
			for i, arg := range args {
				args[i] = strings.ToLower(arg)
			}
			w := newWatcher(args)
			parked = w
			s.watch(w)
			parkedMu.Unlock()

			select {
			case subsystem := <-w.wake:
				response = fmt.Sprintf("changed: %s\nOK\n", subsystem)
			case <-w.abort:
				response = "OK\n"
			}

			parkedMu.Lock()
			s.unwatch(w)
			parked = nil
			parkedMu.Unlock()

		case "noidle":
			parkedMu.Lock()
			if parked != nil {
				// the parked idle command answers for both
				close(parked.abort)
				parkedMu.Unlock()
				continue
			}
			parkedMu.Unlock()
			response = "OK\n"

		default:
			response = s.handleCommand(line)
		}

		if response == "" {
			// close command; drop the connection
			return
		}
		fmt.Fprint(conn, response)
	}

	if err := scanner.Err(); err != nil {
		log.Printf("Connection error: %v", err)
	}

	log.Printf("Control client disconnected: %s", conn.RemoteAddr())
}
