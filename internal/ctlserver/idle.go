package ctlserver

// watcher is one control connection parked in idle mode. wake carries the
// name of a changed subsystem; abort ends the wait when the client sends
// noidle or drops the connection.
type watcher struct {
	subsystems map[string]struct{} // empty means every subsystem
	wake       chan string
	abort      chan struct{}
}

func newWatcher(subsystems []string) *watcher {
	w := &watcher{
		subsystems: make(map[string]struct{}, len(subsystems)),
		wake:       make(chan string, 8),
		abort:      make(chan struct{}),
	}
	for _, name := range subsystems {
		w.subsystems[name] = struct{}{}
	}
	return w
}

func (w *watcher) watches(subsystem string) bool {
	if len(w.subsystems) == 0 {
		return true
	}
	_, ok := w.subsystems[subsystem]
	return ok
}

func (s *Server) watch(w *watcher) {
	s.idleMu.Lock()
	s.watchers[w] = struct{}{}
	s.idleMu.Unlock()
}

func (s *Server) unwatch(w *watcher) {
	s.idleMu.Lock()
	delete(s.watchers, w)
	s.idleMu.Unlock()
}

// NotifySubsystemChange wakes every watcher of the given subsystem. The
// engine's state callback reports "player" changes and its settings callback
// "mixer" changes through here.
func (s *Server) NotifySubsystemChange(subsystem string) {
	s.idleMu.RLock()
	defer s.idleMu.RUnlock()

	for w := range s.watchers {
		if !w.watches(subsystem) {
			continue
		}
		select {
		case w.wake <- subsystem:
		default:
			// the connection is already due a wakeup; dropping is fine
		}
	}
}
