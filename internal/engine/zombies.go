package engine

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/snapforge/snapforged/internal/metrics"
)

// zombieRegistry keeps handles whose teardown outlived the stop timeout. Each
// detached teardown keeps draining on its own goroutine; the registry only
// tracks that it exists, so the rest of the engine can report on hung stops
// without ever waiting on one. With a live server on the other end every
// entry eventually completes and the registry converges to empty.
type zombieRegistry struct {
	grace time.Duration
	met   *metrics.Metrics

	mu      sync.Mutex
	entries map[uuid.UUID]time.Time
}

func newZombieRegistry(grace time.Duration, met *metrics.Metrics) *zombieRegistry {
	return &zombieRegistry{
		grace:   grace,
		met:     met,
		entries: make(map[uuid.UUID]time.Time),
	}
}

// adopt records a detached teardown and removes it once done closes.
func (r *zombieRegistry) adopt(id uuid.UUID, done <-chan struct{}) {
	r.mu.Lock()
	r.entries[id] = time.Now()
	n := len(r.entries)
	r.mu.Unlock()

	r.met.IncDetachedTeardowns()
	r.met.SetActiveZombies(n)
	log.Printf("Session %s teardown detached, still draining (%d total)", id, n)

	go func() {
		<-done
		r.mu.Lock()
		delete(r.entries, id)
		n := len(r.entries)
		r.mu.Unlock()

		r.met.SetActiveZombies(n)
		log.Printf("Session %s teardown finished (%d still draining)", id, n)
	}()
}

func (r *zombieRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// hanging reports whether any entry has been draining past the grace period.
func (r *zombieRegistry) hanging() bool {
	deadline := time.Now().Add(-r.grace)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, since := range r.entries {
		if since.Before(deadline) {
			return true
		}
	}
	return false
}

// drain polls until the registry is empty or the timeout passes. Used when
// shutting the whole engine down; the steady state never waits on this.
func (r *zombieRegistry) drain(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for r.count() > 0 {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
	return true
}
