package contentsync

import (
	"fmt"
	"sync"
)

// NavState is the navigation state of the embedded content surface.
type NavState string

// Navigation state constants (typed).
const (
	NavIdle        NavState = "idle"
	NavProvisional NavState = "provisional"
	NavCommitted   NavState = "committed"
	NavFinished    NavState = "finished"
	NavFailed      NavState = "failed"
)

// navTransitions lists the legal navigation edges. A finished surface may
// start a new navigation; a failed one must go back through Idle or start
// over with a new provisional load.
var navTransitions = map[NavState][]NavState{
	NavIdle:        {NavProvisional},
	NavProvisional: {NavCommitted, NavFailed},
	NavCommitted:   {NavFinished, NavFailed},
	NavFinished:    {NavProvisional, NavIdle},
	NavFailed:      {NavIdle, NavProvisional},
}

// SurfaceTracker models the embedded surface's page-load lifecycle as an
// explicit state machine. The bridge queue consults it to decide when it is
// safe to flush outbound commands: only a surface that has finished loading
// can receive them.
type SurfaceTracker struct {
	mu    sync.Mutex
	state NavState
}

// NewSurfaceTracker creates a tracker in the Idle state.
func NewSurfaceTracker() *SurfaceTracker {
	return &SurfaceTracker{state: NavIdle}
}

// State returns the current navigation state.
func (t *SurfaceTracker) State() NavState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Transition moves the tracker to the given state, rejecting illegal edges.
func (t *SurfaceTracker) Transition(to NavState) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, allowed := range navTransitions[t.state] {
		if allowed == to {
			t.state = to
			return nil
		}
	}
	return fmt.Errorf("invalid navigation transition %s -> %s", t.state, to)
}

// Reset forces the tracker back to Idle, used when the surface restarts.
func (t *SurfaceTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = NavIdle
}

// Ready reports whether outbound commands may be flushed to the surface.
func (t *SurfaceTracker) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == NavFinished
}
