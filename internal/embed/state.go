package embed

import "sync"

// FrameworkState describes the lifecycle of the inference backend.
type FrameworkState string

const (
	// StateNotInitialized means no backend has been constructed yet.
	StateNotInitialized FrameworkState = "not_initialized"
	// StateDownloading means the backend is fetching its model.
	StateDownloading FrameworkState = "downloading"
	// StateLoading means the model is loading into memory.
	StateLoading FrameworkState = "loading"
	// StateReady means the backend can serve inference requests.
	StateReady FrameworkState = "ready"
	// StateFailed means the backend could not be brought up.
	StateFailed FrameworkState = "failed"
)

// StateTracker is a thread-safe holder for the framework state, exposed
// through the status surface.
type StateTracker struct {
	mu    sync.RWMutex
	state FrameworkState
	err   error
}

// NewStateTracker creates a tracker in the not-initialized state.
func NewStateTracker() *StateTracker {
	return &StateTracker{state: StateNotInitialized}
}

// Set updates the current state.
func (t *StateTracker) Set(state FrameworkState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = state
	if state != StateFailed {
		t.err = nil
	}
}

// SetFailed records a failure with its cause.
func (t *StateTracker) SetFailed(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateFailed
	t.err = err
}

// State returns the current state.
func (t *StateTracker) State() FrameworkState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Err returns the failure cause, if any.
func (t *StateTracker) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.err
}
