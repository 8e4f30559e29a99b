package session

import (
	"sync"
	"sync/atomic"

	"github.com/shehryarbajwa/invoice-scraper/pkg/models"
)

// State is the process-wide workflow state shared by the HTTP handlers and the
// scraper: the cancellation flag, the session status and the login wait signal.
type State struct {
	cancelled atomic.Bool

	mu        sync.Mutex
	status    models.SessionStatus
	loginWait chan struct{}
	listeners []func(models.SessionStatus)
}

// NewState creates a new session state with status unknown
func NewState() *State {
	return &State{status: models.StatusUnknown}
}

// Cancel asks the running workflow to stop at its next checkpoint
func (s *State) Cancel() { s.cancelled.Store(true) }

func (s *State) ResetCancel() { s.cancelled.Store(false) }

func (s *State) Cancelled() bool { return s.cancelled.Load() }

func (s *State) Status() models.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetStatus records the new status and notifies listeners when it changed
func (s *State) SetStatus(status models.SessionStatus) {
	s.mu.Lock()
	if s.status == status {
		s.mu.Unlock()
		return
	}
	s.status = status
	listeners := append([]func(models.SessionStatus){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(status)
	}
}

// OnStatusChange registers fn to run after every status change
func (s *State) OnStatusChange(fn func(models.SessionStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// beginLoginWait arms a fresh login signal and returns the channel closed when it fires
func (s *State) beginLoginWait() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginWait = make(chan struct{})
	return s.loginWait
}

func (s *State) endLoginWait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginWait = nil
}

// SignalLoginComplete fires the outstanding login signal. It reports false when
// no login wait is in progress.
func (s *State) SignalLoginComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loginWait == nil {
		return false
	}
	select {
	case <-s.loginWait:
	default:
		close(s.loginWait)
	}
	return true
}
