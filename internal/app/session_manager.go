package app

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/submixtap/pkg/reverse"
)

// ErrNoSession is returned by [SessionManager.Stop] when no session is active.
var ErrNoSession = errors.New("session: no active session")

// SessionOpener is implemented by processors that track sessions explicitly,
// such as [reverse.ReferenceRing].
type SessionOpener interface {
	Open(h reverse.Handle) error
	Release(h reverse.Handle)
}

// SessionSetter receives the handle for subsequent processing calls.
type SessionSetter interface {
	SetSession(h reverse.Handle)
}

// SessionInfo holds metadata about the active session.
type SessionInfo struct {
	// Handle is the opaque processor session handle.
	Handle reverse.Handle `json:"handle"`

	// StartedAt is when the handle was set.
	StartedAt time.Time `json:"started_at"`
}

// SessionManager switches the processor session the tap forwards audio to.
// At most one session is active at a time. Switching releases the previous
// session on processors that implement [SessionOpener].
// All exported methods are safe for concurrent use.
type SessionManager struct {
	mu     sync.Mutex
	active bool
	info   SessionInfo

	tap    SessionSetter
	opener SessionOpener
}

// NewSessionManager creates a SessionManager that sets handles on tap and,
// when proc implements [SessionOpener], opens and releases them on proc.
func NewSessionManager(tap SessionSetter, proc reverse.Processor) *SessionManager {
	sm := &SessionManager{tap: tap}
	if o, ok := proc.(SessionOpener); ok {
		sm.opener = o
	}
	return sm
}

// Start makes h the active session, replacing any previous one. Setting the
// already active handle is a no-op.
func (sm *SessionManager) Start(h reverse.Handle) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.active && sm.info.Handle == h {
		return nil
	}
	if sm.opener != nil {
		if err := sm.opener.Open(h); err != nil {
			return fmt.Errorf("session: open %d: %w", uint64(h), err)
		}
	}
	prev, hadPrev := sm.info.Handle, sm.active

	sm.tap.SetSession(h)
	sm.active = true
	sm.info = SessionInfo{Handle: h, StartedAt: time.Now().UTC()}

	if hadPrev && sm.opener != nil {
		sm.opener.Release(prev)
	}
	slog.Info("session started", "handle", uint64(h), "previous", uint64(prev))
	return nil
}

// Stop clears the active session. The tap keeps forwarding with the zero
// handle; session-tracking processors reject it, which stops the tap on its
// next block.
func (sm *SessionManager) Stop() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.active {
		return ErrNoSession
	}
	h, started := sm.info.Handle, sm.info.StartedAt
	sm.tap.SetSession(0)
	if sm.opener != nil {
		sm.opener.Release(h)
	}
	sm.active = false
	sm.info = SessionInfo{}
	slog.Info("session stopped", "handle", uint64(h), "duration", time.Since(started))
	return nil
}

// IsActive reports whether a session is active.
func (sm *SessionManager) IsActive() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.active
}

// Info returns the active session's metadata. The zero value is returned when
// no session is active.
func (sm *SessionManager) Info() SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.info
}
