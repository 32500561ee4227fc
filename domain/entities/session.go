package entities

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionState is one of the states in the session lifecycle.
type SessionState string

const (
	StateIdle        SessionState = "idle"
	StateNegotiating SessionState = "negotiating"
	StateStreaming   SessionState = "streaming"
	StateInterrupted SessionState = "interrupted"
	StateClosing     SessionState = "closing"
	StateClosed      SessionState = "closed"
	StateFailed      SessionState = "failed"
)

// Terminal reports whether no further transition can leave the state.
func (s SessionState) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// Session is one conversation between a client and the remote model. All
// transitions execute under the session's mutex, so they are linearizable per
// session. Re-delivering a transition event when the session is already in the
// target state is a no-op, not an error.
type Session struct {
	ID        string
	Scenario  ScenarioProfile
	Voice     VoiceProfile
	CreatedAt time.Time

	mu        sync.Mutex
	state     SessionState
	turns     []*Turn
	failure   error
	updatedAt time.Time
}

// NewSession allocates a session record in StateIdle.
func NewSession(scenario ScenarioProfile, voice VoiceProfile) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		Scenario:  scenario,
		Voice:     voice,
		CreatedAt: now,
		state:     StateIdle,
		updatedAt: now,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Failure returns the error that moved the session to StateFailed, if any.
func (s *Session) Failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// UpdatedAt returns the time of the last transition. The registry reaper uses
// it to retain failed sessions briefly for client-visible error reporting.
func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// RecordTurn appends a completed turn to the session's ordered history.
func (s *Session) RecordTurn(turn *Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turn)
}

// Turns returns a copy of the completed-turn history in emission order.
func (s *Session) Turns() []*Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// transition applies from→to under the mutex. Already being in the target
// state is a no-op; any other mismatch is a ProtocolViolation.
func (s *Session) transition(event string, to SessionState, from ...SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == to {
		return nil
	}
	for _, f := range from {
		if s.state == f {
			s.state = to
			s.updatedAt = time.Now()
			return nil
		}
	}
	return &ProtocolViolation{State: s.state, Event: event}
}

// BeginNegotiation moves Idle → Negotiating on a start request.
func (s *Session) BeginNegotiation() error {
	return s.transition("begin_negotiation", StateNegotiating, StateIdle)
}

// ConfirmNegotiation moves Negotiating → Streaming once the remote transport
// accepted the session configuration.
func (s *Session) ConfirmNegotiation() error {
	return s.transition("confirm_negotiation", StateStreaming, StateNegotiating)
}

// Interrupt moves Streaming → Interrupted on a user barge-in. Duplicate
// barge-in signals while already interrupted are no-ops.
func (s *Session) Interrupt() error {
	return s.transition("interrupt", StateInterrupted, StateStreaming)
}

// Resume moves Interrupted → Streaming once the model acknowledged the
// cancellation and is ready for new input.
func (s *Session) Resume() error {
	return s.transition("resume", StateStreaming, StateInterrupted)
}

// BeginClose moves Streaming/Interrupted → Closing on an explicit end request
// or a transport error requiring graceful teardown.
func (s *Session) BeginClose() error {
	return s.transition("begin_close", StateClosing, StateStreaming, StateInterrupted)
}

// CompleteClose moves Closing → Closed once both multiplexer directions
// report drained.
func (s *Session) CompleteClose() error {
	return s.transition("complete_close", StateClosed, StateClosing)
}

// Fail moves any non-terminal state to the absorbing StateFailed. The first
// failure is recorded; later calls are no-ops.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return
	}
	s.state = StateFailed
	s.failure = err
	s.updatedAt = time.Now()
}
