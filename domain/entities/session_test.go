package entities

import (
	"errors"
	"testing"
)

func newStreamingSession(t *testing.T) *Session {
	t.Helper()

	scenario, err := LookupScenario("vmware-migration")
	if err != nil {
		t.Fatalf("LookupScenario failed: %v", err)
	}
	voice, err := LookupVoice("Joanna")
	if err != nil {
		t.Fatalf("LookupVoice failed: %v", err)
	}

	s := NewSession(scenario, voice)
	if err := s.BeginNegotiation(); err != nil {
		t.Fatalf("BeginNegotiation failed: %v", err)
	}
	if err := s.ConfirmNegotiation(); err != nil {
		t.Fatalf("ConfirmNegotiation failed: %v", err)
	}
	return s
}

func TestSession_Lifecycle(t *testing.T) {
	s := newStreamingSession(t)

	if s.State() != StateStreaming {
		t.Fatalf("expected streaming, got %s", s.State())
	}
	if s.ID == "" {
		t.Error("session id should not be empty")
	}

	if err := s.BeginClose(); err != nil {
		t.Fatalf("BeginClose failed: %v", err)
	}
	if err := s.CompleteClose(); err != nil {
		t.Fatalf("CompleteClose failed: %v", err)
	}
	if s.State() != StateClosed {
		t.Errorf("expected closed, got %s", s.State())
	}
}

func TestSession_TransitionIdempotence(t *testing.T) {
	scenario, _ := LookupScenario("smb-prospecting")
	voice, _ := LookupVoice("Amy")
	s := NewSession(scenario, voice)

	if err := s.BeginNegotiation(); err != nil {
		t.Fatalf("BeginNegotiation failed: %v", err)
	}
	if err := s.ConfirmNegotiation(); err != nil {
		t.Fatalf("ConfirmNegotiation failed: %v", err)
	}

	// Re-delivering the same transition must be a no-op, not an error.
	if err := s.ConfirmNegotiation(); err != nil {
		t.Errorf("duplicate ConfirmNegotiation should be no-op, got %v", err)
	}
	if s.State() != StateStreaming {
		t.Errorf("expected streaming after duplicate confirm, got %s", s.State())
	}
}

func TestSession_BargeInNeverSkipsInterrupted(t *testing.T) {
	s := newStreamingSession(t)

	if err := s.Interrupt(); err != nil {
		t.Fatalf("Interrupt failed: %v", err)
	}
	if s.State() != StateInterrupted {
		t.Fatalf("expected interrupted, got %s", s.State())
	}

	// Duplicate barge-in while interrupted is a no-op.
	if err := s.Interrupt(); err != nil {
		t.Errorf("duplicate Interrupt should be no-op, got %v", err)
	}

	if err := s.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if s.State() != StateStreaming {
		t.Errorf("expected streaming after resume, got %s", s.State())
	}

	// Barge-in again must pass through interrupted again.
	if err := s.Interrupt(); err != nil {
		t.Fatalf("second Interrupt failed: %v", err)
	}
	if s.State() != StateInterrupted {
		t.Errorf("expected interrupted on repeat barge-in, got %s", s.State())
	}
}

func TestSession_InvalidTransition(t *testing.T) {
	scenario, _ := LookupScenario("situational-fluency")
	voice, _ := LookupVoice("Matthew")
	s := NewSession(scenario, voice)

	err := s.Interrupt()
	if err == nil {
		t.Fatal("Interrupt from idle should fail")
	}
	var violation *ProtocolViolation
	if !errors.As(err, &violation) {
		t.Errorf("expected ProtocolViolation, got %T", err)
	}
	if s.State() != StateIdle {
		t.Errorf("state should be unchanged, got %s", s.State())
	}
}

func TestSession_FailIsAbsorbing(t *testing.T) {
	s := newStreamingSession(t)

	cause := errors.New("connection reset")
	s.Fail(&TransportError{Direction: "inbound", Err: cause})

	if s.State() != StateFailed {
		t.Fatalf("expected failed, got %s", s.State())
	}
	if !errors.Is(s.Failure(), cause) {
		t.Errorf("failure should wrap original cause")
	}

	// The first recorded failure wins.
	s.Fail(errors.New("later error"))
	if !errors.Is(s.Failure(), cause) {
		t.Errorf("later Fail should not overwrite first failure")
	}

	// No transition leaves the failed state.
	if err := s.Resume(); err == nil {
		t.Error("Resume from failed should be rejected")
	}
	if s.State() != StateFailed {
		t.Errorf("failed is absorbing, got %s", s.State())
	}
}

func TestSession_FailAfterClosedIsNoOp(t *testing.T) {
	s := newStreamingSession(t)
	if err := s.BeginClose(); err != nil {
		t.Fatalf("BeginClose failed: %v", err)
	}
	if err := s.CompleteClose(); err != nil {
		t.Fatalf("CompleteClose failed: %v", err)
	}

	s.Fail(errors.New("late transport error"))
	if s.State() != StateClosed {
		t.Errorf("closed session should not become failed, got %s", s.State())
	}
}

func TestSession_TurnHistory(t *testing.T) {
	s := newStreamingSession(t)

	user := NewTurn(RoleUser)
	user.SetFinalTranscript("hello")
	user.MarkComplete()
	s.RecordTurn(user)

	assistant := NewTurn(RoleAssistant)
	assistant.SetFinalTranscript("hi, what can I do for you")
	assistant.MarkComplete()
	s.RecordTurn(assistant)

	turns := s.Turns()
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Role != RoleUser || turns[1].Role != RoleAssistant {
		t.Error("turns should be returned in emission order")
	}
}
