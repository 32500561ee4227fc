package registry

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jonasttaws/nova-sonic-training/domain/entities"
)

func newSession(t *testing.T) *entities.Session {
	t.Helper()
	scenario, err := entities.LookupScenario("vmware-migration")
	if err != nil {
		t.Fatalf("LookupScenario failed: %v", err)
	}
	voice, err := entities.LookupVoice("Joanna")
	if err != nil {
		t.Fatalf("LookupVoice failed: %v", err)
	}
	return entities.NewSession(scenario, voice)
}

func TestRegistry_AddGetRemove(t *testing.T) {
	r := New(4, zap.NewNop())

	s := newSession(t)
	if err := r.Add(s); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	got, ok := r.Get(s.ID)
	if !ok || got.ID != s.ID {
		t.Fatal("Get should return the registered session")
	}

	r.Remove(s.ID)
	if _, ok := r.Get(s.ID); ok {
		t.Error("session should be gone after Remove")
	}
}

func TestRegistry_CapacityExceeded(t *testing.T) {
	ceiling := 2
	r := New(ceiling, zap.NewNop())

	for i := 0; i < ceiling; i++ {
		if err := r.Add(newSession(t)); err != nil {
			t.Fatalf("Add %d failed: %v", i, err)
		}
	}

	overflow := newSession(t)
	err := r.Add(overflow)
	if !errors.Is(err, entities.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}

	// Rejection is synchronous and leaves no registry entry.
	if _, ok := r.Get(overflow.ID); ok {
		t.Error("rejected session must not be registered")
	}
	if r.Len() != ceiling {
		t.Errorf("expected %d sessions, got %d", ceiling, r.Len())
	}
}

func TestRegistry_StatusSnapshot(t *testing.T) {
	r := New(8, zap.NewNop())
	s := newSession(t)
	if err := r.Add(s); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	snap := r.StatusSnapshot()
	if snap.Size != 1 || snap.Ceiling != 8 {
		t.Errorf("snapshot size/ceiling: got %d/%d", snap.Size, snap.Ceiling)
	}
	if len(snap.Sessions) != 1 {
		t.Fatalf("expected 1 session row, got %d", len(snap.Sessions))
	}
	if snap.Sessions[0].State != entities.StateIdle {
		t.Errorf("expected idle state, got %s", snap.Sessions[0].State)
	}
}

func TestRegistry_ReapRemovesClosedAndExpiredFailed(t *testing.T) {
	r := New(8, zap.NewNop(), WithFailedRetention(10*time.Millisecond))

	closed := newSession(t)
	closed.BeginNegotiation()
	closed.ConfirmNegotiation()
	closed.BeginClose()
	closed.CompleteClose()

	failed := newSession(t)
	failed.Fail(errors.New("transport down"))

	live := newSession(t)

	for _, s := range []*entities.Session{closed, failed, live} {
		if err := r.Add(s); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	// Immediately after failure the session is retained for error reporting.
	r.Reap()
	if _, ok := r.Get(failed.ID); !ok {
		t.Error("failed session should be retained within the reap interval")
	}
	if _, ok := r.Get(closed.ID); ok {
		t.Error("closed session should be reaped immediately")
	}

	time.Sleep(20 * time.Millisecond)
	r.Reap()

	if _, ok := r.Get(failed.ID); ok {
		t.Error("failed session should be reaped after retention")
	}
	if _, ok := r.Get(live.ID); !ok {
		t.Error("live session must survive reaping")
	}
}
