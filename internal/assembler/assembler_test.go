package assembler

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/jonasttaws/nova-sonic-training/domain/entities"
)

func collect(t *testing.T) (*Assembler, *[]*entities.Turn) {
	t.Helper()
	var emitted []*entities.Turn
	a := New(zap.NewNop(), func(turn *entities.Turn) {
		emitted = append(emitted, turn)
	})
	return a, &emitted
}

func frame(seq uint32) entities.AudioFrame {
	return entities.AudioFrame{PCM: []byte{0x01, 0x00}, SampleRate: 16000, Seq: seq}
}

func TestAssembler_CompletesTurnOnBoundary(t *testing.T) {
	a, emitted := collect(t)

	a.Process(entities.AudioEvent(entities.RoleUser, frame(1)))
	a.Process(entities.StreamEvent{Type: entities.EventPartialTranscript, Role: entities.RoleUser, Text: "hello "})
	a.Process(entities.StreamEvent{Type: entities.EventPartialTranscript, Role: entities.RoleUser, Text: "there"})
	a.Process(entities.BoundaryEvent(entities.RoleUser))

	if len(*emitted) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(*emitted))
	}
	turn := (*emitted)[0]
	if !turn.Complete {
		t.Error("emitted turn should be complete")
	}
	if turn.Transcript != "hello there" {
		t.Errorf("transcript: got %q", turn.Transcript)
	}
	if len(turn.Frames) != 1 {
		t.Errorf("expected 1 frame, got %d", len(turn.Frames))
	}
}

func TestAssembler_SpuriousBoundaryNotEmitted(t *testing.T) {
	a, emitted := collect(t)

	// Boundaries with no prior content close empty turns silently.
	a.Process(entities.BoundaryEvent(entities.RoleUser))
	a.Process(entities.BoundaryEvent(entities.RoleAssistant))
	a.Process(entities.BoundaryEvent(entities.RoleUser))

	if len(*emitted) != 0 {
		t.Fatalf("empty turns must never be emitted, got %d", len(*emitted))
	}

	// Non-spurious boundaries each emit exactly one turn.
	a.Process(entities.AudioEvent(entities.RoleUser, frame(1)))
	a.Process(entities.BoundaryEvent(entities.RoleUser))
	a.Process(entities.StreamEvent{Type: entities.EventFinalTranscript, Role: entities.RoleAssistant, Text: "hi"})
	a.Process(entities.BoundaryEvent(entities.RoleAssistant))

	if len(*emitted) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(*emitted))
	}
}

func TestAssembler_InterleavedRolesKeepArrivalOrder(t *testing.T) {
	a, emitted := collect(t)

	a.Process(entities.StreamEvent{Type: entities.EventFinalTranscript, Role: entities.RoleUser, Text: "question"})
	a.Process(entities.StreamEvent{Type: entities.EventFinalTranscript, Role: entities.RoleAssistant, Text: "answer"})
	a.Process(entities.BoundaryEvent(entities.RoleAssistant))
	a.Process(entities.BoundaryEvent(entities.RoleUser))

	if len(*emitted) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(*emitted))
	}
	if (*emitted)[0].Role != entities.RoleAssistant {
		t.Error("turns must be emitted in boundary arrival order")
	}
	if (*emitted)[1].Role != entities.RoleUser {
		t.Error("second boundary should emit the user turn")
	}
}

func TestAssembler_FinalTranscriptReplacesPartials(t *testing.T) {
	a, emitted := collect(t)

	a.Process(entities.StreamEvent{Type: entities.EventPartialTranscript, Role: entities.RoleAssistant, Text: "let me th"})
	a.Process(entities.StreamEvent{Type: entities.EventFinalTranscript, Role: entities.RoleAssistant, Text: "let me think about that"})
	a.Process(entities.BoundaryEvent(entities.RoleAssistant))

	if (*emitted)[0].Transcript != "let me think about that" {
		t.Errorf("final transcript should replace partials, got %q", (*emitted)[0].Transcript)
	}
}

func TestAssembler_ErrorAbortsOpenTurns(t *testing.T) {
	a, emitted := collect(t)

	a.Process(entities.AudioEvent(entities.RoleUser, frame(1)))
	a.Process(entities.AudioEvent(entities.RoleAssistant, frame(1)))

	cause := errors.New("model stream reset")
	err := a.Process(entities.ErrorEvent(cause))
	if !errors.Is(err, cause) {
		t.Fatalf("Process should surface the stream error, got %v", err)
	}

	if len(*emitted) != 0 {
		t.Error("aborted turns must not be emitted")
	}
	if a.OpenTurn(entities.RoleUser) != nil || a.OpenTurn(entities.RoleAssistant) != nil {
		t.Error("error event should abort open turns for both roles")
	}
}

func TestAssembler_SequenceGapDoesNotCorruptOrdering(t *testing.T) {
	a, emitted := collect(t)

	// Frames [1,2,4]: the gap at 3 is logged, frame 4 still delivered after 2.
	a.Process(entities.AudioEvent(entities.RoleUser, frame(1)))
	a.Process(entities.AudioEvent(entities.RoleUser, frame(2)))
	a.Process(entities.AudioEvent(entities.RoleUser, frame(4)))
	a.Process(entities.BoundaryEvent(entities.RoleUser))

	if len(*emitted) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(*emitted))
	}
	frames := (*emitted)[0].Frames
	if len(frames) != 3 {
		t.Fatalf("no frame after the gap may be dropped, got %d frames", len(frames))
	}
	if frames[0].Seq != 1 || frames[1].Seq != 2 || frames[2].Seq != 4 {
		t.Errorf("frame order corrupted: %d %d %d", frames[0].Seq, frames[1].Seq, frames[2].Seq)
	}
}

func TestAssembler_TruncateRole(t *testing.T) {
	a, emitted := collect(t)

	a.Process(entities.StreamEvent{Type: entities.EventPartialTranscript, Role: entities.RoleAssistant, Text: "as I was say"})
	a.Process(entities.AudioEvent(entities.RoleAssistant, frame(1)))

	a.TruncateRole(entities.RoleAssistant)

	if len(*emitted) != 1 {
		t.Fatalf("truncated non-empty turn should be emitted, got %d", len(*emitted))
	}
	turn := (*emitted)[0]
	if !turn.Truncated || !turn.Complete {
		t.Error("truncated turn should be flagged and complete")
	}

	// Truncating with nothing open is harmless.
	a.TruncateRole(entities.RoleAssistant)
	if len(*emitted) != 1 {
		t.Error("second truncate should be a no-op")
	}
}

func TestAssembler_FlushEmitsTrailingSpeech(t *testing.T) {
	a, emitted := collect(t)

	a.Process(entities.StreamEvent{Type: entities.EventFinalTranscript, Role: entities.RoleUser, Text: "bye"})
	a.Process(entities.StreamEvent{Type: entities.EventEndOfSession})

	if len(*emitted) != 1 {
		t.Fatalf("end of session should flush open turns, got %d", len(*emitted))
	}
	if (*emitted)[0].Transcript != "bye" {
		t.Errorf("got %q", (*emitted)[0].Transcript)
	}
}
