package entities

// Role identifies the speaker a turn or event belongs to.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// EventType tags a StreamEvent.
type EventType string

const (
	EventAudioChunk        EventType = "audio_chunk"
	EventPartialTranscript EventType = "partial_transcript"
	EventFinalTranscript   EventType = "final_transcript"
	EventTurnBoundary      EventType = "turn_boundary"
	EventError             EventType = "error"
	EventEndOfSession      EventType = "end_of_session"
)

// AudioFrame is one chunk of raw PCM audio. Samples are 16-bit little-endian
// mono. Seq is monotonic per direction per session.
type AudioFrame struct {
	PCM        []byte
	SampleRate int
	Seq        uint32
}

// Empty reports whether the frame carries no samples. Empty frames are valid
// and silently skipped downstream.
func (f AudioFrame) Empty() bool {
	return len(f.PCM) == 0
}

// StreamEvent is the tagged union flowing through the multiplexer in both
// directions. Exactly the fields implied by Type are set:
//
//	EventAudioChunk:        Role, Frame
//	EventPartialTranscript: Role, Text
//	EventFinalTranscript:   Role, Text
//	EventTurnBoundary:      Role
//	EventError:             Err
//	EventEndOfSession:      nothing else
type StreamEvent struct {
	Type  EventType
	Role  Role
	Frame AudioFrame
	Text  string
	Err   error
}

// AudioEvent builds an audio-chunk event for a role.
func AudioEvent(role Role, frame AudioFrame) StreamEvent {
	return StreamEvent{Type: EventAudioChunk, Role: role, Frame: frame}
}

// BoundaryEvent builds a turn-boundary event for a role.
func BoundaryEvent(role Role) StreamEvent {
	return StreamEvent{Type: EventTurnBoundary, Role: role}
}

// ErrorEvent wraps an error into a stream event.
func ErrorEvent(err error) StreamEvent {
	return StreamEvent{Type: EventError, Err: err}
}
