package repositories

import (
	"context"

	"github.com/jonasttaws/nova-sonic-training/domain/entities"
)

// SessionConfig is the configuration negotiated with the remote model when a
// session opens.
type SessionConfig struct {
	SessionID  string
	Scenario   entities.ScenarioProfile
	Voice      entities.VoiceProfile
	SampleRate int
}

// ModelTransport abstracts the remote speech model as an opaque capability:
// open a duplex handle for a negotiated configuration, then exchange stream
// events until close.
type ModelTransport interface {
	// Open negotiates a session with the remote model. It blocks until the
	// model confirms the configuration or ctx expires; callers bound it with
	// the negotiation timeout.
	Open(ctx context.Context, config SessionConfig) (ModelStream, error)
}

// ModelStream is one duplex handle to the remote model. Send and Receive
// progress independently and may be called from different goroutines; each
// individual direction is single-consumer.
type ModelStream interface {
	// Send delivers an outbound event (user audio, turn boundary,
	// end-of-session) to the model.
	Send(ctx context.Context, ev entities.StreamEvent) error

	// Receive blocks for the next inbound event from the model.
	Receive(ctx context.Context) (entities.StreamEvent, error)

	// CancelResponse interrupts the model's in-flight assistant response.
	// It blocks until the model acknowledges the cancellation and is ready
	// to accept new input, or ctx expires.
	CancelResponse(ctx context.Context) error

	// Close tears the handle down. Pending Send/Receive calls fail promptly.
	Close() error
}
