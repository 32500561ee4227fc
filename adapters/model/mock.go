package model

import (
	"context"
	"sync"
	"time"

	"github.com/jonasttaws/nova-sonic-training/domain/entities"
	"github.com/jonasttaws/nova-sonic-training/domain/repositories"
)

// MockTransport is a scripted in-memory model transport for tests and for
// running the server without any remote model configured.
type MockTransport struct {
	// OpenDelay simulates negotiation latency. When it exceeds the caller's
	// deadline, Open blocks until the context expires.
	OpenDelay time.Duration

	// OpenErr, when set, fails every Open call.
	OpenErr error

	// Respond is replayed to the inbound direction each time a user
	// turn-boundary arrives, simulating an assistant reply.
	Respond []entities.StreamEvent

	mu      sync.Mutex
	streams []*MockStream
}

var _ repositories.ModelTransport = (*MockTransport)(nil)

// NewMockTransport creates a transport that answers every user turn with a
// short scripted assistant reply.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		Respond: []entities.StreamEvent{
			{Type: entities.EventPartialTranscript, Role: entities.RoleAssistant, Text: "That's a good point. "},
			{Type: entities.EventFinalTranscript, Role: entities.RoleAssistant, Text: "That's a good point. Can you elaborate on that?"},
			entities.AudioEvent(entities.RoleAssistant, entities.AudioFrame{PCM: make([]byte, 320), SampleRate: 16000, Seq: 1}),
			entities.BoundaryEvent(entities.RoleAssistant),
		},
	}
}

// Open implements repositories.ModelTransport.
func (t *MockTransport) Open(ctx context.Context, config repositories.SessionConfig) (repositories.ModelStream, error) {
	if t.OpenErr != nil {
		return nil, t.OpenErr
	}
	if t.OpenDelay > 0 {
		select {
		case <-time.After(t.OpenDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	stream := &MockStream{
		respond: t.Respond,
		inbound: make(chan entities.StreamEvent, 256),
		closed:  make(chan struct{}),
	}

	t.mu.Lock()
	t.streams = append(t.streams, stream)
	t.mu.Unlock()
	return stream, nil
}

// Streams returns every stream opened so far.
func (t *MockTransport) Streams() []*MockStream {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*MockStream, len(t.streams))
	copy(out, t.streams)
	return out
}

// MockStream is the duplex handle produced by MockTransport.
type MockStream struct {
	respond []entities.StreamEvent

	mu          sync.Mutex
	sent        []entities.StreamEvent
	cancelCalls int

	inbound   chan entities.StreamEvent
	closed    chan struct{}
	closeOnce sync.Once
}

var _ repositories.ModelStream = (*MockStream)(nil)

// Send records the outbound event; a user turn-boundary triggers the
// scripted assistant response.
func (s *MockStream) Send(ctx context.Context, ev entities.StreamEvent) error {
	select {
	case <-s.closed:
		return entities.ErrSessionClosed
	default:
	}

	s.mu.Lock()
	s.sent = append(s.sent, ev)
	s.mu.Unlock()

	if ev.Type == entities.EventTurnBoundary && ev.Role == entities.RoleUser {
		for _, reply := range s.respond {
			s.Emit(reply)
		}
	}
	return nil
}

// Receive implements repositories.ModelStream.
func (s *MockStream) Receive(ctx context.Context) (entities.StreamEvent, error) {
	select {
	case ev := <-s.inbound:
		return ev, nil
	case <-s.closed:
		return entities.StreamEvent{}, entities.ErrSessionClosed
	case <-ctx.Done():
		return entities.StreamEvent{}, ctx.Err()
	}
}

// CancelResponse acknowledges immediately and marks the cancelled assistant
// response with a boundary, mirroring how a realtime endpoint confirms.
func (s *MockStream) CancelResponse(ctx context.Context) error {
	select {
	case <-s.closed:
		return entities.ErrSessionClosed
	default:
	}

	s.mu.Lock()
	s.cancelCalls++
	s.mu.Unlock()
	return nil
}

// Close implements repositories.ModelStream.
func (s *MockStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
	return nil
}

// Emit injects an inbound event, as if the model produced it.
func (s *MockStream) Emit(ev entities.StreamEvent) {
	select {
	case s.inbound <- ev:
	case <-s.closed:
	}
}

// SentEvents returns a copy of everything sent to the model so far.
func (s *MockStream) SentEvents() []entities.StreamEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entities.StreamEvent, len(s.sent))
	copy(out, s.sent)
	return out
}

// CancelCalls returns how many times the client cancelled a response.
func (s *MockStream) CancelCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelCalls
}
