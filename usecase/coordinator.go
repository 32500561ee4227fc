package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jonasttaws/nova-sonic-training/domain/entities"
	"github.com/jonasttaws/nova-sonic-training/domain/repositories"
	"github.com/jonasttaws/nova-sonic-training/internal/assembler"
	"github.com/jonasttaws/nova-sonic-training/internal/mux"
	"github.com/jonasttaws/nova-sonic-training/internal/registry"
)

const (
	// DefaultNegotiationTimeout bounds how long a start request waits for the
	// remote model to confirm the session configuration.
	DefaultNegotiationTimeout = 10 * time.Second

	drainTimeout      = 3 * time.Second
	terminalEmitGrace = 5 * time.Second
)

// Coordinator supervises session lifecycles: admission, negotiation, the two
// streaming directions, barge-in handling and teardown.
type Coordinator struct {
	registry    *registry.Registry
	transport   repositories.ModelTransport
	transcripts repositories.TranscriptRepository
	logger      *zap.Logger

	negotiationTimeout time.Duration
	queueDepth         int
}

// Option tweaks coordinator construction.
type Option func(*Coordinator)

// WithNegotiationTimeout overrides the negotiation window.
func WithNegotiationTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.negotiationTimeout = d }
}

// WithQueueDepth overrides the per-direction multiplexer queue depth.
func WithQueueDepth(depth int) Option {
	return func(c *Coordinator) { c.queueDepth = depth }
}

// NewCoordinator creates a coordinator. transcripts may be nil when
// persistence is disabled.
func NewCoordinator(
	reg *registry.Registry,
	transport repositories.ModelTransport,
	transcripts repositories.TranscriptRepository,
	logger *zap.Logger,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		registry:           reg,
		transport:          transport,
		transcripts:        transcripts,
		logger:             logger,
		negotiationTimeout: DefaultNegotiationTimeout,
		queueDepth:         mux.DefaultQueueDepth,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry exposes the registry for the health surface.
func (c *Coordinator) Registry() *registry.Registry {
	return c.registry
}

// StartSession admits, allocates and negotiates a new session. On success the
// session is in StateStreaming with both pump directions running. Admission
// rejection is synchronous and creates no registry entry; negotiation failure
// leaves a Failed session behind for error reporting until reaped.
func (c *Coordinator) StartSession(ctx context.Context, scenarioID, voiceID string) (*ActiveSession, error) {
	scenario, err := entities.LookupScenario(scenarioID)
	if err != nil {
		return nil, err
	}
	voice, err := entities.LookupVoice(voiceID)
	if err != nil {
		return nil, err
	}

	session := entities.NewSession(scenario, voice)
	if err := c.registry.Add(session); err != nil {
		return nil, err
	}

	if err := session.BeginNegotiation(); err != nil {
		return nil, err
	}

	negCtx, cancel := context.WithTimeout(ctx, c.negotiationTimeout)
	defer cancel()

	stream, err := c.transport.Open(negCtx, repositories.SessionConfig{
		SessionID:  session.ID,
		Scenario:   scenario,
		Voice:      voice,
		SampleRate: 16000,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = entities.ErrNegotiationTimeout
		}
		session.Fail(err)
		c.logger.Error("Session negotiation failed",
			zap.String("sessionID", session.ID),
			zap.Error(err))
		return nil, err
	}

	if err := session.ConfirmNegotiation(); err != nil {
		stream.Close()
		session.Fail(err)
		return nil, err
	}

	sessionCtx, sessionCancel := context.WithCancel(context.Background())
	active := &ActiveSession{
		Session:     session,
		coordinator: c,
		stream:      stream,
		mux:         mux.New(c.queueDepth),
		events:      make(chan entities.StreamEvent, c.queueDepth+4),
		ctx:         sessionCtx,
		cancel:      sessionCancel,
		logger:      c.logger.With(zap.String("sessionID", session.ID)),
	}
	active.asm = assembler.New(active.logger, active.recordTurn)

	go active.outboundPump()
	go active.inboundPump()
	go active.consumeLoop()

	c.logger.Info("Session streaming",
		zap.String("sessionID", session.ID),
		zap.String("scenario", string(scenario.ID)),
		zap.String("voice", string(voice.ID)))
	return active, nil
}

// ActiveSession is one live session with both directions running. The
// web-facing layer pushes user audio in and consumes Events.
type ActiveSession struct {
	Session *entities.Session

	coordinator *Coordinator
	stream      repositories.ModelStream
	mux         *mux.Mux
	asm         *assembler.Assembler
	logger      *zap.Logger

	events chan entities.StreamEvent
	ctx    context.Context
	cancel context.CancelFunc

	// bargeMu serializes barge-in handling so duplicate signals collapse
	// into one Interrupted round-trip.
	bargeMu sync.Mutex

	// asmMu guards the assembler, which is otherwise single-goroutine.
	asmMu sync.Mutex

	shutdownOnce sync.Once
}

// Events is the stream of inbound events bound for the client: transcripts,
// assistant audio, turn boundaries, and exactly one terminal error or
// end-of-session event. The channel closes after the terminal event.
func (a *ActiveSession) Events() <-chan entities.StreamEvent {
	return a.events
}

// PushAudio feeds one user audio frame toward the model. It blocks under
// outbound backpressure rather than dropping the frame. Audio arriving in a
// state that cannot accept it is logged and ignored; the session stays
// healthy. New audio while assistant playback is pending triggers barge-in.
func (a *ActiveSession) PushAudio(ctx context.Context, frame entities.AudioFrame) error {
	if frame.Empty() {
		return nil
	}

	switch state := a.Session.State(); state {
	case entities.StateStreaming:
		if a.assistantSpeaking() {
			if err := a.bargeIn(ctx); err != nil {
				return err
			}
		}
	case entities.StateInterrupted:
		// Queue while the cancellation round-trip completes.
	default:
		a.logger.Warn("Dropping audio frame outside streaming state",
			zap.String("state", string(state)),
			zap.Uint32("seq", frame.Seq))
		return nil
	}

	return a.mux.Send(ctx, entities.AudioEvent(entities.RoleUser, frame))
}

// EndUserTurn signals that the user stopped speaking, closing their turn on
// the model side.
func (a *ActiveSession) EndUserTurn(ctx context.Context) error {
	if a.Session.State().Terminal() {
		return entities.ErrSessionClosed
	}
	return a.mux.Send(ctx, entities.BoundaryEvent(entities.RoleUser))
}

// End gracefully tears the session down: Closing, drain both directions,
// Closed, terminal end-of-session event, registry removal.
func (a *ActiveSession) End(ctx context.Context) error {
	if err := a.Session.BeginClose(); err != nil {
		var violation *entities.ProtocolViolation
		if errors.As(err, &violation) {
			// Already terminal or never streamed; nothing to tear down here.
			return nil
		}
		return err
	}

	// Tell the model we are done, then let the outbound queue drain.
	if err := a.mux.Send(ctx, entities.StreamEvent{Type: entities.EventEndOfSession}); err != nil &&
		!errors.Is(err, entities.ErrSessionClosed) {
		a.logger.Warn("Failed to send end-of-session", zap.Error(err))
	}
	a.awaitDrain()

	a.shutdown(nil)
	return nil
}

// assistantSpeaking reports whether assistant audio is still pending:
// the assistant's turn is open or inbound playback events remain queued.
// This is the barge-in detection policy.
func (a *ActiveSession) assistantSpeaking() bool {
	a.asmMu.Lock()
	open := a.asm.OpenTurn(entities.RoleAssistant) != nil
	a.asmMu.Unlock()
	return open || a.mux.InboundDepth() > 0
}

// bargeIn runs the full interruption round-trip: Streaming → Interrupted,
// truncate the assistant's open turn, cancel the model's response, and only
// resume once the model acknowledged. Concurrent duplicate signals serialize
// on bargeMu and find the session already back in Streaming.
func (a *ActiveSession) bargeIn(ctx context.Context) error {
	a.bargeMu.Lock()
	defer a.bargeMu.Unlock()

	if a.Session.State() != entities.StateStreaming {
		return nil
	}
	if err := a.Session.Interrupt(); err != nil {
		return err
	}
	a.logger.Info("Barge-in: cancelling assistant response")

	a.asmMu.Lock()
	a.asm.TruncateRole(entities.RoleAssistant)
	a.asmMu.Unlock()

	if err := a.stream.CancelResponse(ctx); err != nil {
		a.shutdown(&entities.TransportError{Direction: "outbound", Err: err})
		return err
	}

	return a.Session.Resume()
}

// outboundPump moves events from the outbound queue to the model stream.
func (a *ActiveSession) outboundPump() {
	for {
		ev, err := a.mux.NextOutbound(a.ctx)
		if err != nil {
			return
		}
		if err := a.stream.Send(a.ctx, ev); err != nil {
			if a.ctx.Err() != nil || errors.Is(err, entities.ErrSessionClosed) {
				return
			}
			a.shutdown(&entities.TransportError{Direction: "outbound", Err: err})
			return
		}
	}
}

// inboundPump moves events from the model stream into the inbound queue,
// exerting backpressure on the transport when the consumer falls behind.
func (a *ActiveSession) inboundPump() {
	for {
		ev, err := a.stream.Receive(a.ctx)
		if err != nil {
			if a.ctx.Err() != nil || errors.Is(err, entities.ErrSessionClosed) {
				return
			}
			a.shutdown(&entities.TransportError{Direction: "inbound", Err: err})
			return
		}
		if err := a.mux.Deliver(a.ctx, ev); err != nil {
			return
		}
	}
}

// consumeLoop drains the inbound queue through the turn assembler and
// forwards display events to the client.
func (a *ActiveSession) consumeLoop() {
	for {
		ev, err := a.mux.Receive(a.ctx)
		if err != nil {
			return
		}

		a.asmMu.Lock()
		procErr := a.asm.Process(ev)
		a.asmMu.Unlock()

		switch {
		case procErr != nil:
			a.shutdown(procErr)
			return
		case ev.Type == entities.EventEndOfSession:
			// Model-initiated end: close out gracefully.
			a.Session.BeginClose()
			a.shutdown(nil)
			return
		default:
			a.forward(ev)
		}
	}
}

func (a *ActiveSession) forward(ev entities.StreamEvent) {
	select {
	case a.events <- ev:
	case <-a.ctx.Done():
	}
}

// recordTurn is the assembler's emit sink.
func (a *ActiveSession) recordTurn(turn *entities.Turn) {
	a.Session.RecordTurn(turn)
	a.logger.Info("Turn completed",
		zap.String("role", string(turn.Role)),
		zap.Bool("truncated", turn.Truncated),
		zap.Int64("durationMs", turn.DurationMs()))
}

func (a *ActiveSession) awaitDrain() {
	deadline := time.Now().Add(drainTimeout)
	for !a.mux.Drained() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
}

// shutdown funnels every teardown path. err == nil closes gracefully; any
// other error fails the session. The client receives exactly one terminal
// event (end-of-session or error) before the events channel closes.
func (a *ActiveSession) shutdown(err error) {
	a.shutdownOnce.Do(func() {
		a.cancel()
		a.stream.Close()
		a.mux.Close()

		a.asmMu.Lock()
		a.asm.Flush()
		a.asmMu.Unlock()

		var terminal entities.StreamEvent
		if err != nil {
			a.Session.Fail(err)
			terminal = entities.ErrorEvent(err)
			a.logger.Error("Session failed", zap.Error(err))
		} else {
			// BeginClose already happened on every graceful path; this is the
			// Closing → Closed edge once both directions are down.
			if stateErr := a.Session.CompleteClose(); stateErr != nil {
				a.logger.Warn("Close transition out of order", zap.Error(stateErr))
			}
			terminal = entities.StreamEvent{Type: entities.EventEndOfSession}
			a.logger.Info("Session closed")
		}

		a.emitTerminal(terminal)
		close(a.events)

		a.persistTranscript()

		// Closed sessions leave the registry immediately; failed ones are
		// retained for the reaper so the failure stays observable.
		if err == nil {
			a.coordinator.registry.Remove(a.Session.ID)
		}
	})
}

func (a *ActiveSession) emitTerminal(ev entities.StreamEvent) {
	select {
	case a.events <- ev:
	case <-time.After(terminalEmitGrace):
		a.logger.Warn("Terminal event not consumed", zap.String("type", string(ev.Type)))
	}
}

func (a *ActiveSession) persistTranscript() {
	repo := a.coordinator.transcripts
	turns := a.Session.Turns()
	if repo == nil || len(turns) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	transcript := repositories.SessionTranscript{
		SessionID: a.Session.ID,
		Scenario:  a.Session.Scenario.ID,
		Voice:     a.Session.Voice.ID,
		Turns:     turns,
		StartedAt: a.Session.CreatedAt,
		EndedAt:   time.Now(),
	}
	if err := repo.Save(ctx, transcript); err != nil {
		a.logger.Error("Failed to persist transcript", zap.Error(err))
	}
}
