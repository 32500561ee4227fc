package model

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jonasttaws/nova-sonic-training/domain/entities"
	"github.com/jonasttaws/nova-sonic-training/domain/repositories"
	"github.com/jonasttaws/nova-sonic-training/internal/codec"
)

const (
	dialRetries      = 3
	dialRetryBackoff = 500 * time.Millisecond
	handshakeTimeout = 10 * time.Second
	cancelAckTimeout = 5 * time.Second
	writeTimeout     = 10 * time.Second
)

// RealtimeTransport connects to a remote speech-to-speech endpoint over
// websocket. One dialed connection serves one session.
type RealtimeTransport struct {
	endpoint string
	apiKey   string
	logger   *zap.Logger
	dialer   *websocket.Dialer
}

var _ repositories.ModelTransport = (*RealtimeTransport)(nil)

// NewRealtimeTransport creates a transport for the given endpoint URL.
func NewRealtimeTransport(endpoint, apiKey string, logger *zap.Logger) *RealtimeTransport {
	return &RealtimeTransport{
		endpoint: endpoint,
		apiKey:   apiKey,
		logger:   logger,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

// controlEnvelope is the JSON frame exchanged with the model endpoint. Audio
// travels as binary frames outside the envelope.
type controlEnvelope struct {
	Type       string `json:"type"`
	SessionID  string `json:"session_id,omitempty"`
	Scenario   string `json:"scenario,omitempty"`
	Prompt     string `json:"system_prompt,omitempty"`
	Voice      string `json:"voice,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Role       string `json:"role,omitempty"`
	Text       string `json:"text,omitempty"`
	Final      bool   `json:"final,omitempty"`
	Message    string `json:"message,omitempty"`
}

const (
	frameSessionStart  = "session.start"
	frameSessionReady  = "session.ready"
	frameSessionEnd    = "session.end"
	frameTurnEnd       = "turn.end"
	frameTranscript    = "transcript"
	frameResponseDone  = "response.done"
	frameCancel        = "response.cancel"
	frameCancelled     = "response.cancelled"
	frameUpstreamError = "error"
)

// Open dials the endpoint, sends the session configuration and waits for the
// ready confirmation. ctx carries the negotiation deadline.
func (t *RealtimeTransport) Open(ctx context.Context, config repositories.SessionConfig) (repositories.ModelStream, error) {
	conn, err := t.dial(ctx)
	if err != nil {
		return nil, err
	}

	start := controlEnvelope{
		Type:       frameSessionStart,
		SessionID:  config.SessionID,
		Scenario:   string(config.Scenario.ID),
		Prompt:     config.Scenario.SystemPrompt,
		Voice:      string(config.Voice.ID),
		SampleRate: config.SampleRate,
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
		conn.SetReadDeadline(deadline)
	}
	if err := conn.WriteJSON(start); err != nil {
		conn.Close()
		return nil, &entities.TransportError{Direction: "outbound", Err: err}
	}

	// The first frame back must confirm the configuration.
	var ready controlEnvelope
	if err := conn.ReadJSON(&ready); err != nil {
		conn.Close()
		return nil, &entities.TransportError{Direction: "inbound", Err: err}
	}
	if ready.Type != frameSessionReady {
		conn.Close()
		return nil, &entities.TransportError{
			Direction: "inbound",
			Err:       fmt.Errorf("expected %s, got %s: %s", frameSessionReady, ready.Type, ready.Message),
		}
	}
	conn.SetReadDeadline(time.Time{})

	stream := &realtimeStream{
		conn:    conn,
		logger:  t.logger.With(zap.String("sessionID", config.SessionID)),
		inbound: make(chan inboundResult, 64),
		acks:    make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
	go stream.readLoop()

	t.logger.Info("Realtime session negotiated",
		zap.String("sessionID", config.SessionID),
		zap.String("scenario", string(config.Scenario.ID)))
	return stream, nil
}

func (t *RealtimeTransport) dial(ctx context.Context) (*websocket.Conn, error) {
	header := map[string][]string{}
	if t.apiKey != "" {
		header["Authorization"] = []string{"Bearer " + t.apiKey}
	}

	var lastErr error
	for attempt := 0; attempt < dialRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * dialRetryBackoff):
			}
		}

		conn, _, err := t.dialer.DialContext(ctx, t.endpoint, header)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		t.logger.Warn("Model endpoint dial failed",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return nil, &entities.TransportError{Direction: "outbound", Err: lastErr}
}

type inboundResult struct {
	ev  entities.StreamEvent
	err error
}

type realtimeStream struct {
	conn   *websocket.Conn
	logger *zap.Logger

	writeMu sync.Mutex

	inbound chan inboundResult
	acks    chan struct{}

	closed    chan struct{}
	closeOnce sync.Once
}

var _ repositories.ModelStream = (*realtimeStream)(nil)

// Send delivers one outbound event. Audio goes as a binary codec frame,
// control events as JSON.
func (s *realtimeStream) Send(ctx context.Context, ev entities.StreamEvent) error {
	select {
	case <-s.closed:
		return entities.ErrSessionClosed
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	var err error
	switch ev.Type {
	case entities.EventAudioChunk:
		var wire []byte
		wire, err = codec.Encode(ev.Frame)
		if err != nil {
			return err
		}
		err = s.conn.WriteMessage(websocket.BinaryMessage, wire)

	case entities.EventTurnBoundary:
		err = s.conn.WriteJSON(controlEnvelope{Type: frameTurnEnd, Role: string(ev.Role)})

	case entities.EventEndOfSession:
		err = s.conn.WriteJSON(controlEnvelope{Type: frameSessionEnd})

	default:
		return fmt.Errorf("unsupported outbound event type: %s", ev.Type)
	}

	if err != nil {
		return &entities.TransportError{Direction: "outbound", Err: err}
	}
	return nil
}

// Receive blocks for the next inbound event.
func (s *realtimeStream) Receive(ctx context.Context) (entities.StreamEvent, error) {
	select {
	case res, ok := <-s.inbound:
		if !ok {
			return entities.StreamEvent{}, entities.ErrSessionClosed
		}
		return res.ev, res.err
	case <-s.closed:
		return entities.StreamEvent{}, entities.ErrSessionClosed
	case <-ctx.Done():
		return entities.StreamEvent{}, ctx.Err()
	}
}

// CancelResponse asks the model to stop its in-flight response and blocks
// until the cancellation is acknowledged.
func (s *realtimeStream) CancelResponse(ctx context.Context) error {
	select {
	case <-s.closed:
		return entities.ErrSessionClosed
	default:
	}

	s.writeMu.Lock()
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := s.conn.WriteJSON(controlEnvelope{Type: frameCancel})
	s.writeMu.Unlock()
	if err != nil {
		return &entities.TransportError{Direction: "outbound", Err: err}
	}

	ackCtx, cancel := context.WithTimeout(ctx, cancelAckTimeout)
	defer cancel()

	select {
	case <-s.acks:
		return nil
	case <-s.closed:
		return entities.ErrSessionClosed
	case <-ackCtx.Done():
		return &entities.TransportError{Direction: "inbound", Err: fmt.Errorf("cancellation not acknowledged: %w", ackCtx.Err())}
	}
}

// Close tears the connection down; pending Send/Receive fail promptly.
func (s *realtimeStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.writeMu.Lock()
		s.conn.SetWriteDeadline(time.Now().Add(time.Second))
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		s.conn.Close()
	})
	return nil
}

// readLoop decodes wire frames into stream events until the connection drops.
func (s *realtimeStream) readLoop() {
	defer close(s.inbound)

	for {
		messageType, payload, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closed:
			default:
				s.deliver(inboundResult{err: &entities.TransportError{Direction: "inbound", Err: err}})
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			frame, err := codec.Decode(payload)
			if err != nil {
				s.logger.Warn("Dropping malformed model audio frame", zap.Error(err))
				continue
			}
			s.deliver(inboundResult{ev: entities.AudioEvent(entities.RoleAssistant, frame)})

		case websocket.TextMessage:
			var env controlEnvelope
			if err := json.Unmarshal(payload, &env); err != nil {
				s.logger.Warn("Dropping malformed control frame", zap.Error(err))
				continue
			}
			s.dispatch(env)
		}
	}
}

func (s *realtimeStream) dispatch(env controlEnvelope) {
	switch env.Type {
	case frameTranscript:
		eventType := entities.EventPartialTranscript
		if env.Final {
			eventType = entities.EventFinalTranscript
		}
		role := entities.RoleAssistant
		if env.Role == string(entities.RoleUser) {
			role = entities.RoleUser
		}
		s.deliver(inboundResult{ev: entities.StreamEvent{Type: eventType, Role: role, Text: env.Text}})

	case frameResponseDone:
		s.deliver(inboundResult{ev: entities.BoundaryEvent(entities.RoleAssistant)})

	case frameCancelled:
		select {
		case s.acks <- struct{}{}:
		default:
		}

	case frameSessionEnd:
		s.deliver(inboundResult{ev: entities.StreamEvent{Type: entities.EventEndOfSession}})

	case frameUpstreamError:
		s.deliver(inboundResult{ev: entities.ErrorEvent(
			&entities.TransportError{Direction: "inbound", Err: fmt.Errorf("model error: %s", env.Message)})})

	default:
		s.logger.Warn("Unknown control frame from model", zap.String("type", env.Type))
	}
}

func (s *realtimeStream) deliver(res inboundResult) {
	select {
	case s.inbound <- res:
	case <-s.closed:
	}
}
