package model

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/jonasttaws/nova-sonic-training/adapters/llm"
	"github.com/jonasttaws/nova-sonic-training/domain/entities"
	"github.com/jonasttaws/nova-sonic-training/domain/repositories"
)

// ComposedTransport assembles a duplex speech model from discrete services:
// streaming recognition for the user's speech, a chat model playing the
// scenario persona, and speech synthesis for the reply.
type ComposedTransport struct {
	stt    repositories.SpeechToText
	llm    repositories.LargeLanguageModel
	tts    repositories.TextToSpeech
	logger *zap.Logger
}

var _ repositories.ModelTransport = (*ComposedTransport)(nil)

// NewComposedTransport wires the three services into one transport.
func NewComposedTransport(stt repositories.SpeechToText, languageModel repositories.LargeLanguageModel, tts repositories.TextToSpeech, logger *zap.Logger) *ComposedTransport {
	return &ComposedTransport{
		stt:    stt,
		llm:    languageModel,
		tts:    tts,
		logger: logger,
	}
}

// Open primes a chat session with the scenario persona. That round trip is
// the negotiation; ctx carries its deadline.
func (t *ComposedTransport) Open(ctx context.Context, config repositories.SessionConfig) (repositories.ModelStream, error) {
	chat, err := t.llm.GenerateChat(ctx, config.Scenario.SystemPrompt, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to prime chat session: %w", err)
	}

	sampleRate := config.SampleRate
	if sampleRate == 0 {
		sampleRate = 16000
	}

	stream := &composedStream{
		stt:        t.stt,
		chat:       chat,
		tts:        t.tts,
		scenario:   config.Scenario,
		voice:      config.Voice.ID,
		sampleRate: sampleRate,
		logger:     t.logger.With(zap.String("sessionID", config.SessionID)),
		inbound:    make(chan inboundResult, 64),
		closed:     make(chan struct{}),
	}
	return stream, nil
}

type composedStream struct {
	stt        repositories.SpeechToText
	chat       repositories.ChatSession
	tts        repositories.TextToSpeech
	scenario   entities.ScenarioProfile
	voice      entities.Voice
	sampleRate int
	logger     *zap.Logger

	mu          sync.Mutex
	recognition repositories.SpeechToTextStreaming

	// respondCancel aborts the in-flight reply; respondDone closes when the
	// reply goroutine has fully stopped.
	respondCancel context.CancelFunc
	respondDone   chan struct{}

	inbound   chan inboundResult
	closed    chan struct{}
	closeOnce sync.Once
}

var _ repositories.ModelStream = (*composedStream)(nil)

// Send consumes one outbound event. A user turn boundary finalizes
// recognition and starts the assistant reply.
func (s *composedStream) Send(ctx context.Context, ev entities.StreamEvent) error {
	select {
	case <-s.closed:
		return entities.ErrSessionClosed
	default:
	}

	switch ev.Type {
	case entities.EventAudioChunk:
		return s.feedAudio(ctx, ev.Frame)

	case entities.EventTurnBoundary:
		if ev.Role != entities.RoleUser {
			return nil
		}
		return s.finishUserTurn(ctx)

	case entities.EventEndOfSession:
		return nil

	default:
		return fmt.Errorf("unsupported outbound event type: %s", ev.Type)
	}
}

func (s *composedStream) feedAudio(ctx context.Context, frame entities.AudioFrame) error {
	if frame.Empty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recognition == nil {
		recognition, err := s.stt.InitTranscribeStreaming(ctx, repositories.AudioConfig{
			SampleRate: s.sampleRate,
			Encoding:   "LINEAR16",
			Language:   "en-US",
		})
		if err != nil {
			return &entities.TransportError{Direction: "outbound", Err: err}
		}
		s.recognition = recognition
	}

	if err := s.recognition.Stream(frame.PCM); err != nil {
		return &entities.TransportError{Direction: "outbound", Err: err}
	}
	return nil
}

func (s *composedStream) finishUserTurn(ctx context.Context) error {
	s.mu.Lock()
	recognition := s.recognition
	s.recognition = nil
	s.mu.Unlock()

	if recognition == nil {
		s.logger.Warn("Turn boundary without any audio")
		return nil
	}

	transcript, err := recognition.End()
	if err != nil {
		// Unintelligible audio is not fatal; the persona asks for a repeat.
		s.logger.Warn("Recognition produced no transcript", zap.Error(err))
		transcript = ""
	}

	if transcript != "" {
		s.deliver(inboundResult{ev: entities.StreamEvent{
			Type: entities.EventFinalTranscript,
			Role: entities.RoleUser,
			Text: transcript,
		}})
		s.deliver(inboundResult{ev: entities.BoundaryEvent(entities.RoleUser)})
	}

	respondCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.respondCancel = cancel
	s.respondDone = done
	s.mu.Unlock()

	go s.respond(respondCtx, done, transcript)
	return nil
}

// respond generates and synthesizes one assistant reply.
func (s *composedStream) respond(ctx context.Context, done chan struct{}, userText string) {
	defer close(done)

	text := s.generateReply(ctx, userText)
	if ctx.Err() != nil {
		return
	}

	s.deliver(inboundResult{ev: entities.StreamEvent{
		Type: entities.EventFinalTranscript,
		Role: entities.RoleAssistant,
		Text: text,
	}})

	audio, err := s.tts.ConvertTextToSpeech(ctx, text, s.voice)
	if err != nil {
		s.logger.Error("Speech synthesis failed", zap.Error(err))
		s.deliver(inboundResult{ev: entities.BoundaryEvent(entities.RoleAssistant)})
		return
	}

	var seq uint32
	for chunk := range audio {
		if ctx.Err() != nil {
			// Drain the channel so the synthesis goroutine can exit.
			for range audio {
			}
			return
		}
		seq++
		s.deliver(inboundResult{ev: entities.AudioEvent(entities.RoleAssistant, entities.AudioFrame{
			PCM:        chunk,
			SampleRate: s.sampleRate,
			Seq:        seq,
		})})
	}

	if ctx.Err() == nil {
		s.deliver(inboundResult{ev: entities.BoundaryEvent(entities.RoleAssistant)})
	}
}

func (s *composedStream) generateReply(ctx context.Context, userText string) string {
	if userText == "" {
		return s.scenario.Fallback
	}

	reply, err := s.chat.SendMessage(ctx, repositories.ChatMessage{
		Role:    repositories.UserRole,
		Content: userText,
	})
	if err != nil {
		if !errors.Is(err, llm.ErrEmptyResponse) {
			s.logger.Warn("Chat model failed, using scenario fallback", zap.Error(err))
		}
		return s.scenario.Fallback
	}
	return reply.Content
}

// Receive blocks for the next inbound event.
func (s *composedStream) Receive(ctx context.Context) (entities.StreamEvent, error) {
	select {
	case res := <-s.inbound:
		return res.ev, res.err
	case <-s.closed:
		return entities.StreamEvent{}, entities.ErrSessionClosed
	case <-ctx.Done():
		return entities.StreamEvent{}, ctx.Err()
	}
}

// CancelResponse aborts the in-flight reply and blocks until the reply
// goroutine has stopped producing.
func (s *composedStream) CancelResponse(ctx context.Context) error {
	select {
	case <-s.closed:
		return entities.ErrSessionClosed
	default:
	}

	s.mu.Lock()
	cancel := s.respondCancel
	done := s.respondDone
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-s.closed:
		return entities.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears the stream down; pending Send/Receive fail promptly.
func (s *composedStream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		if s.respondCancel != nil {
			s.respondCancel()
		}
		s.mu.Unlock()
		close(s.closed)
	})
	return nil
}

func (s *composedStream) deliver(res inboundResult) {
	select {
	case s.inbound <- res:
	case <-s.closed:
	}
}
