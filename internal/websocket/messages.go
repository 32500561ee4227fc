package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType defines the type of WebSocket control message
type MessageType string

// Supported message types
const (
	// Client → server
	MessageTypeStartSession MessageType = "start_session"
	MessageTypeEndTurn      MessageType = "end_turn"
	MessageTypeEndSession   MessageType = "end_session"

	// Server → client
	MessageTypeSessionStarted MessageType = "session_started"
	MessageTypeTranscript     MessageType = "transcript"
	MessageTypeTurnBoundary   MessageType = "turn_boundary"
	MessageTypeError          MessageType = "error"
	MessageTypeSessionClosed  MessageType = "session_closed"
)

// BaseMessage defines the common structure for all control messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// StartSessionMessage requests a new training session
type StartSessionMessage struct {
	BaseMessage
	Scenario   string `json:"scenario"`
	Voice      string `json:"voice"`
	SampleRate int    `json:"sample_rate,omitempty"`
}

// EndTurnMessage signals the user finished speaking
type EndTurnMessage struct {
	BaseMessage
}

// EndSessionMessage requests a graceful session end
type EndSessionMessage struct {
	BaseMessage
	SessionID string `json:"session_id,omitempty"`
}

// SessionStartedMessage confirms a session reached streaming
type SessionStartedMessage struct {
	BaseMessage
	SessionID string `json:"session_id"`
	Scenario  string `json:"scenario"`
	Voice     string `json:"voice"`
}

// TranscriptMessage carries a partial or final transcript fragment
type TranscriptMessage struct {
	BaseMessage
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	Final     bool   `json:"final"`
}

// TurnBoundaryMessage marks the end of one speaker's turn
type TurnBoundaryMessage struct {
	BaseMessage
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
}

// ErrorMessage carries a terminal or advisory error to the client
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

// SessionClosedMessage is the terminal event of a graceful close
type SessionClosedMessage struct {
	BaseMessage
	SessionID string `json:"session_id"`
}

// MessageValidator provides validation for incoming control messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage parses and validates an incoming control message
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypeStartSession:
		var msg StartSessionMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid start_session message: %w", err)
		}
		if msg.Scenario == "" {
			return nil, fmt.Errorf("scenario is required")
		}
		if msg.Voice == "" {
			return nil, fmt.Errorf("voice is required")
		}
		if msg.SampleRate != 0 && (msg.SampleRate < 8000 || msg.SampleRate > 48000) {
			return nil, fmt.Errorf("sample_rate must be between 8000 and 48000")
		}
		return &msg, nil

	case MessageTypeEndTurn:
		var msg EndTurnMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid end_turn message: %w", err)
		}
		return &msg, nil

	case MessageTypeEndSession:
		var msg EndSessionMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid end_session message: %w", err)
		}
		return &msg, nil

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

func now() string {
	return time.Now().Format(time.RFC3339)
}

// NewErrorMessage creates a standardized error message
func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: BaseMessage{Type: MessageTypeError, Timestamp: now()},
		Code:        code,
		Message:     message,
	}
}

// NewSessionStartedMessage confirms session start to the client
func NewSessionStartedMessage(sessionID, scenario, voice string) *SessionStartedMessage {
	return &SessionStartedMessage{
		BaseMessage: BaseMessage{Type: MessageTypeSessionStarted, Timestamp: now()},
		SessionID:   sessionID,
		Scenario:    scenario,
		Voice:       voice,
	}
}

// NewSessionClosedMessage builds the terminal close notification
func NewSessionClosedMessage(sessionID string) *SessionClosedMessage {
	return &SessionClosedMessage{
		BaseMessage: BaseMessage{Type: MessageTypeSessionClosed, Timestamp: now()},
		SessionID:   sessionID,
	}
}
