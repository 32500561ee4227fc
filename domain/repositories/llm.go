package repositories

import "context"

// LargeLanguageModel abstracts the chat provider playing the training
// counterpart.
type LargeLanguageModel interface {
	// GenerateChat creates a chat session primed with a scenario persona
	// prompt and prior conversation history.
	GenerateChat(ctx context.Context, systemPrompt string, history []ChatMessage) (ChatSession, error)
}

// ChatSession represents an ongoing conversation session
type ChatSession interface {
	SendMessage(ctx context.Context, message ChatMessage) (ChatMessage, error)
	History() ([]ChatMessage, error)
}

// ChatMessage represents a single message in a conversation
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role defines the type of message sender
type Role string

const (
	UserRole      Role = "user"
	AssistantRole Role = "assistant"
	SystemRole    Role = "system"
)
