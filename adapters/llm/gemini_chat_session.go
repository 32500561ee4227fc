package llm

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/jonasttaws/nova-sonic-training/domain/repositories"
)

const chatTimeout = 15 * time.Second

// GeminiChatSession implements the ChatSession interface
type GeminiChatSession struct {
	client       *genai.Client
	logger       *zap.Logger
	model        string
	systemPrompt string
	history      []*genai.Content
}

func newGeminiChatSession(client *genai.Client, logger *zap.Logger, model, systemPrompt string, history []repositories.ChatMessage) *GeminiChatSession {
	return &GeminiChatSession{
		client:       client,
		logger:       logger,
		model:        model,
		systemPrompt: systemPrompt,
		history:      toGeminiHistory(history),
	}
}

// SendMessage sends a message and gets a response, updating the history
func (s *GeminiChatSession) SendMessage(ctx context.Context, message repositories.ChatMessage) (repositories.ChatMessage, error) {
	userContent := genai.NewContentFromText(message.Content, genai.RoleUser)

	contents := make([]*genai.Content, 0, len(s.history)+1)
	contents = append(contents, s.history...)
	contents = append(contents, userContent)

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(s.systemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(float32(defaultTemperature)),
		TopP:              genai.Ptr(float32(defaultTopP)),
		TopK:              genai.Ptr(float32(defaultTopK)),
		MaxOutputTokens:   defaultMaxOutputTokens,
	}

	ctx, cancel := context.WithTimeout(ctx, chatTimeout)
	defer cancel()

	var response *genai.GenerateContentResponse
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		response, err = s.client.Models.GenerateContent(ctx, s.model, contents, config)
		if err == nil {
			break
		}

		s.logger.Warn("Failed to generate content, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if attempt < 2 {
			select {
			case <-ctx.Done():
				return repositories.ChatMessage{}, ctx.Err()
			case <-time.After(time.Duration(attempt+1) * time.Second):
			}
		}
	}
	if err != nil {
		return repositories.ChatMessage{}, err
	}

	responseText := extractText(response)
	if responseText == "" {
		s.logger.Warn("Empty response from chat model")
		return repositories.ChatMessage{}, ErrEmptyResponse
	}

	s.history = append(s.history,
		userContent,
		genai.NewContentFromText(responseText, genai.RoleModel))

	return repositories.ChatMessage{
		Role:    repositories.AssistantRole,
		Content: responseText,
	}, nil
}

// History returns the current conversation history
func (s *GeminiChatSession) History() ([]repositories.ChatMessage, error) {
	return fromGeminiHistory(s.history), nil
}

func extractText(response *genai.GenerateContentResponse) string {
	if response == nil || len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return ""
	}
	var text string
	for _, part := range response.Candidates[0].Content.Parts {
		if part.Text != "" {
			text += part.Text
		}
	}
	return text
}

func toGeminiHistory(messages []repositories.ChatMessage) []*genai.Content {
	var contents []*genai.Content
	for _, msg := range messages {
		var role genai.Role
		switch msg.Role {
		case repositories.AssistantRole:
			role = genai.RoleModel
		default:
			role = genai.RoleUser
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	return contents
}

func fromGeminiHistory(contents []*genai.Content) []repositories.ChatMessage {
	var messages []repositories.ChatMessage
	for _, content := range contents {
		role := repositories.UserRole
		if content.Role == genai.RoleModel {
			role = repositories.AssistantRole
		}

		var text string
		for _, part := range content.Parts {
			if part.Text != "" {
				text += part.Text
			}
		}
		if text != "" {
			messages = append(messages, repositories.ChatMessage{Role: role, Content: text})
		}
	}
	return messages
}
