package repositories

import (
	"context"
	"time"

	"github.com/jonasttaws/nova-sonic-training/domain/entities"
)

// SessionTranscript is the persisted record of one finished session.
type SessionTranscript struct {
	SessionID string            `json:"session_id" bson:"session_id"`
	Scenario  entities.Scenario `json:"scenario" bson:"scenario"`
	Voice     entities.Voice    `json:"voice" bson:"voice"`
	Turns     []*entities.Turn  `json:"turns" bson:"turns"`
	StartedAt time.Time         `json:"started_at" bson:"started_at"`
	EndedAt   time.Time         `json:"ended_at" bson:"ended_at"`
}

// TranscriptRepository stores completed session transcripts for later review.
type TranscriptRepository interface {
	Save(ctx context.Context, transcript SessionTranscript) error
	GetBySessionID(ctx context.Context, sessionID string) (*SessionTranscript, error)
	ListRecent(ctx context.Context, limit int) ([]SessionTranscript, error)
}
