package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/jonasttaws/nova-sonic-training/domain/repositories"
)

const transcriptCollection = "transcripts"

// TranscriptRepository persists session transcripts in MongoDB.
type TranscriptRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

var _ repositories.TranscriptRepository = (*TranscriptRepository)(nil)

// NewTranscriptRepository creates a transcript repository backed by the client's database.
func NewTranscriptRepository(client *Client, logger *zap.Logger) *TranscriptRepository {
	return &TranscriptRepository{
		collection: client.Collection(transcriptCollection),
		logger:     logger,
	}
}

// Save stores or replaces the transcript for a session.
func (r *TranscriptRepository) Save(ctx context.Context, transcript repositories.SessionTranscript) error {
	if transcript.SessionID == "" {
		return fmt.Errorf("session id is required")
	}

	filter := bson.M{"session_id": transcript.SessionID}
	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection.ReplaceOne(ctx, filter, transcript, opts); err != nil {
		return fmt.Errorf("failed to save transcript: %w", err)
	}

	r.logger.Debug("Transcript saved",
		zap.String("sessionID", transcript.SessionID),
		zap.Int("turns", len(transcript.Turns)))
	return nil
}

// GetBySessionID looks a transcript up.
func (r *TranscriptRepository) GetBySessionID(ctx context.Context, sessionID string) (*repositories.SessionTranscript, error) {
	var transcript repositories.SessionTranscript
	err := r.collection.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&transcript)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("transcript not found: %s", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find transcript: %w", err)
	}
	return &transcript, nil
}

// ListRecent returns up to limit transcripts, most recent first.
func (r *TranscriptRepository) ListRecent(ctx context.Context, limit int) ([]repositories.SessionTranscript, error) {
	if limit <= 0 {
		limit = 20
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "ended_at", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcripts: %w", err)
	}
	defer cursor.Close(ctx)

	var transcripts []repositories.SessionTranscript
	if err := cursor.All(ctx, &transcripts); err != nil {
		return nil, fmt.Errorf("failed to decode transcripts: %w", err)
	}
	return transcripts, nil
}
