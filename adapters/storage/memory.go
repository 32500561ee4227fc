// Package storage provides the in-memory transcript repository used in tests
// and when the server runs without a database configured.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jonasttaws/nova-sonic-training/domain/repositories"
)

// MemoryTranscriptRepository keeps transcripts in process memory.
type MemoryTranscriptRepository struct {
	mu          sync.RWMutex
	transcripts map[string]repositories.SessionTranscript
}

var _ repositories.TranscriptRepository = (*MemoryTranscriptRepository)(nil)

// NewMemoryTranscriptRepository creates an empty repository.
func NewMemoryTranscriptRepository() *MemoryTranscriptRepository {
	return &MemoryTranscriptRepository{
		transcripts: make(map[string]repositories.SessionTranscript),
	}
}

// Save stores or replaces the transcript for a session.
func (r *MemoryTranscriptRepository) Save(ctx context.Context, transcript repositories.SessionTranscript) error {
	if transcript.SessionID == "" {
		return fmt.Errorf("session id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcripts[transcript.SessionID] = transcript
	return nil
}

// GetBySessionID looks a transcript up.
func (r *MemoryTranscriptRepository) GetBySessionID(ctx context.Context, sessionID string) (*repositories.SessionTranscript, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	transcript, ok := r.transcripts[sessionID]
	if !ok {
		return nil, fmt.Errorf("transcript not found: %s", sessionID)
	}
	return &transcript, nil
}

// ListRecent returns up to limit transcripts, most recent first.
func (r *MemoryTranscriptRepository) ListRecent(ctx context.Context, limit int) ([]repositories.SessionTranscript, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]repositories.SessionTranscript, 0, len(r.transcripts))
	for _, t := range r.transcripts {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EndedAt.After(out[j].EndedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
