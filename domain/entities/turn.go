package entities

import (
	"strings"
	"time"
)

// Turn is one uninterrupted span of speech attributable to a single role.
// It is mutated incrementally while open and becomes immutable once complete.
type Turn struct {
	Role       Role         `json:"role" bson:"role"`
	Frames     []AudioFrame `json:"-" bson:"-"`
	Transcript string       `json:"transcript" bson:"transcript"`
	Complete   bool         `json:"complete" bson:"complete"`
	Truncated  bool         `json:"truncated,omitempty" bson:"truncated,omitempty"`
	StartedAt  time.Time    `json:"started_at" bson:"started_at"`
	EndedAt    time.Time    `json:"ended_at,omitempty" bson:"ended_at,omitempty"`

	partials []string
}

// NewTurn opens a turn for a role.
func NewTurn(role Role) *Turn {
	return &Turn{
		Role:      role,
		StartedAt: time.Now(),
	}
}

// AppendFrame adds an audio frame to an open turn. Frames arriving after
// completion are ignored; the turn is immutable once complete.
func (t *Turn) AppendFrame(frame AudioFrame) {
	if t.Complete || frame.Empty() {
		return
	}
	t.Frames = append(t.Frames, frame)
}

// AppendPartial accumulates a partial transcript fragment.
func (t *Turn) AppendPartial(text string) {
	if t.Complete || text == "" {
		return
	}
	t.partials = append(t.partials, text)
	t.Transcript = strings.Join(t.partials, "")
}

// SetFinalTranscript replaces any accumulated partials with the final text.
func (t *Turn) SetFinalTranscript(text string) {
	if t.Complete {
		return
	}
	t.partials = nil
	t.Transcript = text
}

// MarkComplete closes the turn. Idempotent.
func (t *Turn) MarkComplete() {
	if t.Complete {
		return
	}
	t.Complete = true
	t.EndedAt = time.Now()
}

// Truncate closes the turn early, discarding audio that was still queued for
// playback but keeping the transcript accumulated so far. Used on barge-in.
func (t *Turn) Truncate() {
	if t.Complete {
		return
	}
	t.Truncated = true
	t.MarkComplete()
}

// IsEmpty reports whether the turn accumulated no content. Empty turns are
// closed without being emitted.
func (t *Turn) IsEmpty() bool {
	return len(t.Frames) == 0 && t.Transcript == ""
}

// DurationMs is the wall-clock span of the turn in milliseconds.
func (t *Turn) DurationMs() int64 {
	if t.EndedAt.IsZero() {
		return time.Since(t.StartedAt).Milliseconds()
	}
	return t.EndedAt.Sub(t.StartedAt).Milliseconds()
}
