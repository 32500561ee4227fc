package repositories

import (
	"context"

	"github.com/jonasttaws/nova-sonic-training/domain/entities"
)

// TextToSpeech synthesizes assistant speech. The returned channel streams raw
// PCM chunks and is closed when synthesis completes or ctx is cancelled.
type TextToSpeech interface {
	ConvertTextToSpeech(ctx context.Context, text string, voice entities.Voice) (<-chan []byte, error)
}
