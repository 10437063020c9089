package whisper

import (
	"context"

	"github.com/fmueller/voxscribe/internal/transcript"
)

// Options are passed to every recognition call. Whisper segments audio on its
// own, so there is no segment length knob.
type Options struct {
	WordTimestamps bool
	Verbose        bool
	Language       string
}

// Engine loads recognition models.
type Engine interface {
	Load(ctx context.Context, model string) (Handle, error)
}

// Handle is a loaded model ready to transcribe files.
type Handle interface {
	Model() string
	Transcribe(ctx context.Context, audioPath string, opts Options) (transcript.Result, error)
	Close() error
}
