package whisper

import (
	"context"
	"fmt"

	"github.com/fmueller/voxscribe/internal/download"
	"go.uber.org/zap"
)

// ModelStore resolves model identifiers to files on disk, downloading named
// models on demand.
type ModelStore struct {
	Dir          string
	AutoDownload bool
	NoProgress   bool
	Logger       *zap.Logger
	// OnProgress receives download progress in bytes. Optional.
	OnProgress func(written, total int64)

	download func(ctx context.Context, opts download.Options) error
}

func (s *ModelStore) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// Ensure returns a resolved model whose file exists.
func (s *ModelStore) Ensure(ctx context.Context, ref string) (ResolvedModel, error) {
	resolved, err := ResolveModel(ref, s.Dir)
	if err != nil {
		return ResolvedModel{}, err
	}

	if !resolved.NeedsDownload {
		return resolved, nil
	}

	if !s.AutoDownload {
		return ResolvedModel{}, fmt.Errorf("model %q is missing at %s; run `voxscribe setup --model %s` or use --auto-download=true", resolved.Name, resolved.Path, resolved.Name)
	}

	fetch := s.download
	if fetch == nil {
		fetch = download.DownloadFile
	}

	s.log().Info("model not found, downloading", zap.String("model", resolved.Name), zap.String("destination", resolved.Path))
	if err := fetch(ctx, download.Options{
		URL:            resolved.URL,
		Destination:    resolved.Path,
		ExpectedSHA256: resolved.SHA256,
		ChecksumURL:    resolved.SHA256URL,
		NoProgress:     s.NoProgress,
		Logger:         s.log(),
		OnProgress:     s.OnProgress,
	}); err != nil {
		return ResolvedModel{}, fmt.Errorf("download model %q: %w", resolved.Name, err)
	}

	resolved.NeedsDownload = false
	return resolved, nil
}
