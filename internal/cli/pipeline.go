package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fmueller/voxscribe/internal/health"
	"github.com/fmueller/voxscribe/internal/media"
	"github.com/fmueller/voxscribe/internal/observe"
	"github.com/fmueller/voxscribe/internal/platform"
	"github.com/fmueller/voxscribe/internal/transcribe"
	"github.com/fmueller/voxscribe/internal/whisper"
)

type pipelineOptions struct {
	Metrics *observe.Metrics
}

// pipeline is a transcription service together with the engine and model
// cache behind it.
type pipeline struct {
	svc    *transcribe.Service
	engine whisper.Engine
	cache  *whisper.Cache
}

func (p *pipeline) Close() error {
	if p == nil || p.cache == nil {
		return nil
	}
	return p.cache.Close()
}

// checkers reports readiness of the engine and the output directory.
func (p *pipeline) checkers() []health.Checker {
	checkers := []health.Checker{{
		Name: "output_dir",
		Check: func(context.Context) error {
			info, err := os.Stat(p.svc.OutputDir())
			if err != nil {
				return err
			}
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", p.svc.OutputDir())
			}
			return nil
		},
	}}

	if r, ok := p.engine.(interface{ Ready(context.Context) error }); ok {
		checkers = append(checkers, health.Checker{Name: "engine", Check: r.Ready})
	}
	return checkers
}

func (a *appState) modelStorageDir() (string, error) {
	dir, err := platform.ResolveModelDir(a.cfg.Engine.ModelDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create model directory %s: %w", dir, err)
	}
	return dir, nil
}

func (a *appState) buildPipeline(_ context.Context, opts pipelineOptions) (*pipeline, error) {
	modelDir, err := a.modelStorageDir()
	if err != nil {
		return nil, err
	}

	store := &whisper.ModelStore{
		Dir:          modelDir,
		AutoDownload: a.cfg.Engine.AutoDownload,
		NoProgress:   !a.progressEnabled(),
		Logger:       a.log(),
	}

	engine, err := whisper.NewEngine(whisper.Settings{
		Backend:     a.cfg.Engine.Backend,
		WhisperPath: a.cfg.Engine.WhisperPath,
		Store:       store,
		Converter:   media.NewConverter(a.cfg.Engine.FFmpegPath),
		Logger:      a.log(),
	})
	if err != nil {
		return nil, err
	}

	return a.pipelineFor(engine, opts), nil
}

func (a *appState) pipelineFor(engine whisper.Engine, opts pipelineOptions) *pipeline {
	cache := whisper.NewCache(engine, a.log())
	svc := transcribe.New(transcribe.Config{
		Cache:     cache,
		OutputDir: platform.ResolveOutputDir(a.cfg.Output.Dir),
		Language:  a.cfg.Engine.Language,
		Logger:    a.log(),
		Metrics:   opts.Metrics,
		Now:       a.now,
	})
	return &pipeline{svc: svc, engine: engine, cache: cache}
}

func (a *appState) openPipeline(ctx context.Context, opts pipelineOptions) (*pipeline, error) {
	build := a.newPipeline
	if build == nil {
		build = a.buildPipeline
	}
	p, err := build(ctx, opts)
	if err != nil {
		return nil, err
	}
	if p == nil || p.svc == nil {
		return nil, errors.New("transcription pipeline is not configured")
	}
	return p, nil
}
