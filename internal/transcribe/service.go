// Package transcribe turns one uploaded file or recording into an SRT and a
// plain-text transcript on disk.
package transcribe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fmueller/voxscribe/internal/audio"
	"github.com/fmueller/voxscribe/internal/observe"
	"github.com/fmueller/voxscribe/internal/transcript"
	"github.com/fmueller/voxscribe/internal/whisper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// silenceThresholdDBFS is the level under which a WAV input is reported as
// probably containing no speech.
const silenceThresholdDBFS = -65

// Progress receives advisory progress updates. fraction is in [0, 1].
type Progress func(fraction float64, description string)

// Request is one transcription job. File wins over Recording when both are set.
type Request struct {
	File      string
	Recording string
	Model     string
	ID        string
}

type Config struct {
	Cache     *whisper.Cache
	OutputDir string
	Language  string
	Logger    *zap.Logger
	Metrics   *observe.Metrics
	Now       func() time.Time
}

// Service runs requests one at a time against a single cached model.
type Service struct {
	cache     *whisper.Cache
	outputDir string
	language  string
	logger    *zap.Logger
	metrics   *observe.Metrics
	now       func() time.Time
	sem       *semaphore.Weighted
}

func New(cfg Config) *Service {
	s := &Service{
		cache:     cfg.Cache,
		outputDir: cfg.OutputDir,
		language:  cfg.Language,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		now:       cfg.Now,
		sem:       semaphore.NewWeighted(1),
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.metrics == nil {
		s.metrics = observe.Discard()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.outputDir == "" {
		s.outputDir = os.TempDir()
	}
	return s
}

// OutputDir is where artifacts are written.
func (s *Service) OutputDir() string {
	return s.outputDir
}

// Run executes req. It returns ErrInputMissing without touching the engine
// when no input is given, and a *ProcessingError for every later failure.
func (s *Service) Run(ctx context.Context, req Request, progress Progress) (*Report, error) {
	if progress == nil {
		progress = func(float64, string) {}
	}

	in, ok := resolveInput(req.File, req.Recording, s.now())
	if !ok {
		return nil, ErrInputMissing
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = whisper.DefaultModel
	}

	ctx, span := observe.StartSpan(ctx, "transcribe.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("voxscribe.model", model),
		attribute.String("voxscribe.source", string(in.source)),
		attribute.String("voxscribe.request_id", req.ID),
	)

	log := observe.Logger(ctx, s.logger).With(
		zap.String("request_id", req.ID),
		zap.String("model", model),
		zap.String("source", string(in.source)),
	)

	report, err := s.run(ctx, log, in, model, progress)
	status := "ok"
	if err != nil {
		status = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("transcription failed", zap.String("input", in.path), zap.Error(err))
	}
	s.metrics.RecordTranscription(ctx, model, string(in.source), status)
	return report, err
}

func (s *Service) run(ctx context.Context, log *zap.Logger, in input, model string, progress Progress) (*Report, error) {
	if err := checkReadable(in.path); err != nil {
		return nil, &ProcessingError{Stage: StageInput, Err: err}
	}

	s.metrics.ActiveTranscriptions.Add(ctx, 1)
	defer s.metrics.ActiveTranscriptions.Add(ctx, -1)

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, &ProcessingError{Stage: StageQueue, Err: err}
	}
	defer s.sem.Release(1)

	progress(0.1, "Loading model...")
	if s.cache == nil {
		return nil, &ProcessingError{Stage: StageLoad, Err: errors.New("no recognition engine configured")}
	}
	cached := s.cache.Loaded() == model
	handle, err := s.cache.Acquire(ctx, model)
	if err != nil {
		return nil, &ProcessingError{Stage: StageLoad, Err: err}
	}
	if !cached {
		s.metrics.RecordModelLoad(ctx, model)
	}

	progress(0.3, "Processing "+string(in.source)+"...")
	s.adviseOnSilence(log, in.path)

	start := time.Now()
	result, err := handle.Transcribe(ctx, in.path, whisper.Options{
		WordTimestamps: true,
		Verbose:        true,
		Language:       s.language,
	})
	elapsed := time.Since(start)
	if err != nil {
		return nil, &ProcessingError{Stage: StageRecognize, Err: err}
	}
	s.metrics.RecordRecognition(ctx, model, elapsed.Seconds())
	log.Info("recognition finished",
		zap.Int("segments", len(result.Segments)),
		zap.Float64("duration_seconds", result.Duration),
		zap.Duration("elapsed", elapsed),
	)

	progress(0.7, "Generating output files...")
	srt, txt := transcript.BuildArtifacts(in.base, result.Segments)
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return nil, &ProcessingError{Stage: StageFormat, Err: err}
	}
	paths, err := transcript.WriteAll(s.outputDir, srt, txt)
	if err != nil {
		return nil, &ProcessingError{Stage: StageFormat, Err: err}
	}

	progress(1.0, "Complete!")
	log.Info("transcription written", zap.String("srt", paths[0]), zap.String("txt", paths[1]))

	return &Report{
		Status:   statusText(srt.FileName, txt.FileName, model, in.source, result.Duration),
		SRTPath:  paths[0],
		TXTPath:  paths[1],
		Preview:  transcript.Preview(txt.Content),
		Text:     txt.Content,
		Model:    model,
		Source:   in.source,
		Base:     in.base,
		Duration: result.Duration,
	}, nil
}

// adviseOnSilence logs a hint when a WAV input is near-silent. It never
// changes the outcome of the request.
func (s *Service) adviseOnSilence(log *zap.Logger, path string) {
	if !strings.EqualFold(filepath.Ext(path), ".wav") {
		return
	}

	info, err := audio.Probe(path)
	if err != nil {
		log.Debug("silence analysis skipped", zap.String("input", path), zap.Error(err))
		return
	}
	if info.IsSilent(silenceThresholdDBFS) {
		log.Warn("no speech detected; input appears silent",
			zap.String("input", path),
			zap.Float64("rms_dbfs", info.RMSdBFS),
			zap.Float64("peak_dbfs", info.PeakdBFS),
		)
	}
}
