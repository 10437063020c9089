//go:build whispercpp

// The native engine links whisper.cpp through CGO. libwhisper.a and
// whisper.h must be reachable through LIBRARY_PATH and C_INCLUDE_PATH.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fmueller/voxscribe/internal/audio"
	"github.com/fmueller/voxscribe/internal/media"
	"github.com/fmueller/voxscribe/internal/transcript"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"go.uber.org/zap"
)

func init() {
	newNativeEngine = func(store *ModelStore, converter *media.Converter, logger *zap.Logger) Engine {
		return &NativeEngine{Store: store, Converter: converter, Logger: logger}
	}
}

// NativeEngine keeps the model in process memory between requests.
type NativeEngine struct {
	Store     *ModelStore
	Converter *media.Converter
	Logger    *zap.Logger
}

func (e *NativeEngine) Load(ctx context.Context, model string) (Handle, error) {
	resolved, err := e.Store.Ensure(ctx, model)
	if err != nil {
		return nil, err
	}

	loaded, err := whisperlib.New(resolved.Path)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", resolved.Path, err)
	}

	return &nativeHandle{engine: e, name: model, model: loaded}, nil
}

type nativeHandle struct {
	engine *NativeEngine
	name   string

	// whisper contexts are not thread-safe; one inference at a time.
	mu    sync.Mutex
	model whisperlib.Model
}

func (h *nativeHandle) Model() string { return h.name }

func (h *nativeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.model == nil {
		return nil
	}
	err := h.model.Close()
	h.model = nil
	return err
}

func (h *nativeHandle) Transcribe(ctx context.Context, audioPath string, opts Options) (transcript.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.model == nil {
		return transcript.Result{}, errors.New("whisper: model is closed")
	}

	wavPath := audioPath
	if media.NeedsConversion(audioPath) {
		workDir, err := os.MkdirTemp("", "voxscribe-native-*")
		if err != nil {
			return transcript.Result{}, fmt.Errorf("create work directory: %w", err)
		}
		defer os.RemoveAll(workDir)

		wavPath = filepath.Join(workDir, "input.wav")
		if err := h.engine.Converter.ToWAV(ctx, audioPath, wavPath); err != nil {
			return transcript.Result{}, err
		}
	}

	clip, err := audio.Load(wavPath)
	if err != nil {
		return transcript.Result{}, err
	}
	if clip.SampleRate != media.SampleRate {
		return transcript.Result{}, fmt.Errorf("whisper: expected %d Hz audio, got %d Hz", media.SampleRate, clip.SampleRate)
	}
	samples, err := clip.Mono()
	if err != nil {
		return transcript.Result{}, err
	}

	wctx, err := h.model.NewContext()
	if err != nil {
		return transcript.Result{}, fmt.Errorf("whisper: create context: %w", err)
	}

	lang := strings.TrimSpace(opts.Language)
	if lang == "" {
		lang = "auto"
	}
	if err := wctx.SetLanguage(lang); err != nil {
		h.engine.Logger.Warn("whisper: failed to set language, using default", zap.String("language", lang), zap.Error(err))
	}
	wctx.SetTokenTimestamps(opts.WordTimestamps)

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return transcript.Result{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	result := transcript.Result{Duration: clip.Duration()}
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return transcript.Result{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		if opts.Verbose {
			h.engine.Logger.Debug(strings.TrimSpace(segment.Text), zap.Duration("start", segment.Start), zap.Duration("end", segment.End))
		}
		result.Segments = append(result.Segments, transcript.Segment{
			Start: segment.Start.Seconds(),
			End:   segment.End.Seconds(),
			Text:  segment.Text,
		})
	}

	return result, nil
}
