package whisper

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fmueller/voxscribe/internal/transcript"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ErrAPIKeyMissing indicates OPENAI_API_KEY is not set.
var ErrAPIKeyMissing = errors.New("OPENAI_API_KEY environment variable not set")

// audioTranscriber is satisfied by *openai.Client.
type audioTranscriber interface {
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

var _ audioTranscriber = (*openai.Client)(nil)

// OpenAIEngine sends audio to the hosted whisper-1 model. The requested
// model identifier only labels the handle; the API has a single model.
type OpenAIEngine struct {
	client audioTranscriber
	logger *zap.Logger
}

func NewOpenAIEngine(apiKey string, logger *zap.Logger) (*OpenAIEngine, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrAPIKeyMissing
	}
	return newOpenAIEngine(openai.NewClient(apiKey), logger), nil
}

func newOpenAIEngine(client audioTranscriber, logger *zap.Logger) *OpenAIEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIEngine{client: client, logger: logger}
}

func (e *OpenAIEngine) Load(_ context.Context, model string) (Handle, error) {
	if _, ok := LookupModel(model); !ok {
		return nil, fmt.Errorf("unknown model %q (known models: %s)", model, strings.Join(ModelNames(), ", "))
	}
	e.logger.Debug("hosted engine ignores local model size", zap.String("model", model), zap.String("remote_model", openai.Whisper1))
	return &openAIHandle{engine: e, name: model}, nil
}

type openAIHandle struct {
	engine *OpenAIEngine
	name   string
}

func (h *openAIHandle) Model() string { return h.name }

func (h *openAIHandle) Close() error { return nil }

func (h *openAIHandle) Transcribe(ctx context.Context, audioPath string, opts Options) (transcript.Result, error) {
	req := openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
	}
	if lang := strings.TrimSpace(opts.Language); lang != "" && lang != "auto" {
		req.Language = lang
	}
	if opts.WordTimestamps {
		req.TimestampGranularities = []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularitySegment,
			openai.TranscriptionTimestampGranularityWord,
		}
	}

	resp, err := h.engine.client.CreateTranscription(ctx, req)
	if err != nil {
		return transcript.Result{}, fmt.Errorf("openai transcription: %w", err)
	}

	result := transcript.Result{Duration: resp.Duration}
	for _, s := range resp.Segments {
		if opts.Verbose {
			h.engine.logger.Debug(strings.TrimSpace(s.Text), zap.Float64("start", s.Start), zap.Float64("end", s.End))
		}
		result.Segments = append(result.Segments, transcript.Segment{Start: s.Start, End: s.End, Text: s.Text})
	}

	return result, nil
}
