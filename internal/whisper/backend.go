package whisper

import (
	"errors"
	"fmt"
	"os"

	"github.com/fmueller/voxscribe/internal/media"
	"go.uber.org/zap"
)

const (
	BackendBundled = "bundled"
	BackendOpenAI  = "openai"
	BackendNative  = "native"
)

// Backends lists the engine backends accepted by NewEngine.
func Backends() []string {
	return []string{BackendBundled, BackendOpenAI, BackendNative}
}

// newNativeEngine is set by native.go when built with the whispercpp tag.
var newNativeEngine func(store *ModelStore, converter *media.Converter, logger *zap.Logger) Engine

type Settings struct {
	Backend     string
	WhisperPath string
	Store       *ModelStore
	Converter   *media.Converter
	Logger      *zap.Logger
}

// NewEngine builds the engine selected by s.Backend.
func NewEngine(s Settings) (Engine, error) {
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	if s.Converter == nil {
		s.Converter = media.NewConverter("")
	}

	switch s.Backend {
	case "", BackendBundled:
		return NewBundledEngine(s.WhisperPath, s.Store, s.Converter, s.Logger)
	case BackendOpenAI:
		return NewOpenAIEngine(os.Getenv("OPENAI_API_KEY"), s.Logger)
	case BackendNative:
		if newNativeEngine == nil {
			return nil, errors.New("native engine unavailable: rebuild voxscribe with -tags whispercpp")
		}
		if s.Store == nil {
			return nil, errors.New("model store is not configured")
		}
		return newNativeEngine(s.Store, s.Converter, s.Logger), nil
	default:
		return nil, fmt.Errorf("unknown engine backend %q (known backends: bundled, openai, native)", s.Backend)
	}
}
