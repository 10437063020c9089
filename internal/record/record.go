// Package record captures microphone audio into a WAV file through whichever
// command line recorder the host provides.
package record

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"
)

var (
	ErrInteractiveRequiresTTY = errors.New("interactive recording requires terminal input")
	ErrNoBackendAvailable     = errors.New("no recording backend available")
	ErrNoStopCondition        = errors.New("recording needs a duration or interactive mode")
)

const (
	DefaultSampleRate = 16000
	DefaultChannels   = 1
)

type Config struct {
	OutputPath  string
	Duration    time.Duration
	Interactive bool
	SampleRate  int
	Channels    int
	// Input is a backend specific device name. Empty selects the default.
	Input string
	// Stdin is read for the Enter key in interactive mode. Nil means os.Stdin,
	// which must be a terminal.
	Stdin  io.Reader
	Prompt io.Writer
	Logger *zap.Logger
}

func (c Config) sampleRate() int {
	if c.SampleRate > 0 {
		return c.SampleRate
	}
	return DefaultSampleRate
}

func (c Config) channels() int {
	if c.Channels > 0 {
		return c.Channels
	}
	return DefaultChannels
}

func (c Config) log() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

type Backend interface {
	Name() string
	Available() bool
	Record(ctx context.Context, cfg Config) error
	ListDevices(ctx context.Context) (string, error)
}

// SelectBackend returns preferred when given, otherwise the first available
// backend in priority order.
func SelectBackend(backends []Backend, preferred string) (Backend, error) {
	if len(backends) == 0 {
		return nil, errors.New("no backends configured")
	}

	if preferred != "" && preferred != "auto" {
		for _, backend := range backends {
			if backend.Name() == preferred {
				if !backend.Available() {
					return nil, fmt.Errorf("requested backend %q is not available", preferred)
				}
				return backend, nil
			}
		}
		return nil, fmt.Errorf("unknown backend %q", preferred)
	}

	for _, backend := range backends {
		if backend.Available() {
			return backend, nil
		}
	}

	return nil, ErrNoBackendAvailable
}

// Record tries the preferred backend first and then every other available
// one, removing partial output between attempts. It returns the name of the
// backend that produced the file.
func Record(ctx context.Context, backends []Backend, preferred string, cfg Config) (string, error) {
	if len(backends) == 0 {
		return "", ErrNoBackendAvailable
	}

	ordered := backends
	if preferred != "" && preferred != "auto" {
		first, err := SelectBackend(backends, preferred)
		if err != nil {
			return "", err
		}
		ordered = []Backend{first}
		for _, b := range backends {
			if b.Name() != first.Name() {
				ordered = append(ordered, b)
			}
		}
	}

	var errs []error
	for _, backend := range ordered {
		if !backend.Available() {
			continue
		}

		err := backend.Record(ctx, cfg)
		if err == nil {
			return backend.Name(), nil
		}
		removePartial(cfg.OutputPath)

		err = fmt.Errorf("%s: %w", backend.Name(), err)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
			errors.Is(err, ErrInteractiveRequiresTTY) || errors.Is(err, ErrNoStopCondition) {
			return "", err
		}
		cfg.log().Warn("recording backend failed; trying next", zap.Error(err))
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return "", ErrNoBackendAvailable
	}
	return "", fmt.Errorf("record audio: %w", errors.Join(errs...))
}

func removePartial(path string) {
	if strings.TrimSpace(path) == "" {
		return
	}
	_ = os.Remove(path)
}

// stopChannel returns a channel closed when recording should end: after the
// duration elapses or when the user presses Enter.
func stopChannel(ctx context.Context, cfg Config) (<-chan struct{}, error) {
	stop := make(chan struct{})

	switch {
	case cfg.Interactive:
		in := cfg.Stdin
		if in == nil {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return nil, ErrInteractiveRequiresTTY
			}
			in = os.Stdin
		}
		prompt := cfg.Prompt
		if prompt == nil {
			prompt = os.Stderr
		}
		_, _ = fmt.Fprintln(prompt, "Recording... press Enter to stop.")
		go func() {
			_, _ = bufio.NewReader(in).ReadString('\n')
			close(stop)
		}()
	case cfg.Duration > 0:
		go func() {
			timer := time.NewTimer(cfg.Duration)
			defer timer.Stop()
			select {
			case <-timer.C:
				close(stop)
			case <-ctx.Done():
			}
		}()
	default:
		return nil, ErrNoStopCondition
	}

	return stop, nil
}
