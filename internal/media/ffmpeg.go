package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// SampleRate is the rate whisper models expect.
const SampleRate = 16000

var ErrFFmpegUnavailable = errors.New("ffmpeg not found on PATH")

// Converter turns arbitrary audio/video containers into 16 kHz mono WAV.
type Converter struct {
	// Path is the ffmpeg executable; empty means "ffmpeg" from PATH.
	Path string

	run func(ctx context.Context, name string, args []string) ([]byte, error)
}

func NewConverter(path string) *Converter {
	return &Converter{Path: strings.TrimSpace(path), run: runCommand}
}

// NeedsConversion reports whether path is something other than a WAV file.
func NeedsConversion(path string) bool {
	return !strings.EqualFold(filepath.Ext(path), ".wav")
}

func (c *Converter) executable() (string, error) {
	if c.Path != "" {
		return c.Path, nil
	}
	resolved, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", ErrFFmpegUnavailable
	}
	return resolved, nil
}

// Available reports whether an ffmpeg executable can be found.
func (c *Converter) Available() error {
	_, err := c.executable()
	return err
}

// ToWAV decodes input and writes a 16-bit PCM mono WAV at output.
func (c *Converter) ToWAV(ctx context.Context, input, output string) error {
	if strings.TrimSpace(input) == "" {
		return errors.New("input path is required")
	}
	if strings.TrimSpace(output) == "" {
		return errors.New("output path is required")
	}

	exe, err := c.executable()
	if err != nil {
		return err
	}

	run := c.run
	if run == nil {
		run = runCommand
	}

	if out, err := run(ctx, exe, ConvertArgs(input, output)); err != nil {
		_ = os.Remove(output)
		if detail := strings.TrimSpace(string(out)); detail != "" {
			return fmt.Errorf("convert %s to wav: %w (%s)", filepath.Base(input), err, lastLine(detail))
		}
		return fmt.Errorf("convert %s to wav: %w", filepath.Base(input), err)
	}
	return nil
}

// ConvertArgs is the ffmpeg argument list used by ToWAV.
func ConvertArgs(input, output string) []string {
	return []string{
		"-nostdin", "-hide_banner", "-loglevel", "error", "-y",
		"-i", input,
		"-vn",
		"-ac", "1",
		"-ar", fmt.Sprint(SampleRate),
		"-c:a", "pcm_s16le",
		output,
	}
}

func runCommand(ctx context.Context, name string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stdout = &stderr
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}

func lastLine(text string) string {
	lines := strings.Split(text, "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
