package record

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackendArgs(t *testing.T) {
	t.Parallel()

	cfg := Config{OutputPath: "/tmp/out.wav"}

	require.Equal(t, []string{"--rate", "16000", "--channels", "1", "--format", "s16", "/tmp/out.wav"}, pipewireArgs(cfg))
	require.Equal(t, []string{"-q", "-f", "S16_LE", "-r", "16000", "-c", "1", "/tmp/out.wav"}, alsaArgs(cfg))

	linux := ffmpegLinuxArgs(cfg)
	require.Contains(t, linux, "pulse")
	require.Contains(t, linux, "default")
	require.Equal(t, "/tmp/out.wav", linux[len(linux)-1])

	cfg.Input = "alsa:hw:1,0"
	cfg.SampleRate = 48000
	cfg.Channels = 2
	alsaViaFFmpeg := ffmpegLinuxArgs(cfg)
	require.Equal(t, []string{
		"-nostdin", "-hide_banner", "-loglevel", "error", "-y",
		"-f", "alsa", "-i", "hw:1,0",
		"-ac", "2", "-ar", "48000", "-c:a", "pcm_s16le", "/tmp/out.wav",
	}, alsaViaFFmpeg)

	cfg.Input = "hw:2"
	require.Equal(t, []string{"-q", "-f", "S16_LE", "-r", "48000", "-c", "2", "-D", "hw:2", "/tmp/out.wav"}, alsaArgs(cfg))
}

func TestDefaultBackendsPerOS(t *testing.T) {
	t.Parallel()

	names := func(backends []Backend) []string {
		out := make([]string, 0, len(backends))
		for _, b := range backends {
			out = append(out, b.Name())
		}
		return out
	}

	require.Equal(t, []string{"pw-record", "arecord", "ffmpeg"}, names(DefaultBackends("linux")))
	require.Equal(t, []string{"ffmpeg"}, names(DefaultBackends("darwin")))
	require.Empty(t, DefaultBackends("windows"))
}

// installRecorderStub puts an executable named name on PATH that touches
// readyFile and then sleeps until interrupted.
func installRecorderStub(t *testing.T, name string) (string, string) {
	t.Helper()

	dir := t.TempDir()
	readyFile := filepath.Join(dir, "ready")
	script := "#!/bin/sh\n" +
		"trap 'exit 0' INT\n" +
		"touch '" + readyFile + "'\n" +
		"while true; do sleep 0.05; done\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(script), 0o755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
	return dir, readyFile
}

func waitForPath(t *testing.T, path string) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCommandBackendTimedStop(t *testing.T) {
	dir, readyFile := installRecorderStub(t, "arecord")

	backend := alsaBackend()
	require.True(t, backend.Available())

	err := backend.Record(context.Background(), Config{
		OutputPath: filepath.Join(dir, "out.wav"),
		Duration:   200 * time.Millisecond,
	})
	require.NoError(t, err)
	waitForPath(t, readyFile)
}

func TestCommandBackendReturnsContextCancellation(t *testing.T) {
	dir, readyFile := installRecorderStub(t, "pw-record")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	errCh := make(chan error, 1)
	go func() {
		errCh <- pipewireBackend().Record(ctx, Config{
			OutputPath: filepath.Join(dir, "out.wav"),
			Duration:   10 * time.Second,
		})
	}()

	waitForPath(t, readyFile)
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
}

func TestCommandBackendRequiresOutputPath(t *testing.T) {
	t.Parallel()

	err := ffmpegMacBackend().Record(context.Background(), Config{Duration: time.Second})
	require.ErrorContains(t, err, "output path is required")
}
