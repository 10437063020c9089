package cli

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fmueller/voxscribe/internal/transcribe"
	"github.com/stretchr/testify/require"
)

func TestCLIErrorCases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		args        []string
		errContains string
	}{
		{
			name:        "unknown command",
			args:        []string{"badcmd"},
			errContains: "unknown command",
		},
		{
			name:        "unknown root flag",
			args:        []string{"--badflag"},
			errContains: "unknown flag",
		},
		{
			name:        "unknown subcommand flag",
			args:        []string{"transcribe", "--bogus", "f.wav"},
			errContains: "unknown flag",
		},
		{
			name:        "transcribe missing arg",
			args:        []string{"transcribe"},
			errContains: "accepts 1 arg(s)",
		},
		{
			name:        "transcribe too many args",
			args:        []string{"transcribe", "a.wav", "b.wav"},
			errContains: "accepts 1 arg(s)",
		},
		{
			name:        "unknown engine",
			args:        []string{"--engine", "cloud", "version"},
			errContains: "engine.backend \"cloud\" is invalid",
		},
		{
			name:        "unknown model",
			args:        []string{"--model", "gigantic", "version"},
			errContains: "engine.model \"gigantic\" is invalid",
		},
		{
			name:        "bad listen address",
			args:        []string{"serve", "--addr", "nonsense"},
			errContains: "server.addr",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, _, err := runCommand(t, tt.args)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestTranscribeNonexistentFileFailsAtInput(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine()
	app := newTestApp(engine, nil)

	_, _, err := runApp(t, app, []string{"--output-dir", t.TempDir(), "transcribe", "/no/such/file.wav"})
	require.Error(t, err)
	require.True(t, strings.HasPrefix(err.Error(), "Error during transcription: "), err.Error())

	var perr *transcribe.ProcessingError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, transcribe.StageInput, perr.Stage)
	require.Empty(t, engine.Calls())
}

func TestTranscribeWithoutAnyInputShowsGuidance(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine()
	app := newTestApp(engine, nil)

	_, _, err := runApp(t, app, []string{"--output-dir", t.TempDir(), "transcribe", ""})
	require.ErrorIs(t, err, transcribe.ErrInputMissing)
	require.Equal(t, "Please upload an audio/video file or record audio first.", err.Error())
	require.Empty(t, engine.Calls())
}

func TestSetupRejectsNonexistentCustomModelPath(t *testing.T) {
	t.Parallel()

	_, _, err := runCommand(t, []string{"setup", "--model-dir", t.TempDir(), "--model", filepath.Join("/no/such/path", "model.bin")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "custom model path does not exist")
}

func TestVersionFlagOutput(t *testing.T) {
	t.Parallel()

	stdout, _, err := runCommand(t, []string{"--version"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(stdout, "voxscribe v"), "expected version prefix, got: %s", stdout)
}

func TestVersionCommandOutput(t *testing.T) {
	t.Parallel()

	stdout, _, err := runCommand(t, []string{"version"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(stdout, "voxscribe "), stdout)
	require.Contains(t, stdout, "commit")
}
