package clipboard

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func names(cmds []command) []string {
	out := make([]string, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, c.name)
	}
	return out
}

func TestCandidates(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"pbcopy"}, names(candidates("darwin", false)))
	require.Equal(t, []string{"wl-copy", "xclip", "xsel"}, names(candidates("linux", true)))
	require.Equal(t, []string{"xclip", "xsel"}, names(candidates("linux", false)))
	require.Empty(t, candidates("windows", false))
}

func TestDetectPicksFirstOnPath(t *testing.T) {
	t.Parallel()

	lookPath := func(name string) (string, error) {
		if name == "xsel" {
			return "/usr/bin/xsel", nil
		}
		return "", errors.New("not found")
	}

	cmd, err := detect(candidates("linux", true), lookPath)
	require.NoError(t, err)
	require.Equal(t, "xsel", cmd.name)

	_, err = detect(candidates("linux", true), func(string) (string, error) { return "", errors.New("nope") })
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestRunPipesValueToCommand(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sink := filepath.Join(dir, "clip.txt")
	script := filepath.Join(dir, "fake-copy")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\ncat > '"+sink+"'\n"), 0o755))

	require.NoError(t, run(context.Background(), command{name: script}, "Hallo Welt"))

	got, err := os.ReadFile(sink)
	require.NoError(t, err)
	require.Equal(t, "Hallo Welt", string(got))
}

func TestRunReportsCommandFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	script := filepath.Join(dir, "broken-copy")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexit 3\n"), 0o755))

	err := run(context.Background(), command{name: script}, "x")
	require.ErrorContains(t, err, "copy to clipboard")
}
