package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConsoleLoggerHidesDebugByDefault(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(Options{Writer: &buf})
	logger.Debug("hidden")
	logger.Info("model loaded", zap.String("model", "tiny"))

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "INFO")
	require.Contains(t, out, "model loaded")
	require.Contains(t, out, `"model": "tiny"`)
}

func TestVerboseLoggerShowsDebug(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	New(Options{Verbose: true, Writer: &buf}).Debug("shown")
	require.Contains(t, buf.String(), "shown")
}

func TestJSONLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	New(Options{JSON: true, Writer: &buf}).Warn("slow request", zap.Int("status", 200))

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
	require.Equal(t, "warn", entry["level"])
	require.Equal(t, "slow request", entry["msg"])
	require.EqualValues(t, 200, entry["status"])
	require.Contains(t, entry, "ts")
}
