package cli

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fmueller/voxscribe/internal/transcript"
	"github.com/fmueller/voxscribe/internal/whisper"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

// emptyConfig writes a blank YAML file so tests never read the user's config.
func emptyConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	return path
}

func runCommand(t *testing.T, args []string) (stdout string, stderr string, err error) {
	t.Helper()
	return runApp(t, newAppState(), args)
}

func runApp(t *testing.T, app *appState, args []string) (stdout string, stderr string, err error) {
	t.Helper()

	cmd := newRootCmd(app)
	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)

	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(append([]string{"--config", emptyConfig(t)}, args...))

	err = cmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

// newTestApp returns an app whose pipeline runs on engine and whose clipboard
// calls are recorded in copied.
func newTestApp(engine whisper.Engine, copied *[]string) *appState {
	app := newAppState()
	app.noProgress = true
	app.now = func() time.Time { return testNow }
	app.newPipeline = func(_ context.Context, opts pipelineOptions) (*pipeline, error) {
		return app.pipelineFor(engine, opts), nil
	}
	app.copyFn = func(_ context.Context, value string) error {
		if copied != nil {
			*copied = append(*copied, value)
		}
		return nil
	}
	return app
}

type fakeEngine struct {
	segments []transcript.Segment
	duration float64
	err      error

	mu    sync.Mutex
	calls []string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		segments: []transcript.Segment{
			{Start: 0, End: 1.5, Text: " hello"},
			{Start: 1.5, End: 3, Text: " world"},
		},
		duration: 3,
	}
}

func (e *fakeEngine) Load(_ context.Context, model string) (whisper.Handle, error) {
	return &fakeHandle{engine: e, model: model}, nil
}

func (e *fakeEngine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

type fakeHandle struct {
	engine *fakeEngine
	model  string
}

func (h *fakeHandle) Model() string { return h.model }

func (h *fakeHandle) Close() error { return nil }

func (h *fakeHandle) Transcribe(_ context.Context, audioPath string, _ whisper.Options) (transcript.Result, error) {
	h.engine.mu.Lock()
	h.engine.calls = append(h.engine.calls, audioPath)
	h.engine.mu.Unlock()

	if h.engine.err != nil {
		return transcript.Result{}, h.engine.err
	}
	return transcript.Result{Segments: h.engine.segments, Duration: h.engine.duration}, nil
}

// syncBuffer is a bytes.Buffer safe to read while a command writes to it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func writeWAV(t *testing.T, dir, name string) string {
	t.Helper()
	samples := make([]int16, 1600)
	for i := range samples {
		samples[i] = int16((i % 40) * 400)
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, makePCM16WAVForTest(samples, 16000, 1), 0o644))
	return path
}

func makePCM16WAVForTest(samples []int16, sampleRate int, channels int) []byte {
	bytesPerSample := 2
	dataSize := len(samples) * bytesPerSample
	fmtChunkSize := 16
	riffSize := 4 + (8 + fmtChunkSize) + (8 + dataSize)

	out := make([]byte, 12+8+fmtChunkSize+8+dataSize)
	off := 0

	copy(out[off:], []byte("RIFF"))
	off += 4
	binary.LittleEndian.PutUint32(out[off:], uint32(riffSize))
	off += 4
	copy(out[off:], []byte("WAVE"))
	off += 4

	copy(out[off:], []byte("fmt "))
	off += 4
	binary.LittleEndian.PutUint32(out[off:], uint32(fmtChunkSize))
	off += 4
	binary.LittleEndian.PutUint16(out[off:], 1)
	off += 2
	binary.LittleEndian.PutUint16(out[off:], uint16(channels))
	off += 2
	binary.LittleEndian.PutUint32(out[off:], uint32(sampleRate))
	off += 4
	binary.LittleEndian.PutUint32(out[off:], uint32(sampleRate*channels*bytesPerSample))
	off += 4
	binary.LittleEndian.PutUint16(out[off:], uint16(channels*bytesPerSample))
	off += 2
	binary.LittleEndian.PutUint16(out[off:], 16)
	off += 2

	copy(out[off:], []byte("data"))
	off += 4
	binary.LittleEndian.PutUint32(out[off:], uint32(dataSize))
	off += 4

	for _, s := range samples {
		binary.LittleEndian.PutUint16(out[off:], uint16(s))
		off += 2
	}

	return out
}
