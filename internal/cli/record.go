package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/fmueller/voxscribe/internal/platform"
	"github.com/fmueller/voxscribe/internal/record"
	"github.com/fmueller/voxscribe/internal/transcribe"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type recordOptions struct {
	duration time.Duration
	backend  string
	input    string
}

func newRecordCmd(app *appState) *cobra.Command {
	var (
		opts            recordOptions
		copyToClipboard bool
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record the microphone and transcribe the recording",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			recordFn := app.recordFn
			if recordFn == nil {
				recordFn = app.recordAudio
			}

			path, err := recordFn(cmd.Context(), opts)
			if err != nil {
				return err
			}
			app.log().Info("recording saved", zap.String("path", path))

			return app.runTranscription(cmd, transcribe.Request{Recording: path}, copyToClipboard)
		},
	}

	cmd.Flags().DurationVar(&opts.duration, "duration", 0, "Record duration, e.g. 10s; 0 means press Enter to stop")
	cmd.Flags().StringVar(&opts.backend, "backend", "auto", "Recording backend: auto|pw-record|arecord|ffmpeg")
	cmd.Flags().StringVar(&opts.input, "input", "", "Input device (run \"voxscribe devices\" to list); e.g. node-ID (pw-record), hw:1,0 (arecord), :1 (ffmpeg)")
	cmd.Flags().BoolVar(&copyToClipboard, "copy", false, "Copy the plain-text transcript to the clipboard")

	return cmd
}

func (a *appState) recordingOutputPath() (string, error) {
	recordingDir, err := platform.ResolveRecordingDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(recordingDir, 0o755); err != nil {
		return "", fmt.Errorf("create recording directory %s: %w", recordingDir, err)
	}

	return filepath.Join(recordingDir, fmt.Sprintf("recording-%s.wav", a.now().Format("20060102-150405"))), nil
}

func (a *appState) recordAudio(ctx context.Context, opts recordOptions) (string, error) {
	outPath, err := a.recordingOutputPath()
	if err != nil {
		return "", err
	}

	interactive := opts.duration <= 0
	stopProgress := startRecordingProgress(a.progressEnabled(), os.Stderr, opts.duration)
	defer stopProgress()

	a.log().Info("recording started", zap.String("backend", opts.backend), zap.String("output", outPath))
	backend, err := record.Record(ctx, record.DefaultBackends(runtime.GOOS), opts.backend, record.Config{
		OutputPath:  outPath,
		Duration:    opts.duration,
		Interactive: interactive,
		Input:       opts.input,
		Stdin:       a.stdin,
		Logger:      a.log(),
	})
	if err != nil {
		return "", err
	}

	a.log().Info("recording finished", zap.String("backend", backend), zap.String("path", outPath))
	return outPath, nil
}
