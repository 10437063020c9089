package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fmueller/voxscribe/internal/observe"
	"github.com/fmueller/voxscribe/internal/transcribe"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newTranscribeCmd(app *appState) *cobra.Command {
	var (
		recording       string
		copyToClipboard bool
	)

	cmd := &cobra.Command{
		Use:   "transcribe <audio-or-video-file>",
		Short: "Transcribe a file into SRT and TXT transcripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := transcribe.Request{File: args[0], Recording: recording}
			return app.runTranscription(cmd, req, copyToClipboard)
		},
	}

	cmd.Flags().StringVar(&recording, "recording", "", "Recorded audio to use when the file argument is empty")
	cmd.Flags().BoolVar(&copyToClipboard, "copy", false, "Copy the plain-text transcript to the clipboard")
	return cmd
}

// runTranscription runs one request through a fresh pipeline and prints the
// status and preview. Failures are returned after being logged.
func (a *appState) runTranscription(cmd *cobra.Command, req transcribe.Request, copyToClipboard bool) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	for _, path := range []*string{&req.File, &req.Recording} {
		if *path != "" {
			*path = filepath.Clean(*path)
		}
	}
	if req.Model == "" {
		req.Model = a.cfg.Engine.Model
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	p, err := a.openPipeline(ctx, pipelineOptions{Metrics: observe.Discard()})
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			a.log().Warn("failed to release model", zap.Error(err))
		}
	}()

	progress, stopProgress := startStageProgress(a.progressEnabled(), cmd.ErrOrStderr())
	report, err := p.svc.Run(ctx, req, progress)
	stopProgress()

	out := transcribe.Render(report, err, true)
	if err != nil {
		return &statusError{status: out.Status, err: err}
	}

	fmt.Fprintln(cmd.OutOrStdout(), out.Status)
	if out.Preview != "" {
		fmt.Fprintln(cmd.OutOrStdout())
		fmt.Fprintln(cmd.OutOrStdout(), out.Preview)
	}

	if copyToClipboard {
		a.copyTranscript(ctx, report.Text)
	}
	return nil
}

// statusError carries the user-facing status of a failed run while keeping
// the underlying error reachable through errors.Is and errors.As.
type statusError struct {
	status string
	err    error
}

func (e *statusError) Error() string { return e.status }

func (e *statusError) Unwrap() error { return e.err }
