package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fmueller/voxscribe/internal/download"
	"github.com/fmueller/voxscribe/internal/media"
	"github.com/fmueller/voxscribe/internal/whisper"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSetupCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Download and verify speech model assets",
		Long:  "Download and verify the configured model, then check that the recognition engine and ffmpeg are usable.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()

			if app.cfg.Engine.Backend == whisper.BackendOpenAI {
				fmt.Fprintln(out, "Engine openai uses a hosted model; nothing to download")
			} else if err := app.installModel(cmd.Context(), out); err != nil {
				return err
			}

			reportFFmpeg(out, media.NewConverter(app.cfg.Engine.FFmpegPath))
			return app.checkEngine(cmd.Context(), out)
		},
	}
}

// installModel makes sure the configured model is on disk and intact,
// replacing a corrupted copy.
func (a *appState) installModel(ctx context.Context, out io.Writer) error {
	modelDir, err := a.modelStorageDir()
	if err != nil {
		return err
	}

	resolved, err := whisper.ResolveModel(a.cfg.Engine.Model, modelDir)
	if err != nil {
		return err
	}
	if resolved.IsCustomPath {
		fmt.Fprintf(out, "Using custom model at %s\n", resolved.Path)
		return nil
	}

	if !resolved.NeedsDownload {
		err := download.VerifyFileChecksum(resolved.Path, resolved.SHA256)
		if err == nil {
			a.log().Info("model already present", zap.String("model", resolved.Name), zap.String("path", resolved.Path))
			fmt.Fprintf(out, "Model %s already present at %s\n", resolved.Name, resolved.Path)
			return nil
		}
		if !errors.Is(err, download.ErrChecksumMismatch) {
			return fmt.Errorf("verify model %s: %w", resolved.Name, err)
		}
		a.log().Warn("model checksum verification failed; downloading fresh copy", zap.String("model", resolved.Name), zap.Error(err))
		if err := os.Remove(resolved.Path); err != nil {
			return fmt.Errorf("remove corrupted model: %w", err)
		}
	}

	store := &whisper.ModelStore{
		Dir:          modelDir,
		AutoDownload: true,
		NoProgress:   !a.progressEnabled(),
		Logger:       a.log(),
	}
	installed, err := store.Ensure(ctx, resolved.Name)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Model %s installed at %s\n", installed.Name, installed.Path)
	return nil
}

func reportFFmpeg(out io.Writer, converter *media.Converter) {
	if err := converter.Available(); err != nil {
		fmt.Fprintf(out, "ffmpeg: unavailable (%v); only WAV input can be transcribed\n", err)
		return
	}
	fmt.Fprintln(out, "ffmpeg: ok")
}

// checkEngine builds the configured engine and probes it when it can report
// readiness.
func (a *appState) checkEngine(ctx context.Context, out io.Writer) error {
	engine, err := whisper.NewEngine(whisper.Settings{
		Backend:     a.cfg.Engine.Backend,
		WhisperPath: a.cfg.Engine.WhisperPath,
		Store:       &whisper.ModelStore{Logger: a.log()},
		Logger:      a.log(),
	})
	if err == nil {
		if r, ok := engine.(interface{ Ready(context.Context) error }); ok {
			err = r.Ready(ctx)
		}
	}
	if err != nil {
		fmt.Fprintf(out, "engine %s: not ready\n", a.cfg.Engine.Backend)
		return fmt.Errorf("engine %s is not ready: %w", a.cfg.Engine.Backend, err)
	}

	fmt.Fprintf(out, "engine %s: ready\n", a.cfg.Engine.Backend)
	return nil
}
