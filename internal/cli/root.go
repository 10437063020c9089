package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fmueller/voxscribe/internal/clipboard"
	"github.com/fmueller/voxscribe/internal/config"
	"github.com/fmueller/voxscribe/internal/logging"
	"github.com/fmueller/voxscribe/internal/platform"
	"github.com/fmueller/voxscribe/internal/version"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/spf13/cobra"
)

type appState struct {
	cfg        config.Config
	configPath string

	verbose      bool
	jsonLogs     bool
	noProgress   bool
	model        string
	modelDir     string
	engine       string
	language     string
	autoDownload bool
	outputDir    string
	addr         string
	showErrors   bool

	logger *zap.Logger
	now    func() time.Time
	stdin  io.Reader

	newPipeline func(ctx context.Context, opts pipelineOptions) (*pipeline, error)
	recordFn    func(ctx context.Context, opts recordOptions) (string, error)
	copyFn      func(ctx context.Context, value string) error
	serveFn     func(ctx context.Context, cmd *cobra.Command) error
}

func newAppState() *appState {
	defaults := config.Default()
	app := &appState{
		cfg:          defaults,
		model:        defaults.Engine.Model,
		engine:       defaults.Engine.Backend,
		language:     defaults.Engine.Language,
		autoDownload: defaults.Engine.AutoDownload,
		addr:         defaults.Server.Addr,
		showErrors:   defaults.Server.ShowErrors,
		now:          time.Now,
	}
	app.newPipeline = app.buildPipeline
	app.recordFn = app.recordAudio
	app.copyFn = clipboard.CopyText
	app.serveFn = app.serve
	return app
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(newAppState())
}

func newRootCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "voxscribe",
		Short:         "Turn audio and video into SRT subtitles and plain-text transcripts",
		Long:          "voxscribe serves a local web page for transcribing uploaded or recorded audio.\nRun without a subcommand to start the web server.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Get().Version,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.prepare(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.serveFn(cmd.Context(), cmd)
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	flags := cmd.PersistentFlags()
	flags.StringVar(&app.configPath, "config", "", "Path to a YAML config file (default: per-user config dir)")
	flags.BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs")
	flags.BoolVar(&app.jsonLogs, "json", app.jsonLogs, "Enable JSON logging")
	flags.BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
	flags.StringVar(&app.model, "model", app.model, "Model name or model file path")
	flags.StringVar(&app.modelDir, "model-dir", app.modelDir, "Directory where models are stored")
	flags.StringVar(&app.engine, "engine", app.engine, "Recognition engine: bundled|openai|native")
	flags.StringVar(&app.language, "language", app.language, "Language code (auto|en|de|...) for transcription")
	flags.BoolVar(&app.autoDownload, "auto-download", app.autoDownload, "Automatically download missing models")
	flags.StringVar(&app.outputDir, "output-dir", app.outputDir, "Directory for generated transcripts (default: OS temp dir)")

	bindServeFlags(cmd, app)

	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newTranscribeCmd(app))
	cmd.AddCommand(newRecordCmd(app))
	cmd.AddCommand(newDevicesCmd(app))
	cmd.AddCommand(newSetupCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func bindServeFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.addr, "addr", app.addr, "Address the web server listens on")
	cmd.Flags().BoolVar(&app.showErrors, "show-errors", app.showErrors, "Show failure details in the web page")
}

// prepare layers configuration: defaults, YAML file, environment (with .env),
// then the flags set on the command line.
func (a *appState) prepare(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}

	path, optional := a.configPath, false
	if path == "" {
		optional = true
		if resolved, err := platform.ResolveConfigPath(); err == nil {
			path = resolved
		}
	}

	cfg, err := config.Load(path, optional)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	a.applyFlags(cmd, &cfg)
	cfg.Engine.Language = sanitizeLanguage(cfg.Engine.Language)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	opts := logging.Options{Verbose: cfg.Log.Verbose, JSON: cfg.Log.JSON}
	if w := cmd.ErrOrStderr(); w != io.Writer(os.Stderr) {
		opts.Writer = w
	}

	a.cfg = cfg
	a.logger = logging.New(opts)
	return nil
}

func (a *appState) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("verbose") {
		cfg.Log.Verbose = a.verbose
	}
	if changed("json") {
		cfg.Log.JSON = a.jsonLogs
	}
	if changed("model") {
		cfg.Engine.Model = strings.TrimSpace(a.model)
	}
	if changed("model-dir") {
		cfg.Engine.ModelDir = a.modelDir
	}
	if changed("engine") {
		cfg.Engine.Backend = strings.TrimSpace(a.engine)
	}
	if changed("language") {
		cfg.Engine.Language = a.language
	}
	if changed("auto-download") {
		cfg.Engine.AutoDownload = a.autoDownload
	}
	if changed("output-dir") {
		cfg.Output.Dir = a.outputDir
	}
	if changed("addr") {
		cfg.Server.Addr = a.addr
	}
	if changed("show-errors") {
		cfg.Server.ShowErrors = a.showErrors
	}
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func (a *appState) copyTranscript(ctx context.Context, text string) {
	copyFn := a.copyFn
	if copyFn == nil {
		copyFn = clipboard.CopyText
	}

	if strings.TrimSpace(text) == "" {
		a.log().Warn("transcript is empty; clipboard left untouched")
		return
	}

	if err := copyFn(ctx, text); err != nil {
		if errors.Is(err, clipboard.ErrUnavailable) {
			a.log().Warn("clipboard tool unavailable; transcript left on stdout")
			return
		}
		a.log().Warn("failed to copy transcript to clipboard; transcript left on stdout", zap.Error(err))
		return
	}
	a.log().Info("transcript copied to clipboard")
}

func sanitizeLanguage(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return "auto"
	}
	return trimmed
}
