package whisper

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fmueller/voxscribe/internal/audio"
	"github.com/fmueller/voxscribe/internal/media"
	"github.com/fmueller/voxscribe/internal/transcript"
	"go.uber.org/zap"
)

const whisperPathEnv = "VOXSCRIBE_WHISPER_PATH"

// BundledEngine drives the whisper-cli executable shipped next to voxscribe.
type BundledEngine struct {
	Executable string
	Store      *ModelStore
	Converter  *media.Converter
	Logger     *zap.Logger
}

// NewBundledEngine locates whisper-cli. An explicit override wins over the
// VOXSCRIBE_WHISPER_PATH variable, which wins over the libexec lookup.
func NewBundledEngine(override string, store *ModelStore, converter *media.Converter, logger *zap.Logger) (*BundledEngine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if converter == nil {
		converter = media.NewConverter("")
	}

	engine := &BundledEngine{Store: store, Converter: converter, Logger: logger}

	if override = strings.TrimSpace(override); override == "" {
		override = strings.TrimSpace(os.Getenv(whisperPathEnv))
	}
	if override != "" {
		if err := ensureExecutable(override); err != nil {
			return nil, fmt.Errorf("whisper engine override is not executable: %w", err)
		}
		engine.Executable = override
		return engine, nil
	}

	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve voxscribe executable path: %w", err)
	}

	whisperExe, err := ResolveBundledEnginePath(self)
	if err != nil {
		return nil, err
	}
	engine.Executable = whisperExe
	return engine, nil
}

func ResolveBundledEnginePath(selfExecutable string) (string, error) {
	for _, candidate := range EnginePathCandidates(selfExecutable) {
		if err := ensureExecutable(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("bundled whisper engine not found near %s; reinstall voxscribe or set %s, expected at ../libexec/whisper/%s", selfExecutable, whisperPathEnv, engineBinaryName())
}

func EnginePathCandidates(selfExecutable string) []string {
	binDir := filepath.Dir(selfExecutable)
	engineName := engineBinaryName()
	hostTarget := fmt.Sprintf("%s_%s", runtime.GOOS, normalizeArch(runtime.GOARCH))

	return []string{
		filepath.Join(binDir, "..", "libexec", "whisper", engineName),
		filepath.Join(binDir, "libexec", "whisper", engineName),
		filepath.Join(binDir, "packaging", "whisper", hostTarget, engineName),
		filepath.Join(binDir, engineName),
	}
}

// Ready reports whether the engine binary is still usable.
func (b *BundledEngine) Ready(context.Context) error {
	return ensureExecutable(b.Executable)
}

func (b *BundledEngine) Load(ctx context.Context, model string) (Handle, error) {
	if b.Store == nil {
		return nil, errors.New("model store is not configured")
	}

	resolved, err := b.Store.Ensure(ctx, model)
	if err != nil {
		return nil, err
	}
	if err := ensureExecutable(b.Executable); err != nil {
		return nil, fmt.Errorf("bundled whisper engine missing or not executable: %w", err)
	}

	return &bundledHandle{engine: b, name: model, model: resolved}, nil
}

type bundledHandle struct {
	engine *BundledEngine
	name   string
	model  ResolvedModel
}

func (h *bundledHandle) Model() string { return h.name }

// Close is a no-op: whisper-cli loads the model per invocation.
func (h *bundledHandle) Close() error { return nil }

func (h *bundledHandle) Transcribe(ctx context.Context, audioPath string, opts Options) (transcript.Result, error) {
	if strings.TrimSpace(audioPath) == "" {
		return transcript.Result{}, errors.New("audio path is required")
	}

	b := h.engine
	log := b.Logger

	workDir, err := os.MkdirTemp("", "voxscribe-whisper-*")
	if err != nil {
		return transcript.Result{}, fmt.Errorf("create work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	wavPath := audioPath
	if media.NeedsConversion(audioPath) {
		wavPath = filepath.Join(workDir, "input.wav")
		log.Debug("converting input to wav", zap.String("input", audioPath))
		if err := b.Converter.ToWAV(ctx, audioPath, wavPath); err != nil {
			return transcript.Result{}, err
		}
	}

	outBase := filepath.Join(workDir, "out")
	args := buildArgs(h.model.Path, wavPath, outBase, opts)

	cmd := exec.CommandContext(ctx, b.Executable, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if opts.Verbose {
		stdout := newLineLogger(log, "whisper")
		defer stdout.Close()
		cmd.Stdout = stdout
	} else {
		cmd.Stdout = io.Discard
	}

	log.Debug("running whisper engine", zap.String("engine", b.Executable), zap.Strings("args", args))
	if err := cmd.Run(); err != nil {
		errText := strings.TrimSpace(stderr.String())
		if isMissingSharedLibraryError(errText) {
			return transcript.Result{}, fmt.Errorf("bundled whisper engine at %s is missing required shared libraries (%s); reinstall voxscribe or rebuild whisper-cli with BUILD_SHARED_LIBS=OFF", b.Executable, errText)
		}
		if isIllegalInstructionError(errText) || isIllegalInstructionError(err.Error()) {
			return transcript.Result{}, fmt.Errorf("bundled whisper engine crashed with an illegal CPU instruction; " +
				"your CPU may lack required instruction set extensions; " +
				"set " + whisperPathEnv + " to a whisper-cli binary built for your CPU")
		}
		return transcript.Result{}, fmt.Errorf("whisper transcribe failed: %w (%s)", err, errText)
	}

	raw, err := os.ReadFile(outBase + ".json")
	if err != nil {
		return transcript.Result{}, fmt.Errorf("read whisper output: %w", err)
	}

	result, err := parseCLIOutput(raw)
	if err != nil {
		return transcript.Result{}, err
	}

	if info, err := audio.Probe(wavPath); err == nil {
		result.Duration = info.Duration
	} else {
		log.Debug("could not determine audio duration", zap.Error(err))
	}

	return result, nil
}

func buildArgs(modelPath, wavPath, outBase string, opts Options) []string {
	args := []string{"-m", modelPath, "-f", wavPath, "-oj", "-of", outBase}
	if opts.WordTimestamps {
		args = append(args, "-ojf")
	}
	if !opts.Verbose {
		args = append(args, "-np")
	}
	lang := strings.TrimSpace(opts.Language)
	if lang != "" && lang != "auto" {
		args = append(args, "-l", lang)
	}
	return args
}

// lineLogger forwards each line written to it as a debug log entry.
type lineLogger struct {
	pw   *io.PipeWriter
	done chan struct{}
}

func newLineLogger(logger *zap.Logger, source string) *lineLogger {
	pr, pw := io.Pipe()
	l := &lineLogger{pw: pw, done: make(chan struct{})}
	go func() {
		defer close(l.done)
		scanner := bufio.NewScanner(pr)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				logger.Debug(line, zap.String("source", source))
			}
		}
		_, _ = io.Copy(io.Discard, pr)
	}()
	return l
}

func (l *lineLogger) Write(p []byte) (int, error) { return l.pw.Write(p) }

func (l *lineLogger) Close() error {
	err := l.pw.Close()
	<-l.done
	return err
}

func engineBinaryName() string {
	if runtime.GOOS == "windows" {
		return "whisper-cli.exe"
	}
	return "whisper-cli"
}

func ensureExecutable(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("engine path is empty")
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if runtime.GOOS != "windows" && info.Mode()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}

func isMissingSharedLibraryError(stderr string) bool {
	value := strings.ToLower(strings.TrimSpace(stderr))
	if value == "" {
		return false
	}

	patterns := []string{
		"error while loading shared libraries",
		"cannot open shared object file",
		"dyld: library not loaded",
		"image not found",
	}

	for _, pattern := range patterns {
		if strings.Contains(value, pattern) {
			return true
		}
	}

	return false
}

func isIllegalInstructionError(stderr string) bool {
	return strings.Contains(strings.ToLower(stderr), "illegal instruction")
}

func normalizeArch(arch string) string {
	switch arch {
	case "x86_64":
		return "amd64"
	case "aarch64":
		return "arm64"
	default:
		return arch
	}
}
