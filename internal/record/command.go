package record

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"
)

// commandBackend records by running an external program until it is told to
// stop with SIGINT, which every supported recorder handles by finalizing the
// WAV header.
type commandBackend struct {
	name   string
	binary string
	args   func(cfg Config) []string
	list   func(ctx context.Context) (string, error)
}

func (b *commandBackend) Name() string    { return b.name }
func (b *commandBackend) Available() bool { return commandAvailable(b.binary) }

func (b *commandBackend) Record(ctx context.Context, cfg Config) error {
	if cfg.OutputPath == "" {
		return errors.New("output path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0o755); err != nil {
		return err
	}

	stop, err := stopChannel(ctx, cfg)
	if err != nil {
		return err
	}

	cmd := exec.Command(b.binary, b.args(cfg)...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	cfg.log().Debug("starting recorder", zap.String("backend", b.name), zap.Strings("args", cmd.Args))

	return runUntilStopped(ctx, cmd, stop, cfg.log())
}

func (b *commandBackend) ListDevices(ctx context.Context) (string, error) {
	return b.list(ctx)
}

func runUntilStopped(ctx context.Context, cmd *exec.Cmd, stop <-chan struct{}, logger *zap.Logger) error {
	if err := cmd.Start(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-stop:
		signalled := cmd.Process.Signal(os.Interrupt) == nil
		err := <-done
		if err == nil || signalled || stoppedBySignal(err) {
			if err != nil {
				logger.Debug("recorder exited after stop signal", zap.Error(err))
			}
			return nil
		}
		return err
	case <-ctx.Done():
		_ = cmd.Process.Signal(os.Interrupt)
		<-done
		return ctx.Err()
	}
}

func stoppedBySignal(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	return ok && status.Signaled()
}

func commandAvailable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func commandOutput(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	trimmed := strings.TrimSpace(string(out))
	if err != nil {
		if trimmed != "" {
			return "", fmt.Errorf("%s %s failed: %w (%s)", name, strings.Join(args, " "), err, trimmed)
		}
		return "", fmt.Errorf("%s %s failed: %w", name, strings.Join(args, " "), err)
	}
	return trimmed, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
