// Package clipboard copies text to the desktop clipboard through the helper
// command the platform provides.
package clipboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

var ErrUnavailable = errors.New("no clipboard command available")

const copyTimeout = 4 * time.Second

type command struct {
	name string
	args []string
	// detach leaves the process running after stdin is closed. X11 helpers
	// must keep serving the selection.
	detach bool
}

// candidates returns the clipboard helpers to try for goos, in order.
func candidates(goos string, wayland bool) []command {
	switch goos {
	case "darwin":
		return []command{{name: "pbcopy"}}
	case "linux", "freebsd", "openbsd":
		var out []command
		if wayland {
			out = append(out, command{name: "wl-copy"})
		}
		return append(out,
			command{name: "xclip", args: []string{"-selection", "clipboard", "-in", "-silent"}, detach: true},
			command{name: "xsel", args: []string{"--clipboard", "--input"}},
		)
	default:
		return nil
	}
}

// CopyText copies value using the first helper found on PATH.
func CopyText(ctx context.Context, value string) error {
	cmd, err := detect(candidates(runtime.GOOS, os.Getenv("WAYLAND_DISPLAY") != ""), exec.LookPath)
	if err != nil {
		return err
	}
	return run(ctx, cmd, value)
}

func detect(candidates []command, lookPath func(string) (string, error)) (command, error) {
	for _, c := range candidates {
		if _, err := lookPath(c.name); err == nil {
			return c, nil
		}
	}
	return command{}, ErrUnavailable
}

func run(ctx context.Context, c command, value string) error {
	if c.detach {
		return runDetached(c, value)
	}

	ctx, cancel := context.WithTimeout(ctx, copyTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.name, c.args...)
	cmd.Stdin = strings.NewReader(value)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("copy to clipboard timed out: %w", ctx.Err())
		}
		return fmt.Errorf("copy to clipboard with %s: %w", c.name, err)
	}
	return nil
}

func runDetached(c command, value string) error {
	cmd := exec.Command(c.name, c.args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open clipboard stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start %s: %w", c.name, err)
	}

	if _, err := io.WriteString(stdin, value); err != nil {
		_ = stdin.Close()
		_ = cmd.Process.Kill()
		return fmt.Errorf("write clipboard data: %w", err)
	}
	if err := stdin.Close(); err != nil {
		_ = cmd.Process.Kill()
		return fmt.Errorf("close clipboard stdin: %w", err)
	}

	_ = cmd.Process.Release()
	return nil
}
