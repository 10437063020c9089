package record

import (
	"context"
	"errors"
	"os/exec"
	"strings"
)

// DefaultBackends lists the recorders for goos in priority order.
func DefaultBackends(goos string) []Backend {
	switch goos {
	case "linux":
		return []Backend{pipewireBackend(), alsaBackend(), ffmpegLinuxBackend()}
	case "darwin":
		return []Backend{ffmpegMacBackend()}
	default:
		return nil
	}
}

func pipewireBackend() Backend {
	return &commandBackend{
		name:   "pw-record",
		binary: "pw-record",
		args:   pipewireArgs,
		list: func(ctx context.Context) (string, error) {
			if commandAvailable("pw-cli") {
				return commandOutput(ctx, "pw-cli", "ls", "Node")
			}
			if commandAvailable("pactl") {
				return commandOutput(ctx, "pactl", "list", "short", "sources")
			}
			return "", errors.New("no pipewire device listing command available")
		},
	}
}

func pipewireArgs(cfg Config) []string {
	args := []string{"--rate", itoa(cfg.sampleRate()), "--channels", itoa(cfg.channels()), "--format", "s16"}
	if cfg.Input != "" {
		args = append(args, "--target", cfg.Input)
	}
	return append(args, cfg.OutputPath)
}

func alsaBackend() Backend {
	return &commandBackend{
		name:   "arecord",
		binary: "arecord",
		args:   alsaArgs,
		list: func(ctx context.Context) (string, error) {
			return commandOutput(ctx, "arecord", "-L")
		},
	}
}

func alsaArgs(cfg Config) []string {
	args := []string{"-q", "-f", "S16_LE", "-r", itoa(cfg.sampleRate()), "-c", itoa(cfg.channels())}
	if cfg.Input != "" {
		args = append(args, "-D", cfg.Input)
	}
	return append(args, cfg.OutputPath)
}

func ffmpegLinuxBackend() Backend {
	return &commandBackend{
		name:   "ffmpeg",
		binary: "ffmpeg",
		args:   ffmpegLinuxArgs,
		list: func(ctx context.Context) (string, error) {
			if commandAvailable("pactl") {
				return commandOutput(ctx, "pactl", "list", "short", "sources")
			}
			return commandOutput(ctx, "ffmpeg", "-hide_banner", "-sources", "pulse")
		},
	}
}

// ffmpegLinuxArgs reads from PulseAudio unless Input starts with "alsa:",
// e.g. "alsa:hw:1,0".
func ffmpegLinuxArgs(cfg Config) []string {
	format, device := "pulse", "default"
	if cfg.Input != "" {
		device = cfg.Input
		if rest, ok := strings.CutPrefix(cfg.Input, "alsa:"); ok {
			format, device = "alsa", rest
		}
	}
	return ffmpegArgs(format, device, cfg)
}

func ffmpegMacBackend() Backend {
	return &commandBackend{
		name:   "ffmpeg",
		binary: "ffmpeg",
		args: func(cfg Config) []string {
			device := cfg.Input
			if device == "" {
				device = ":0"
			}
			return ffmpegArgs("avfoundation", device, cfg)
		},
		list: func(ctx context.Context) (string, error) {
			// ffmpeg exits non-zero after listing, so only the output counts.
			out, _ := exec.CommandContext(ctx, "ffmpeg", "-hide_banner", "-f", "avfoundation", "-list_devices", "true", "-i", "").CombinedOutput()
			trimmed := strings.TrimSpace(string(out))
			if trimmed == "" {
				return "", errors.New("ffmpeg returned no device output")
			}
			return trimmed, nil
		},
	}
}

func ffmpegArgs(format, device string, cfg Config) []string {
	return []string{
		"-nostdin", "-hide_banner", "-loglevel", "error", "-y",
		"-f", format, "-i", device,
		"-ac", itoa(cfg.channels()),
		"-ar", itoa(cfg.sampleRate()),
		"-c:a", "pcm_s16le",
		cfg.OutputPath,
	}
}
