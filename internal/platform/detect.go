// Package platform locates voxscribe's per-user directories.
package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const appName = "voxscribe"

// Env is the slice of the process environment that decides where files live.
type Env struct {
	GOOS          string
	Home          string
	XDGDataHome   string
	XDGConfigHome string
}

// CurrentEnv reads Env from the running process.
func CurrentEnv() (Env, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Env{}, fmt.Errorf("resolve user home: %w", err)
	}
	return Env{
		GOOS:          runtime.GOOS,
		Home:          home,
		XDGDataHome:   os.Getenv("XDG_DATA_HOME"),
		XDGConfigHome: os.Getenv("XDG_CONFIG_HOME"),
	}, nil
}

// ModelDir is where downloaded ggml models are stored.
func (e Env) ModelDir() (string, error) {
	return e.dataPath("models")
}

// RecordingDir is where microphone captures are written.
func (e Env) RecordingDir() (string, error) {
	return e.dataPath("recordings")
}

// ConfigPath is the location of the optional YAML config file.
func (e Env) ConfigPath() (string, error) {
	if e.Home == "" {
		return "", errors.New("home directory is empty")
	}

	switch e.GOOS {
	case "linux":
		base := e.XDGConfigHome
		if base == "" {
			base = filepath.Join(e.Home, ".config")
		}
		return filepath.Join(base, appName, "config.yaml"), nil
	case "darwin":
		return filepath.Join(e.Home, "Library", "Application Support", appName, "config.yaml"), nil
	default:
		return "", fmt.Errorf("unsupported OS: %s", e.GOOS)
	}
}

func (e Env) dataPath(sub string) (string, error) {
	if e.Home == "" {
		return "", errors.New("home directory is empty")
	}

	var base string
	switch e.GOOS {
	case "linux":
		base = e.XDGDataHome
		if base == "" {
			base = filepath.Join(e.Home, ".local", "share")
		}
	case "darwin":
		base = filepath.Join(e.Home, "Library", "Application Support")
	default:
		return "", fmt.Errorf("unsupported OS: %s", e.GOOS)
	}
	return filepath.Join(base, appName, sub), nil
}

// ResolveModelDir returns override, or the per-user model directory.
func ResolveModelDir(override string) (string, error) {
	if override != "" {
		return filepath.Clean(override), nil
	}
	return fromCurrent(Env.ModelDir)
}

func ResolveRecordingDir() (string, error) {
	return fromCurrent(Env.RecordingDir)
}

func ResolveConfigPath() (string, error) {
	return fromCurrent(Env.ConfigPath)
}

// ResolveOutputDir returns override, or the OS temp directory when empty.
func ResolveOutputDir(override string) string {
	if override != "" {
		return filepath.Clean(override)
	}
	return os.TempDir()
}

func fromCurrent(dir func(Env) (string, error)) (string, error) {
	env, err := CurrentEnv()
	if err != nil {
		return "", err
	}
	return dir(env)
}
