// Package config loads voxscribe settings. Precedence, lowest first: built-in
// defaults, the YAML file, environment variables (including a .env file), and
// flags the user set explicitly.
package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/fmueller/voxscribe/internal/whisper"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultAddr = "127.0.0.1:7860"

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Engine  EngineConfig  `yaml:"engine"`
	Output  OutputConfig  `yaml:"output"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// ShowErrors puts failure details into responses shown to the browser.
	ShowErrors bool `yaml:"show_errors"`
}

type EngineConfig struct {
	Backend      string `yaml:"backend"`
	Model        string `yaml:"model"`
	ModelDir     string `yaml:"model_dir"`
	Language     string `yaml:"language"`
	AutoDownload bool   `yaml:"auto_download"`
	WhisperPath  string `yaml:"whisper_path"`
	FFmpegPath   string `yaml:"ffmpeg_path"`
}

type OutputConfig struct {
	// Dir receives generated transcripts. Empty means the OS temp dir.
	Dir string `yaml:"dir"`
}

type LogConfig struct {
	Verbose bool `yaml:"verbose"`
	JSON    bool `yaml:"json"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{Addr: DefaultAddr, ShowErrors: true},
		Engine: EngineConfig{
			Backend:      whisper.BackendBundled,
			Model:        whisper.DefaultModel,
			Language:     "auto",
			AutoDownload: true,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load reads path on top of Default. A missing file is not an error when
// optional is true.
func Load(path string, optional bool) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	if err := decode(f, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r on top of Default.
func LoadFromReader(r io.Reader) (Config, error) {
	cfg := Default()
	if err := decode(r, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode yaml: %w", err)
	}
	return nil
}

// LoadDotEnv loads KEY=value pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(files ...string) error {
	for _, file := range files {
		if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("config: load %s: %w", file, err)
		}
	}
	return nil
}

// ApplyEnv overlays VOXSCRIBE_* variables read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}

	str("VOXSCRIBE_ADDR", &c.Server.Addr)
	boolean("VOXSCRIBE_SHOW_ERRORS", &c.Server.ShowErrors)
	str("VOXSCRIBE_ENGINE", &c.Engine.Backend)
	str("VOXSCRIBE_MODEL", &c.Engine.Model)
	str("VOXSCRIBE_MODEL_DIR", &c.Engine.ModelDir)
	str("VOXSCRIBE_LANGUAGE", &c.Engine.Language)
	boolean("VOXSCRIBE_AUTO_DOWNLOAD", &c.Engine.AutoDownload)
	str("VOXSCRIBE_FFMPEG_PATH", &c.Engine.FFmpegPath)
	str("VOXSCRIBE_OUTPUT_DIR", &c.Output.Dir)
	boolean("VOXSCRIBE_VERBOSE", &c.Log.Verbose)
	boolean("VOXSCRIBE_LOG_JSON", &c.Log.JSON)
	boolean("VOXSCRIBE_METRICS", &c.Metrics.Enabled)

	return errors.Join(errs...)
}

// Validate returns every problem found, joined.
func (c Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr must not be empty"))
	} else if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		errs = append(errs, fmt.Errorf("server.addr %q: %w", c.Server.Addr, err))
	}

	if !slices.Contains(whisper.Backends(), c.Engine.Backend) {
		errs = append(errs, fmt.Errorf("engine.backend %q is invalid; valid values: %s", c.Engine.Backend, strings.Join(whisper.Backends(), ", ")))
	}

	if c.Engine.Model == "" {
		errs = append(errs, errors.New("engine.model must not be empty"))
	} else if !whisper.IsKnownModel(c.Engine.Model) {
		errs = append(errs, fmt.Errorf("engine.model %q is invalid; use one of %s or a path to a ggml .bin file", c.Engine.Model, strings.Join(whisper.ModelNames(), ", ")))
	}

	if c.Output.Dir != "" {
		if info, err := os.Stat(c.Output.Dir); err == nil && !info.IsDir() {
			errs = append(errs, fmt.Errorf("output.dir %q is not a directory", c.Output.Dir))
		}
	}

	return errors.Join(errs...)
}
