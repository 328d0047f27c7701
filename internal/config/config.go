// Package config loads the CLI configuration: an optional YAML file with
// environment overrides. The vault core itself takes no configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Hussein-Mazeh/pinvault/internal/logger"
)

// Config holds the CLI settings.
type Config struct {
	// Dir is the directory holding the vault artifacts.
	Dir string `yaml:"dir"`

	Log LogConfig `yaml:"log"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

const appDirName = "pinvault"

// Defaults returns the configuration used when no file is given.
func Defaults() Config {
	return Config{
		Dir: defaultDir(),
		Log: LogConfig{Level: "warn", Format: "text"},
	}
}

func defaultDir() string {
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		return appDirName
	}
	return filepath.Join(base, appDirName)
}

// Load reads path over the defaults and then applies PINVAULT_DIR and
// PINVAULT_LOG_LEVEL. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if cfg, err = Decode(f); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}

	cfg.Dir = getEnv("PINVAULT_DIR", cfg.Dir)
	cfg.Log.Level = getEnv("PINVAULT_LOG_LEVEL", cfg.Log.Level)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode parses YAML from r over the defaults. Unknown keys are rejected.
func Decode(r io.Reader) (Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks the values a file or the environment may have set.
func (c Config) Validate() error {
	if c.Dir == "" {
		return errors.New("config: dir must not be empty")
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}

// JSONLogs reports whether the log format is json.
func (c Config) JSONLogs() bool {
	return c.Log.Format == "json"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
