// Package config provides the configuration loader for pkgd.
package config

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.trai.ch/pkgd/internal/core/domain"
	"go.trai.ch/pkgd/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// FileConfigLoader implements ports.ConfigLoader using a YAML file.
type FileConfigLoader struct {
	Filename string
	logger   ports.Logger
}

// NewLoader creates a loader looking for pkgd.yaml.
func NewLoader(logger ports.Logger) *FileConfigLoader {
	return &FileConfigLoader{Filename: domain.ConfigFileName, logger: logger}
}

// Load searches for the configuration file from cwd upwards, then at $PKGD_CONFIG.
// Without any file the defaults are returned.
func (l *FileConfigLoader) Load(cwd string) (*domain.Config, error) {
	path, err := l.find(cwd)
	if err != nil {
		return nil, err
	}
	if path == "" {
		if l.logger != nil {
			l.logger.Debug("no configuration file found, using defaults", "cwd", cwd)
		}
		cfg := domain.DefaultConfig()
		return &cfg, nil
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if l.logger != nil {
		l.logger.Debug("configuration loaded", "path", path)
	}
	return cfg, nil
}

func (l *FileConfigLoader) find(cwd string) (string, error) {
	dir, err := filepath.Abs(cwd)
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to resolve working directory"), "cwd", cwd)
	}
	for {
		candidate := filepath.Join(dir, l.Filename)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if env := os.Getenv(domain.ConfigEnvVar); env != "" {
		if _, err := os.Stat(env); err != nil {
			return "", zerr.With(zerr.Wrap(domain.ErrConfigReadFailed, "config file from environment not found"), "path", env)
		}
		return env, nil
	}
	return "", nil
}

// Load reads the configuration file at path, layered over the defaults, and validates it.
func Load(path string) (*domain.Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is provided by user
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, zerr.With(zerr.Wrap(domain.ErrConfigReadFailed, "config file not found"), "path", path)
		}
		return nil, zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrConfigReadFailed), "read failed"), "path", path)
	}
	return Parse(data, path)
}

// Parse decodes data over the defaults. Unknown keys are rejected.
func Parse(data []byte, source string) (*domain.Config, error) {
	cfg := domain.DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrConfigParseFailed), "decode failed"), "path", source)
	}

	if err := cfg.Validate(); err != nil {
		return nil, zerr.With(err, "path", source)
	}
	return &cfg, nil
}
