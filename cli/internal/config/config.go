package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BDNK1/dossierflow/plugins/backend"
	httpplugin "github.com/BDNK1/dossierflow/plugins/http"
	"github.com/BDNK1/dossierflow/runtime"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. DOSSIER_API_BASE.
const EnvPrefix = "DOSSIER_"

// Config is the dossierflow.yaml structure
type Config struct {
	API            httpplugin.Config       `yaml:"api" envPrefix:"API_"`
	Reference      runtime.ReferenceConfig `yaml:"reference" envPrefix:"REFERENCE_"`
	Log            LogConfig               `yaml:"log" envPrefix:"LOG_"`
	Session        SessionConfig           `yaml:"session" envPrefix:"SESSION_"`
	Server         backend.Config          `yaml:"server" envPrefix:"SERVER_"`
	DefinitionsDir string                  `yaml:"definitions_dir" env:"DEFINITIONS_DIR" default:"definitions" validate:"required"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" env:"FORMAT" default:"text" validate:"oneof=text json"`
}

// SessionConfig locates the session file. An empty path means the user
// config directory.
type SessionConfig struct {
	Path string `yaml:"path" env:"PATH"`
}

// Load builds the configuration: struct defaults, then the YAML file at path
// (optional; ${VAR} and ${VAR:default} values are resolved), then DOSSIER_*
// environment variables, then validation.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv, os.Environ())
}

func load(path string, lookup func(string) (string, bool), environ []string) (*Config, error) {
	var raw map[string]any
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config from %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
		if raw, err = ExpandValues(raw, lookup); err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", filepath.Base(path), err)
		}
	}

	var cfg Config
	err := runtime.InitializeConfig(&cfg, raw, func(c any) error {
		return env.ParseWithOptions(c, env.Options{
			Prefix:      EnvPrefix,
			Environment: env.ToMap(environ),
		})
	})
	if err != nil {
		return nil, err
	}

	if cfg.Session.Path == "" {
		cfg.Session.Path = defaultSessionPath()
	}
	return &cfg, nil
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".dossierflow-session.yaml"
	}
	return filepath.Join(dir, "dossierflow", "session.yaml")
}
