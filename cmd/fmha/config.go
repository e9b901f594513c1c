package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the fmha configuration file (~/.config/fmha/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	Backend    string `yaml:"backend"`
	Workers    *int64 `yaml:"workers"`
	Iterations *int64 `yaml:"iterations"`
	Seed       *int64 `yaml:"seed"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	if p := os.Getenv("FMHA_CONFIG"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "fmha", "config.yaml")
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't exist.
func LoadConfig() (Config, error) {
	return loadConfigFile(configPath())
}

func loadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func applyLoggingConfig(c *cli.Command, cfg Config, level, format *string) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		*level = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		*format = cfg.LogFormat
	}
}

func applyBackendConfig(c *cli.Command, cfg Config) {
	if cfg.Backend != "" && !c.IsSet("backend") {
		backendName = cfg.Backend
	}
	if cfg.Workers != nil && !c.IsSet("workers") {
		workers = *cfg.Workers
	}
}

// applyRunConfig applies config file defaults to run command variables
// when the corresponding CLI flag was not explicitly set.
func applyRunConfig(c *cli.Command, cfg Config, iterations, seed *int64) {
	applyBackendConfig(c, cfg)
	if cfg.Iterations != nil && !c.IsSet("iterations") {
		*iterations = *cfg.Iterations
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		*seed = *cfg.Seed
	}
}

func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	applyBackendConfig(c, cfg)
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}
