package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// DefaultConfigPath is the config file location used when neither the
// environment nor the CLI names one.
const DefaultConfigPath = "google-drive-endpoint.toml"

// Load reads and parses a TOML config file and returns the resulting
// Config. Unknown keys are fatal errors with "did you mean?"
// suggestions — silently ignoring a typo in a config file leads to
// hard-to-debug behavior.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values so that a pure-environment
// deployment needs no file at all.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
// The result is validated before being returned.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, string, error) {
	cfgPath := DefaultConfigPath
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, "", err
	}

	if env.ClientID != "" {
		cfg.OAuth.ClientID = env.ClientID
	}

	if env.ClientSecret != "" {
		cfg.OAuth.ClientSecret = env.ClientSecret
	}

	if env.RedirectURI != "" {
		cfg.OAuth.RedirectURI = env.RedirectURI
	}

	if env.PlatformToken != "" {
		cfg.Platform.Token = env.PlatformToken
	}

	if env.ListenAddr != "" {
		cfg.Server.ListenAddr = env.ListenAddr
	}

	if cli.ListenAddr != nil {
		cfg.Server.ListenAddr = *cli.ListenAddr
	}

	if cli.StorePath != nil {
		cfg.Store.Path = *cli.StorePath
	}

	if err := Validate(cfg); err != nil {
		return nil, "", fmt.Errorf("config validation: %w", err)
	}

	return cfg, cfgPath, nil
}
