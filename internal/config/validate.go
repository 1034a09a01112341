package config

import (
	"errors"
	"fmt"
	"time"
)

// validLogLevels are the accepted values for logging.log_level.
var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

// validLogFormats are the accepted values for logging.log_format.
// "auto" picks text on a terminal and JSON otherwise.
var validLogFormats = map[string]bool{
	"auto": true, "text": true, "json": true,
}

// Validate checks the fully resolved configuration. OAuth credentials
// are mandatory: without them no user can ever connect.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.OAuth.ClientID == "" {
		errs = append(errs, fmt.Errorf("oauth.client_id is required (or %s)", EnvClientID))
	}

	if cfg.OAuth.ClientSecret == "" {
		errs = append(errs, fmt.Errorf("oauth.client_secret is required (or %s)", EnvClientSecret))
	}

	if cfg.OAuth.RedirectURI == "" {
		errs = append(errs, fmt.Errorf("oauth.redirect_uri is required (or %s)", EnvRedirectURI))
	}

	if !validLogLevels[cfg.Logging.LogLevel] {
		errs = append(errs, fmt.Errorf("logging.log_level %q is not one of debug, info, warn, error", cfg.Logging.LogLevel))
	}

	if !validLogFormats[cfg.Logging.LogFormat] {
		errs = append(errs, fmt.Errorf("logging.log_format %q is not one of auto, text, json", cfg.Logging.LogFormat))
	}

	if _, err := time.ParseDuration(cfg.Network.RequestTimeout); err != nil {
		errs = append(errs, fmt.Errorf("network.request_timeout %q is not a duration: %w", cfg.Network.RequestTimeout, err))
	}

	if _, err := time.ParseDuration(cfg.Server.ShutdownTimeout); err != nil {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout %q is not a duration: %w", cfg.Server.ShutdownTimeout, err))
	}

	if cfg.Store.Path == "" {
		errs = append(errs, errors.New("store.path must not be empty"))
	}

	return errors.Join(errs...)
}

// RequestTimeout returns the parsed outbound request timeout. Call only
// on a validated config.
func (c *Config) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Network.RequestTimeout)
	if err != nil {
		return 60 * time.Second
	}

	return d
}

// ShutdownTimeout returns the parsed graceful shutdown window. Call
// only on a validated config.
func (c *Config) ShutdownTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.ShutdownTimeout)
	if err != nil {
		return 30 * time.Second
	}

	return d
}
