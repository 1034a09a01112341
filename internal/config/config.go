// Package config implements TOML configuration loading, validation, and
// hot reload for the endpoint service. It supports a three-layer
// override chain (defaults -> config file -> environment) plus a small
// set of CLI flag overrides, with strict unknown-key detection.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	OAuth    OAuthConfig    `toml:"oauth"`
	Platform PlatformConfig `toml:"platform"`
	Store    StoreConfig    `toml:"store"`
	Server   ServerConfig   `toml:"server"`
	Logging  LoggingConfig  `toml:"logging"`
	Network  NetworkConfig  `toml:"network"`
}

// OAuthConfig holds the Google OAuth2 application credentials. The
// redirect URI must exactly match one registered on the OAuth client.
type OAuthConfig struct {
	ClientID         string `toml:"client_id"`
	ClientSecret     string `toml:"client_secret"`
	RedirectURI      string `toml:"redirect_uri"`
	ClientType       string `toml:"client_type"`
	JavascriptOrigin string `toml:"javascript_origin"`
}

// PlatformConfig points at the hosting platform: the websocket exchange
// for events and the files service for binary transfers. An empty
// events_url selects the local log-only emitter, useful in development.
type PlatformConfig struct {
	EventsURL string `toml:"events_url"`
	FilesURL  string `toml:"files_url"`
	Token     string `toml:"token"`
}

// StoreConfig controls credential persistence.
type StoreConfig struct {
	Path string `toml:"path"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	ListenAddr      string `toml:"listen_addr"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
}

// LoggingConfig controls log output behavior: level and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// NetworkConfig controls outbound HTTP client behavior.
type NetworkConfig struct {
	RequestTimeout string `toml:"request_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	ListenAddr *string // --listen flag
	StorePath  *string // --db flag
}
