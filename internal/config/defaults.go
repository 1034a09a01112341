package config

// Default values for configuration options. These are the "layer 0" of
// the override chain and let the service start with nothing but OAuth
// credentials supplied.
const (
	defaultClientType      = "web"
	defaultStorePath       = "credentials.db"
	defaultListenAddr      = ":8080"
	defaultShutdownTimeout = "30s"
	defaultLogLevel        = "info"
	defaultLogFormat       = "auto"
	defaultRequestTimeout  = "60s"
	defaultUserAgent       = "google-drive-endpoint/0.1"
)

// DefaultConfig returns a Config populated with all default values.
// Used as the starting point for TOML decoding (so unset fields retain
// defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		OAuth: OAuthConfig{
			ClientType: defaultClientType,
		},
		Store: StoreConfig{
			Path: defaultStorePath,
		},
		Server: ServerConfig{
			ListenAddr:      defaultListenAddr,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Network: NetworkConfig{
			RequestTimeout: defaultRequestTimeout,
			UserAgent:      defaultUserAgent,
		},
	}
}
