package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig        = "GOOGLE_DRIVE_CONFIG"
	EnvClientID      = "GOOGLE_DRIVE_CLIENT_ID"
	EnvClientSecret  = "GOOGLE_DRIVE_CLIENT_SECRET"
	EnvRedirectURI   = "GOOGLE_DRIVE_REDIRECT_URI"
	EnvPlatformToken = "GOOGLE_DRIVE_PLATFORM_TOKEN"
	EnvListenAddr    = "GOOGLE_DRIVE_LISTEN_ADDR"
)

// EnvOverrides holds values derived from environment variables.
// Secrets usually arrive this way rather than through the config file.
type EnvOverrides struct {
	ConfigPath    string
	ClientID      string
	ClientSecret  string
	RedirectURI   string
	PlatformToken string
	ListenAddr    string
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. This does not modify the Config; Resolve applies the fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:    os.Getenv(EnvConfig),
		ClientID:      os.Getenv(EnvClientID),
		ClientSecret:  os.Getenv(EnvClientSecret),
		RedirectURI:   os.Getenv(EnvRedirectURI),
		PlatformToken: os.Getenv(EnvPlatformToken),
		ListenAddr:    os.Getenv(EnvListenAddr),
	}
}
