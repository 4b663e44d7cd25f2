package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig       = "ONEDRIVE_UPLOADER_CONFIG"
	EnvSourceDir    = "ONEDRIVE_UPLOADER_SOURCE_DIR"
	EnvClientSecret = "ONEDRIVE_UPLOADER_CLIENT_SECRET"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath   string // ONEDRIVE_UPLOADER_CONFIG: override config file path
	SourceDir    string // ONEDRIVE_UPLOADER_SOURCE_DIR: watched directory override
	ClientSecret string // ONEDRIVE_UPLOADER_CLIENT_SECRET: keeps the secret out of the file
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:   os.Getenv(EnvConfig),
		SourceDir:    os.Getenv(EnvSourceDir),
		ClientSecret: os.Getenv(EnvClientSecret),
	}
}
