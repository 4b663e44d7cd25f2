// Package config loads the uploader's TOML configuration. Values are layered:
// built-in defaults, then the config file, then environment variables, then
// command-line flags. Sizes and durations are kept as strings in Config and
// parsed once by Resolve into a Resolved value.
package config

// Config is the raw, decoded config file. Each TOML table maps to one
// section struct.
type Config struct {
	Source      SourceConfig      `toml:"source"`
	Destination DestinationConfig `toml:"destination"`
	Upload      UploadConfig      `toml:"upload"`
	Auth        AuthConfig        `toml:"auth"`
	API         APIConfig         `toml:"api"`
	Network     NetworkConfig     `toml:"network"`
	Logging     LoggingConfig     `toml:"logging"`
}

// SourceConfig describes the watched local directory.
type SourceConfig struct {
	Directory    string   `toml:"directory"`
	SkipFiles    []string `toml:"skip_files"`
	SkipDotfiles bool     `toml:"skip_dotfiles"`
	// Debounce coalesces repeated events per path. "0" disables it.
	Debounce string `toml:"debounce"`
}

// DestinationConfig describes where files land in the drive.
type DestinationConfig struct {
	Root             string `toml:"root"`
	ConflictBehavior string `toml:"conflict_behavior"`
}

// UploadConfig controls the queue and the upload workers.
type UploadConfig struct {
	DeleteAfterUpload    bool   `toml:"delete_after_upload"`
	QueueCapacity        int    `toml:"queue_capacity"`
	SmallUploadThreshold string `toml:"small_upload_threshold"`
	ChunkSize            string `toml:"chunk_size"`
	Workers              int    `toml:"workers"`
	BandwidthLimit       string `toml:"bandwidth_limit"`
	OpenRetryAttempts    int    `toml:"open_retry_attempts"`
	OpenRetryDelay       string `toml:"open_retry_delay"`
	DeleteRetryAttempts  int    `toml:"delete_retry_attempts"`
	DeleteRetryDelay     string `toml:"delete_retry_delay"`
	RestartDelay         string `toml:"restart_delay"`
}

// AuthConfig holds the application registration and token custody settings.
type AuthConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	// Tenant selects the Azure AD authority ("common", "consumers",
	// "organizations" or a tenant ID). AuthorizeURL and TokenURL override it.
	Tenant              string `toml:"tenant"`
	RedirectURI         string `toml:"redirect_uri"`
	AuthorizeURL        string `toml:"authorize_url"`
	TokenURL            string `toml:"token_url"`
	StorageScope        string `toml:"storage_scope"`
	Prompt              string `toml:"prompt"`
	SecretsDir          string `toml:"secrets_dir"`
	KeyBackend          string `toml:"key_backend"`
	AccessTokenLifetime string `toml:"access_token_lifetime"`
}

// APIConfig addresses the drive API.
type APIConfig struct {
	BaseURL    string `toml:"base_url"`
	UploadPath string `toml:"upload_path"`
}

// NetworkConfig controls HTTP client behavior.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	LogFile   string `toml:"log_file"`
}

// CLIOverrides holds values from command-line flags. Pointer fields are nil
// when the flag was not given.
type CLIOverrides struct {
	ConfigPath        string
	SourceDir         *string
	DeleteAfterUpload *bool
	LogLevel          *string
}
