package config

// Default values for configuration options. These apply to any key the
// config file leaves unset.
const (
	defaultSourceDir            = "~/OneDriveUpload"
	defaultDebounce             = "0"
	defaultDestinationRoot      = "/"
	defaultConflictBehavior     = "rename"
	defaultQueueCapacity        = 500
	defaultSmallUploadThreshold = "4MiB"
	defaultChunkSize            = "3200KiB"
	defaultWorkers              = 1
	defaultBandwidthLimit       = "0"
	defaultOpenRetryAttempts    = 50
	defaultOpenRetryDelay       = "200ms"
	defaultDeleteRetryAttempts  = 20
	defaultDeleteRetryDelay     = "200ms"
	defaultRestartDelay         = "15s"
	defaultTenant               = "common"
	defaultRedirectURI          = "http://localhost:8080/callback"
	defaultStorageScope         = "Files.ReadWrite.All"
	defaultPrompt               = PromptPaste
	defaultKeyBackend           = KeyBackendAuto
	defaultAccessTokenLifetime  = "1h"
	defaultBaseURL              = "https://graph.microsoft.com/v1.0"
	defaultUploadPath           = "me/drive/root"
	defaultConnectTimeout       = "10s"
	defaultDataTimeout          = "60s"
	defaultUserAgent            = "onedrive-uploader/0.1"
	defaultLogLevel             = "info"
	defaultLogFormat            = "auto"
)

// Accepted values for auth.prompt.
const (
	PromptPaste    = "paste"
	PromptCallback = "callback"
)

// Accepted values for auth.key_backend.
const (
	KeyBackendAuto    = "auto"
	KeyBackendKeyring = "keyring"
	KeyBackendFile    = "file"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding so unset fields keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			Directory: defaultSourceDir,
			Debounce:  defaultDebounce,
		},
		Destination: DestinationConfig{
			Root:             defaultDestinationRoot,
			ConflictBehavior: defaultConflictBehavior,
		},
		Upload: defaultUploadConfig(),
		Auth: AuthConfig{
			Tenant:              defaultTenant,
			RedirectURI:         defaultRedirectURI,
			StorageScope:        defaultStorageScope,
			Prompt:              defaultPrompt,
			KeyBackend:          defaultKeyBackend,
			AccessTokenLifetime: defaultAccessTokenLifetime,
		},
		API: APIConfig{
			BaseURL:    defaultBaseURL,
			UploadPath: defaultUploadPath,
		},
		Network: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			DataTimeout:    defaultDataTimeout,
			UserAgent:      defaultUserAgent,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}

func defaultUploadConfig() UploadConfig {
	return UploadConfig{
		QueueCapacity:        defaultQueueCapacity,
		SmallUploadThreshold: defaultSmallUploadThreshold,
		ChunkSize:            defaultChunkSize,
		Workers:              defaultWorkers,
		BandwidthLimit:       defaultBandwidthLimit,
		OpenRetryAttempts:    defaultOpenRetryAttempts,
		OpenRetryDelay:       defaultOpenRetryDelay,
		DeleteRetryAttempts:  defaultDeleteRetryAttempts,
		DeleteRetryDelay:     defaultDeleteRetryDelay,
		RestartDelay:         defaultRestartDelay,
	}
}
