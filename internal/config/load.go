package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/tonimelisma/onedrive-uploader/internal/graph"
)

// ErrMissingClientID is returned by RequireCredentials when no application
// registration is configured.
var ErrMissingClientID = errors.New("auth.client_id: must be set to talk to the drive API")

// Resolved is the fully merged configuration with sizes, durations and paths
// parsed. It is what the commands consume.
type Resolved struct {
	// ConfigPath is the file that was read, or would have been read.
	ConfigPath string

	SourceDir    string
	SkipFiles    []string
	SkipDotfiles bool
	Debounce     time.Duration

	DestinationRoot  string
	ConflictBehavior graph.ConflictBehavior

	DeleteAfterUpload    bool
	QueueCapacity        int
	SmallUploadThreshold int64
	ChunkSize            int64
	Workers              int
	BandwidthLimit       int64
	OpenRetryAttempts    int
	OpenRetryDelay       time.Duration
	DeleteRetryAttempts  int
	DeleteRetryDelay     time.Duration
	RestartDelay         time.Duration

	ClientID            string
	ClientSecret        string
	RedirectURI         string
	Endpoint            oauth2.Endpoint
	StorageScope        string
	Prompt              string
	SecretsDir          string
	KeyBackend          string
	AccessTokenLifetime time.Duration

	BaseURL    string
	UploadPath string

	ConnectTimeout time.Duration
	DataTimeout    time.Duration
	UserAgent      string

	LogLevel  string
	LogFormat string
	LogFile   string
}

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal, with "did you mean?" suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	if env.SourceDir != "" {
		cfg.Source.Directory = env.SourceDir
	}

	if env.ClientSecret != "" {
		cfg.Auth.ClientSecret = env.ClientSecret
	}

	if cli.SourceDir != nil {
		cfg.Source.Directory = *cli.SourceDir
	}

	if cli.DeleteAfterUpload != nil {
		cfg.Upload.DeleteAfterUpload = *cli.DeleteAfterUpload
	}

	if cli.LogLevel != nil {
		cfg.Logging.LogLevel = *cli.LogLevel
	}

	// Overrides can introduce invalid values, so check the merged result.
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	resolved := resolve(cfg, cfgPath)

	if err := ValidateResolved(resolved); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return resolved, nil
}

// resolve converts a validated Config. Parse errors cannot occur here.
func resolve(cfg *Config, cfgPath string) *Resolved {
	conflict, _ := graph.ParseConflictBehavior(cfg.Destination.ConflictBehavior)

	secretsDir := cfg.Auth.SecretsDir
	if secretsDir == "" {
		secretsDir = DefaultSecretsDir()
	}

	r := &Resolved{
		ConfigPath: cfgPath,

		SourceDir:    filepath.Clean(expandTilde(cfg.Source.Directory)),
		SkipFiles:    cfg.Source.SkipFiles,
		SkipDotfiles: cfg.Source.SkipDotfiles,
		Debounce:     mustDuration(cfg.Source.Debounce),

		DestinationRoot:  cfg.Destination.Root,
		ConflictBehavior: conflict,

		DeleteAfterUpload:    cfg.Upload.DeleteAfterUpload,
		QueueCapacity:        cfg.Upload.QueueCapacity,
		SmallUploadThreshold: mustSize(cfg.Upload.SmallUploadThreshold),
		ChunkSize:            mustSize(cfg.Upload.ChunkSize),
		Workers:              cfg.Upload.Workers,
		OpenRetryAttempts:    cfg.Upload.OpenRetryAttempts,
		OpenRetryDelay:       mustDuration(cfg.Upload.OpenRetryDelay),
		DeleteRetryAttempts:  cfg.Upload.DeleteRetryAttempts,
		DeleteRetryDelay:     mustDuration(cfg.Upload.DeleteRetryDelay),
		RestartDelay:         mustDuration(cfg.Upload.RestartDelay),

		ClientID:            cfg.Auth.ClientID,
		ClientSecret:        cfg.Auth.ClientSecret,
		RedirectURI:         cfg.Auth.RedirectURI,
		Endpoint:            resolveEndpoint(&cfg.Auth),
		StorageScope:        cfg.Auth.StorageScope,
		Prompt:              cfg.Auth.Prompt,
		SecretsDir:          expandTilde(secretsDir),
		KeyBackend:          cfg.Auth.KeyBackend,
		AccessTokenLifetime: mustDuration(cfg.Auth.AccessTokenLifetime),

		BaseURL:    cfg.API.BaseURL,
		UploadPath: cfg.API.UploadPath,

		ConnectTimeout: mustDuration(cfg.Network.ConnectTimeout),
		DataTimeout:    mustDuration(cfg.Network.DataTimeout),
		UserAgent:      cfg.Network.UserAgent,

		LogLevel:  cfg.Logging.LogLevel,
		LogFormat: cfg.Logging.LogFormat,
		LogFile:   expandTilde(cfg.Logging.LogFile),
	}

	r.BandwidthLimit, _ = ParseBandwidth(cfg.Upload.BandwidthLimit)

	return r
}

// resolveEndpoint derives the OAuth endpoints from the tenant, letting
// explicit URLs take precedence.
func resolveEndpoint(a *AuthConfig) oauth2.Endpoint {
	var ep oauth2.Endpoint
	if a.Tenant != "" {
		ep = microsoft.AzureADEndpoint(a.Tenant)
	}

	if a.AuthorizeURL != "" {
		ep.AuthURL = a.AuthorizeURL
	}

	if a.TokenURL != "" {
		ep.TokenURL = a.TokenURL
	}

	return ep
}

// RequireCredentials reports whether enough of the application registration
// is configured to contact the token endpoint.
func (r *Resolved) RequireCredentials() error {
	if r.ClientID == "" {
		return ErrMissingClientID
	}

	return nil
}

// AccessTokenPath and RefreshTokenPath name the two sealed token files.
func (r *Resolved) AccessTokenPath() string {
	return filepath.Join(r.SecretsDir, "access-token")
}

func (r *Resolved) RefreshTokenPath() string {
	return filepath.Join(r.SecretsDir, "refresh-token")
}

// KeyFilePath is the encryption key location for the file key backend.
func (r *Resolved) KeyFilePath() string {
	return filepath.Join(r.SecretsDir, "token.key")
}

func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)

	return d
}

func mustSize(s string) int64 {
	n, _ := ParseSize(s)

	return n
}
