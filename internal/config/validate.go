package config

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/tonimelisma/onedrive-uploader/internal/graph"
)

// Validation range constants.
const (
	minWorkers          = 1
	maxWorkers          = 16
	minQueueCapacity    = 1
	minRetryAttempts    = 1
	maxChunkBytes       = 60 * 1024 * 1024
	minConnectTimeout   = 1 * time.Second
	minDataTimeout      = 5 * time.Second
	minAccessTokenLife  = time.Minute
	chunkAlignmentLabel = "320 KiB"
)

// Validate checks all configuration values and returns all errors found,
// joined with errors.Join.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateSource(&cfg.Source)...)
	errs = append(errs, validateDestination(&cfg.Destination)...)
	errs = append(errs, validateUpload(&cfg.Upload)...)
	errs = append(errs, validateAuth(&cfg.Auth)...)
	errs = append(errs, validateAPI(&cfg.API)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

// ValidateResolved checks constraints that only hold after overrides have
// been applied and paths expanded.
func ValidateResolved(r *Resolved) error {
	var errs []error

	if !filepath.IsAbs(r.SourceDir) {
		errs = append(errs, fmt.Errorf("source.directory: must be absolute after expansion, got %q", r.SourceDir))
	}

	if r.SecretsDir == "" {
		errs = append(errs, errors.New("auth.secrets_dir: cannot determine a default; set it explicitly"))
	} else if !filepath.IsAbs(r.SecretsDir) {
		errs = append(errs, fmt.Errorf("auth.secrets_dir: must be absolute after expansion, got %q", r.SecretsDir))
	}

	return errors.Join(errs...)
}

func validateSource(s *SourceConfig) []error {
	var errs []error

	if s.Directory == "" {
		errs = append(errs, errors.New("source.directory: must not be empty"))
	}

	for _, pattern := range s.SkipFiles {
		if _, err := path.Match(pattern, ""); err != nil {
			errs = append(errs, fmt.Errorf("source.skip_files: invalid pattern %q: %w", pattern, err))
		}
	}

	errs = append(errs, validateDurationNonNeg("source.debounce", s.Debounce)...)

	return errs
}

func validateDestination(d *DestinationConfig) []error {
	var errs []error

	if !strings.HasPrefix(d.Root, "/") {
		errs = append(errs, fmt.Errorf("destination.root: must start with /, got %q", d.Root))
	}

	if _, err := graph.ParseConflictBehavior(d.ConflictBehavior); err != nil {
		errs = append(errs, fmt.Errorf("destination.conflict_behavior: %w", err))
	}

	return errs
}

func validateUpload(u *UploadConfig) []error {
	var errs []error

	if u.QueueCapacity < minQueueCapacity {
		errs = append(errs, fmt.Errorf("upload.queue_capacity: must be >= %d, got %d",
			minQueueCapacity, u.QueueCapacity))
	}

	if u.Workers < minWorkers || u.Workers > maxWorkers {
		errs = append(errs, fmt.Errorf("upload.workers: must be between %d and %d, got %d",
			minWorkers, maxWorkers, u.Workers))
	}

	if n, err := ParseSize(u.SmallUploadThreshold); err != nil {
		errs = append(errs, fmt.Errorf("upload.small_upload_threshold: %w", err))
	} else if n <= 0 {
		errs = append(errs, fmt.Errorf("upload.small_upload_threshold: must be positive, got %q",
			u.SmallUploadThreshold))
	}

	errs = append(errs, validateChunkSize(u.ChunkSize)...)

	if _, err := ParseBandwidth(u.BandwidthLimit); err != nil {
		errs = append(errs, fmt.Errorf("upload.bandwidth_limit: %w", err))
	}

	errs = append(errs, validateAttempts("upload.open_retry_attempts", u.OpenRetryAttempts)...)
	errs = append(errs, validateAttempts("upload.delete_retry_attempts", u.DeleteRetryAttempts)...)
	errs = append(errs, validateDurationNonNeg("upload.open_retry_delay", u.OpenRetryDelay)...)
	errs = append(errs, validateDurationNonNeg("upload.delete_retry_delay", u.DeleteRetryDelay)...)
	errs = append(errs, validateDurationNonNeg("upload.restart_delay", u.RestartDelay)...)

	return errs
}

func validateChunkSize(s string) []error {
	n, err := ParseSize(s)
	if err != nil {
		return []error{fmt.Errorf("upload.chunk_size: %w", err)}
	}

	if n <= 0 || n > maxChunkBytes {
		return []error{fmt.Errorf("upload.chunk_size: must be between %s and 60MiB, got %s",
			chunkAlignmentLabel, s)}
	}

	if n%graph.ChunkAlignment != 0 {
		return []error{fmt.Errorf(
			"upload.chunk_size: must be a multiple of %s (%d bytes), got %s (%d bytes)",
			chunkAlignmentLabel, graph.ChunkAlignment, s, n)}
	}

	return nil
}

func validateAttempts(field string, n int) []error {
	if n < minRetryAttempts {
		return []error{fmt.Errorf("%s: must be >= %d, got %d", field, minRetryAttempts, n)}
	}

	return nil
}

var validPrompts = map[string]bool{PromptPaste: true, PromptCallback: true}

var validKeyBackends = map[string]bool{
	KeyBackendAuto:    true,
	KeyBackendKeyring: true,
	KeyBackendFile:    true,
}

func validateAuth(a *AuthConfig) []error {
	var errs []error

	if a.Tenant == "" && (a.AuthorizeURL == "" || a.TokenURL == "") {
		errs = append(errs, errors.New("auth.tenant: must not be empty unless authorize_url and token_url are set"))
	}

	errs = append(errs, validateAbsoluteURL("auth.redirect_uri", a.RedirectURI, true)...)
	errs = append(errs, validateAbsoluteURL("auth.authorize_url", a.AuthorizeURL, false)...)
	errs = append(errs, validateAbsoluteURL("auth.token_url", a.TokenURL, false)...)

	if a.StorageScope == "" {
		errs = append(errs, errors.New("auth.storage_scope: must not be empty"))
	}

	if !validPrompts[a.Prompt] {
		errs = append(errs, fmt.Errorf("auth.prompt: must be one of paste, callback; got %q", a.Prompt))
	}

	if !validKeyBackends[a.KeyBackend] {
		errs = append(errs, fmt.Errorf("auth.key_backend: must be one of auto, keyring, file; got %q", a.KeyBackend))
	}

	errs = append(errs, validateDurationMin("auth.access_token_lifetime", a.AccessTokenLifetime, minAccessTokenLife)...)

	return errs
}

func validateAPI(a *APIConfig) []error {
	var errs []error

	errs = append(errs, validateAbsoluteURL("api.base_url", a.BaseURL, true)...)

	if strings.Trim(a.UploadPath, "/") == "" {
		errs = append(errs, errors.New("api.upload_path: must not be empty"))
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("network.connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateDurationMin("network.data_timeout", n.DataTimeout, minDataTimeout)...)

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("logging.log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateAbsoluteURL(field, raw string, required bool) []error {
	if raw == "" {
		if required {
			return []error{fmt.Errorf("%s: must not be empty", field)}
		}

		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return []error{fmt.Errorf("%s: %w", field, err)}
	}

	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return []error{fmt.Errorf("%s: must be an absolute http(s) URL, got %q", field, raw)}
	}

	return nil
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}

func validateDurationNonNeg(field, value string) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < 0 {
		return []error{fmt.Errorf("%s: must be >= 0, got %s", field, d)}
	}

	return nil
}
