package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
)

const redacted = "(redacted)"

// RenderEffective writes the resolved configuration as a human-readable
// annotated summary to w. This powers the "config show" command. The client
// secret is never printed.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", r.ConfigPath)

	renderSourceSection(ew, r)
	renderDestinationSection(ew, r)
	renderUploadSection(ew, r)
	renderAuthSection(ew, r)
	renderAPISection(ew, r)
	renderNetworkSection(ew, r)
	renderLoggingSection(ew, r)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func renderSourceSection(ew *errWriter, r *Resolved) {
	ew.printf("[source]\n")
	ew.printf("  directory     = %q\n", r.SourceDir)
	ew.printf("  skip_dotfiles = %t\n", r.SkipDotfiles)
	ew.printf("  debounce      = %q\n", r.Debounce.String())

	if len(r.SkipFiles) > 0 {
		ew.printf("  skip_files    = [%s]\n", joinQuoted(r.SkipFiles))
	}

	ew.printf("\n")
}

func renderDestinationSection(ew *errWriter, r *Resolved) {
	ew.printf("[destination]\n")
	ew.printf("  root              = %q\n", r.DestinationRoot)
	ew.printf("  conflict_behavior = %q\n", string(r.ConflictBehavior))
	ew.printf("\n")
}

func renderUploadSection(ew *errWriter, r *Resolved) {
	ew.printf("[upload]\n")
	ew.printf("  delete_after_upload    = %t\n", r.DeleteAfterUpload)
	ew.printf("  queue_capacity         = %d\n", r.QueueCapacity)
	ew.printf("  small_upload_threshold = %q\n", humanize.IBytes(uint64(r.SmallUploadThreshold)))
	ew.printf("  chunk_size             = %q\n", humanize.IBytes(uint64(r.ChunkSize)))
	ew.printf("  workers                = %d\n", r.Workers)

	if r.BandwidthLimit > 0 {
		ew.printf("  bandwidth_limit        = %q\n", humanize.IBytes(uint64(r.BandwidthLimit))+"/s")
	} else {
		ew.printf("  bandwidth_limit        = %q\n", "unlimited")
	}

	ew.printf("  open_retry_attempts    = %d\n", r.OpenRetryAttempts)
	ew.printf("  open_retry_delay       = %q\n", r.OpenRetryDelay.String())
	ew.printf("  delete_retry_attempts  = %d\n", r.DeleteRetryAttempts)
	ew.printf("  delete_retry_delay     = %q\n", r.DeleteRetryDelay.String())
	ew.printf("  restart_delay          = %q\n", r.RestartDelay.String())
	ew.printf("\n")
}

func renderAuthSection(ew *errWriter, r *Resolved) {
	ew.printf("[auth]\n")
	ew.printf("  client_id             = %q\n", r.ClientID)

	if r.ClientSecret != "" {
		ew.printf("  client_secret         = %q\n", redacted)
	}

	ew.printf("  redirect_uri          = %q\n", r.RedirectURI)
	ew.printf("  authorize_url         = %q\n", r.Endpoint.AuthURL)
	ew.printf("  token_url             = %q\n", r.Endpoint.TokenURL)
	ew.printf("  storage_scope         = %q\n", r.StorageScope)
	ew.printf("  prompt                = %q\n", r.Prompt)
	ew.printf("  secrets_dir           = %q\n", r.SecretsDir)
	ew.printf("  key_backend           = %q\n", r.KeyBackend)
	ew.printf("  access_token_lifetime = %q\n", r.AccessTokenLifetime.String())
	ew.printf("\n")
}

func renderAPISection(ew *errWriter, r *Resolved) {
	ew.printf("[api]\n")
	ew.printf("  base_url    = %q\n", r.BaseURL)
	ew.printf("  upload_path = %q\n", r.UploadPath)
	ew.printf("\n")
}

func renderNetworkSection(ew *errWriter, r *Resolved) {
	ew.printf("[network]\n")
	ew.printf("  connect_timeout = %q\n", r.ConnectTimeout.String())
	ew.printf("  data_timeout    = %q\n", r.DataTimeout.String())
	ew.printf("  user_agent      = %q\n", r.UserAgent)
	ew.printf("\n")
}

func renderLoggingSection(ew *errWriter, r *Resolved) {
	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", r.LogLevel)
	ew.printf("  log_format = %q\n", r.LogFormat)

	if r.LogFile != "" {
		ew.printf("  log_file   = %q\n", r.LogFile)
	}
}

// joinQuoted formats a string slice as comma-separated quoted values.
func joinQuoted(ss []string) string {
	quoted := make([]string, len(ss))
	for i, s := range ss {
		quoted[i] = fmt.Sprintf("%q", s)
	}

	return strings.Join(quoted, ", ")
}
