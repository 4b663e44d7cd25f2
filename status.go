package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-uploader/internal/auth"
	"github.com/tonimelisma/onedrive-uploader/internal/config"
	"github.com/tonimelisma/onedrive-uploader/internal/tokenstore"
)

// Token state constants for status reporting.
const (
	tokenStateMissing = "missing"
	tokenStateExpired = "expired"
	tokenStatePresent = "present"
	tokenStateValid   = "valid"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show token state and whether the uploader is running",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}

	cmd.Flags().Bool("json", false, "output in JSON format")

	return cmd
}

// statusReport is the JSON schema for `status --json`.
type statusReport struct {
	ConfigPath      string     `json:"config_path"`
	SourceDir       string     `json:"source_dir"`
	DestinationRoot string     `json:"destination_root"`
	AuthState       string     `json:"auth_state"`
	RefreshToken    string     `json:"refresh_token"`
	AccessToken     string     `json:"access_token"`
	AccessExpiresAt *time.Time `json:"access_expires_at,omitempty"`
	RunningPID      int        `json:"running_pid,omitempty"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	a, err := newApp(cc, auth.NoPrompter{})
	if err != nil {
		return err
	}

	report := buildStatusReport(cc.Cfg, a.store, a.tokens.State(), time.Now())
	report.RunningPID = runningPID(config.PIDFilePath())

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printStatusJSON(cmd.OutOrStdout(), report)
	}

	printStatusText(cmd.OutOrStdout(), report)

	return nil
}

// tokenGetter is the read side of the token store.
type tokenGetter interface {
	Get(kind tokenstore.Kind) (tokenstore.Token, bool)
}

func buildStatusReport(cfg *config.Resolved, store tokenGetter, state auth.State, now time.Time) statusReport {
	report := statusReport{
		ConfigPath:      cfg.ConfigPath,
		SourceDir:       cfg.SourceDir,
		DestinationRoot: cfg.DestinationRoot,
		AuthState:       state.String(),
		RefreshToken:    tokenStateMissing,
		AccessToken:     tokenStateMissing,
	}

	if _, ok := store.Get(tokenstore.KindRefresh); ok {
		report.RefreshToken = tokenStatePresent
	}

	access, ok := store.Get(tokenstore.KindAccess)
	if !ok {
		return report
	}

	expiresAt := access.ExpiresAt
	if !access.HasExpiry() {
		expiresAt = access.ObtainedAt.Add(cfg.AccessTokenLifetime)
	}

	report.AccessExpiresAt = &expiresAt
	report.AccessToken = tokenStateValid

	if !now.Before(expiresAt) {
		report.AccessToken = tokenStateExpired
	}

	return report
}

func printStatusJSON(w io.Writer, report statusReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}

	return nil
}

func printStatusText(w io.Writer, report statusReport) {
	access := report.AccessToken
	if report.AccessExpiresAt != nil {
		access = fmt.Sprintf("%s (expires %s, %s)", access,
			formatTime(*report.AccessExpiresAt), humanize.Time(*report.AccessExpiresAt))
	}

	running := "no"
	if report.RunningPID > 0 {
		running = "yes (PID " + strconv.Itoa(report.RunningPID) + ")"
	}

	printKeyValues(w, [][2]string{
		{"Config", report.ConfigPath},
		{"Source", report.SourceDir},
		{"Destination", report.DestinationRoot},
		{"Auth state", report.AuthState},
		{"Refresh token", report.RefreshToken},
		{"Access token", access},
		{"Running", running},
	})
}
