package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/onedrive-uploader/internal/config"
)

// Global flag reset pattern: newRootCmd() binds flags via StringVar/BoolVar,
// which reset the global flag variables to their zero values. Tests go
// through cmd.SetArgs() + cmd.Execute() so Cobra parses the flags.

func isolateEnv(t *testing.T) {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(home, ".local", "share"))
	t.Setenv(config.EnvConfig, "")
	t.Setenv(config.EnvSourceDir, "")
	t.Setenv(config.EnvClientSecret, "")
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestConfigShow_ThroughRootCommand(t *testing.T) {
	isolateEnv(t)

	path := writeConfigFile(t, `
[source]
directory = "/srv/drop"

[auth]
client_id = "app-id"
client_secret = "never-print-me"
`)

	var out bytes.Buffer

	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", path, "--quiet", "config", "show"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), `directory     = "/srv/drop"`)
	assert.Contains(t, out.String(), `client_id             = "app-id"`)
	assert.Contains(t, out.String(), `log_level  = "error"`)
	assert.NotContains(t, out.String(), "never-print-me")
}

func TestRootCommand_InvalidConfigFails(t *testing.T) {
	isolateEnv(t)

	path := writeConfigFile(t, "[upload]\nworkerz = 2\n")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", path, "config", "show"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
	assert.Contains(t, err.Error(), `did you mean "upload.workers"`)
}

func TestRootCommand_VerboseAndQuietExclusive(t *testing.T) {
	isolateEnv(t)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--verbose", "--quiet", "config", "show"})
	assert.Error(t, cmd.Execute())
}

func TestRunCommand_RequiresClientID(t *testing.T) {
	isolateEnv(t)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", writeConfigFile(t, ""), "run"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingClientID)
}

func TestCLIOverrides_RunFlags(t *testing.T) {
	isolateEnv(t)

	cmd := newRunCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--source-dir", "/srv/other", "--delete-after-upload"}))

	cli := cliOverrides(cmd, CLIFlags{ConfigPath: "/etc/x.toml", Verbose: true})

	assert.Equal(t, "/etc/x.toml", cli.ConfigPath)
	require.NotNil(t, cli.SourceDir)
	assert.Equal(t, "/srv/other", *cli.SourceDir)
	require.NotNil(t, cli.DeleteAfterUpload)
	assert.True(t, *cli.DeleteAfterUpload)
	require.NotNil(t, cli.LogLevel)
	assert.Equal(t, "debug", *cli.LogLevel)
}

func TestCLIOverrides_UnsetFlagsStayNil(t *testing.T) {
	cmd := newPutCmd()
	require.NoError(t, cmd.ParseFlags(nil))

	cli := cliOverrides(cmd, CLIFlags{})

	assert.Nil(t, cli.SourceDir)
	assert.Nil(t, cli.DeleteAfterUpload)
	assert.Nil(t, cli.LogLevel)
}

func TestMustCLIContext(t *testing.T) {
	cc := &CLIContext{Flags: CLIFlags{Quiet: true}}
	ctx := context.WithValue(context.Background(), cliContextKey{}, cc)

	assert.Same(t, cc, mustCLIContext(ctx))
	assert.Panics(t, func() { mustCLIContext(context.Background()) })
}

func TestBuildLogger_Levels(t *testing.T) {
	tests := []struct {
		level   string
		enabled slog.Level
		muted   slog.Level
	}{
		{"debug", slog.LevelDebug, slog.LevelDebug - 1},
		{"info", slog.LevelInfo, slog.LevelDebug},
		{"warn", slog.LevelWarn, slog.LevelInfo},
		{"error", slog.LevelError, slog.LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, closeFn, err := buildLogger(&config.Resolved{LogLevel: tt.level, LogFormat: "text"}, &bytes.Buffer{})
			require.NoError(t, err)
			defer closeFn()

			assert.True(t, logger.Enabled(context.Background(), tt.enabled))
			assert.False(t, logger.Enabled(context.Background(), tt.muted))
		})
	}
}

func TestBuildLogger_AutoFormatIsJSONWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer

	logger, _, err := buildLogger(&config.Resolved{LogLevel: "info", LogFormat: "auto"}, &buf)
	require.NoError(t, err)

	logger.Info("hello", slog.String("k", "v"))
	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"k":"v"`)
}

func TestBuildLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer

	logger, _, err := buildLogger(&config.Resolved{LogLevel: "info", LogFormat: "text"}, &buf)
	require.NoError(t, err)

	logger.Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestBuildLogger_LogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "uploader.log")

	logger, closeFn, err := buildLogger(&config.Resolved{LogLevel: "info", LogFormat: "json", LogFile: path}, &bytes.Buffer{})
	require.NoError(t, err)

	logger.Info("to file")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(logFilePermissions), info.Mode().Perm())
}

func TestIsTerminal_NonFile(t *testing.T) {
	assert.False(t, isTerminal(&bytes.Buffer{}))
}
