package main

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePIDFile_LifeCycle(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data", "uploader.pid")

	cleanup, err := writePIDFile(path)
	require.NoError(t, err)

	pid, err := readPIDFile(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	assert.Equal(t, os.Getpid(), runningPID(path))

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(pidDirPermissions), info.Mode().Perm())

	cleanup()
	assert.NoFileExists(t, path)
	assert.Zero(t, runningPID(path))
}

func TestWritePIDFile_SecondRunRefused(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "uploader.pid")

	cleanup, err := writePIDFile(path)
	require.NoError(t, err)
	defer cleanup()

	again, err := writePIDFile(path)
	require.Error(t, err)
	assert.Nil(t, again)
	assert.Contains(t, err.Error(), "already active")
}

func TestWritePIDFile_OverwritesStaleContent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "uploader.pid")
	require.NoError(t, os.WriteFile(path, []byte("99999999999\nleftover\n"), 0o644))

	cleanup, err := writePIDFile(path)
	require.NoError(t, err)
	defer cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid())+"\n", string(data))
}

func TestWritePIDFile_EmptyPath(t *testing.T) {
	t.Parallel()

	cleanup, err := writePIDFile("")
	require.Error(t, err)
	assert.Nil(t, cleanup)
}

func TestRunningPID_NotRunning(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"garbage", "pid?\n"},
		{"zero", "0\n"},
		{"negative", "-5\n"},
		{"no such process", strconv.Itoa(1<<30) + "\n"},
	}

	assert.Zero(t, runningPID(filepath.Join(dir, "absent.pid")))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".pid")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			assert.Zero(t, runningPID(path))
		})
	}
}

func TestReadPIDFile_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := readPIDFile(filepath.Join(dir, "absent.pid"))
	require.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(dir, "bad.pid")
	require.NoError(t, os.WriteFile(path, []byte("twelve"), 0o644))

	_, err = readPIDFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid PID")
}
