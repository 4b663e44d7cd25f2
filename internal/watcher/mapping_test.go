package watcher

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapDestination(t *testing.T) {
	tests := []struct {
		name       string
		src, dst   string
		local      string
		wantFolder string
		wantName   string
	}{
		{"top level", "/src", "/cloud", "/src/a.txt", "/cloud", "a.txt"},
		{"nested", "/src", "/cloud", "/src/photos/2026/b.jpg", "/cloud/photos/2026", "b.jpg"},
		{"trailing slash roots", "/src/", "/cloud/", "/src/a.txt", "/cloud", "a.txt"},
		{"duplicate separators in destination", "/src", "//cloud//inbox", "/src/a.txt", "/cloud/inbox", "a.txt"},
		{"backslash destination", "/src", `\cloud\inbox`, "/src/x/a.txt", "/cloud/inbox/x", "a.txt"},
		{"drive root destination", "/src", "/", "/src/a.txt", "/", "a.txt"},
		{"empty destination", "/src", "", "/src/d/a.txt", "/d", "a.txt"},
		{"nfc normalized", "/src", "/cloud", "/src/café.txt", "/cloud", "café.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			folder, name, err := MapDestination(
				filepath.FromSlash(tt.src), tt.dst, filepath.FromSlash(tt.local))
			require.NoError(t, err)
			assert.Equal(t, tt.wantFolder, folder)
			assert.Equal(t, tt.wantName, name)
		})
	}
}

func TestMapDestination_OutsideRoot(t *testing.T) {
	for _, local := range []string{"/other/a.txt", "/src", "/"} {
		_, _, err := MapDestination("/src", "/cloud", filepath.FromSlash(local))
		assert.Error(t, err, local)
	}
}

func TestJoinRemote(t *testing.T) {
	assert.Equal(t, "/", joinRemote("", ""))
	assert.Equal(t, "/a/b", joinRemote("/a/", "/b/"))
	assert.Equal(t, "/a/b/c", joinRemote(`a\b`, "c"))
}
