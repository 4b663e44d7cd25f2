package watcher

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MapDestination maps a local file under sourceRoot to its remote folder and
// file name under destinationRoot. The relative directory is kept; separators
// are normalized to single forward slashes and names are NFC-normalized so
// decomposed macOS names match what other clients create.
func MapDestination(sourceRoot, destinationRoot, localPath string) (folder, name string, err error) {
	rel, err := filepath.Rel(sourceRoot, localPath)
	if err != nil {
		return "", "", fmt.Errorf("watcher: %s is not under %s: %w", localPath, sourceRoot, err)
	}

	rel = normalizeSeparators(filepath.ToSlash(rel))
	if rel == "" || rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", "", fmt.Errorf("watcher: %s is not under %s", localPath, sourceRoot)
	}

	rel = norm.NFC.String(rel)

	dir, name := path.Split(rel)

	return joinRemote(destinationRoot, dir), name, nil
}

// joinRemote joins remote path parts into an absolute slash path with no
// duplicate or trailing separators.
func joinRemote(parts ...string) string {
	joined := normalizeSeparators(strings.Join(parts, "/"))
	joined = strings.Trim(joined, "/")

	if joined == "" {
		return "/"
	}

	return "/" + joined
}

// normalizeSeparators converts backslashes to forward slashes and collapses
// runs of separators.
func normalizeSeparators(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")

	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}

	return p
}
