package watcher

import (
	"path"
	"strings"
)

// alwaysExcludedSuffixes are in-progress or scratch files that must never be
// uploaded.
var alwaysExcludedSuffixes = []string{".partial", ".tmp", ".swp", ".crdownload"}

// Filter decides which names the watcher ignores.
type Filter struct {
	// SkipFiles are case-insensitive glob patterns matched against the file
	// name, e.g. "*.bak".
	SkipFiles []string
	// SkipDotfiles excludes files and directories whose name starts with ".".
	SkipDotfiles bool
}

// Excluded reports whether name is filtered out. isDir suppresses SkipFiles,
// which applies to files only.
func (f Filter) Excluded(name string, isDir bool) bool {
	if isAlwaysExcluded(name) {
		return true
	}

	if f.SkipDotfiles && strings.HasPrefix(name, ".") {
		return true
	}

	if isDir {
		return false
	}

	lower := strings.ToLower(name)

	for _, pattern := range f.SkipFiles {
		if matched, err := path.Match(strings.ToLower(pattern), lower); err == nil && matched {
			return true
		}
	}

	return false
}

// isAlwaysExcluded matches partial downloads, editor swap files and backup
// files (~name) regardless of configuration.
func isAlwaysExcluded(name string) bool {
	lower := strings.ToLower(name)

	for _, ext := range alwaysExcludedSuffixes {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}

	return strings.HasPrefix(name, "~") || strings.HasPrefix(name, ".~")
}
