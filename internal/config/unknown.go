package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys of each config section.
var knownKeys = map[string][]string{
	"source":      {"directory", "skip_files", "skip_dotfiles", "debounce"},
	"destination": {"root", "conflict_behavior"},
	"upload": {
		"delete_after_upload", "queue_capacity", "small_upload_threshold", "chunk_size",
		"workers", "bandwidth_limit", "open_retry_attempts", "open_retry_delay",
		"delete_retry_attempts", "delete_retry_delay", "restart_delay",
	},
	"auth": {
		"client_id", "client_secret", "tenant", "redirect_uri", "authorize_url", "token_url",
		"storage_scope", "prompt", "secrets_dir", "key_backend", "access_token_lifetime",
	},
	"api":     {"base_url", "upload_path"},
	"network": {"connect_timeout", "data_timeout", "user_agent"},
	"logging": {"log_level", "log_format", "log_file"},
}

// knownSections is the sorted list of section names. Sorted for
// deterministic suggestions when two candidates have the same edit distance.
var knownSections = func() []string {
	sections := make([]string, 0, len(knownKeys))
	for s := range knownKeys {
		sections = append(sections, s)
	}

	sort.Strings(sections)

	return sections
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key. An unknown
// section is reported once, not once per key inside it.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	reportedSections := make(map[string]bool)

	for _, key := range md.Undecoded() {
		section := key[0]

		if _, ok := knownKeys[section]; !ok {
			if reportedSections[section] {
				continue
			}

			reportedSections[section] = true
			errs = append(errs, unknownKeyError("section", section, "", knownSections))

			continue
		}

		if len(key) < 2 {
			continue
		}

		errs = append(errs, unknownKeyError("key", key[1], section, knownKeys[section]))
	}

	return errors.Join(errs...)
}

// unknownKeyError creates a descriptive error for an unknown name,
// suggesting the closest known one when it is near enough.
func unknownKeyError(kind, name, section string, known []string) error {
	qualified := name
	if section != "" {
		qualified = section + "." + name
	}

	if suggestion := closestMatch(name, known); suggestion != "" {
		if section != "" {
			suggestion = section + "." + suggestion
		}

		return fmt.Errorf("unknown config %s %q, did you mean %q?", kind, qualified, suggestion)
	}

	return fmt.Errorf("unknown config %s %q", kind, qualified)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	// Use single-row optimization to avoid allocating a full matrix.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = minOf(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}

// minOf returns the minimum of three integers.
func minOf(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}

	if c < m {
		m = c
	}

	return m
}
