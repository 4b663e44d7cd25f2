package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
)

// ParseSize converts a human-readable size string to bytes. Both SI (KB, MB)
// and IEC (KiB, MiB) suffixes are accepted. Empty string and "0" return 0.
// A bare number is treated as raw bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}

	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("invalid size %q: must be non-negative", s)
	}

	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}

	if n > math.MaxInt64 {
		return 0, fmt.Errorf("invalid size %q: too large", s)
	}

	return int64(n), nil
}

// ParseBandwidth parses a rate such as "5MB/s" or "1MiB" into bytes per
// second. "0" and the empty string mean unlimited.
func ParseBandwidth(s string) (int64, error) {
	normalized := strings.TrimSpace(s)
	normalized = strings.TrimSuffix(normalized, "/s")

	n, err := ParseSize(normalized)
	if err != nil {
		return 0, fmt.Errorf("invalid bandwidth %q: %w", s, err)
	}

	return n, nil
}
