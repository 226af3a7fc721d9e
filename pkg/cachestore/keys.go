package cachestore

import (
	"fmt"
	"strings"
)

// NamespaceBase is the storage prefix shared by every dataset version.
const NamespaceBase = "btcReport"

// ManifestKey holds the single cached manifest.
const ManifestKey = "manifest"

// Namespace returns the versioned prefix, e.g. "btcReport:v1".
func Namespace(version int) string {
	if version <= 0 {
		version = 1
	}
	return fmt.Sprintf("%s:v%d", NamespaceBase, version)
}

// DataKey returns the unprefixed key of one (currency, period) shard. Callers
// are expected to pass normalised identifiers; surrounding whitespace and case
// are still folded so "usd" and "USD" never produce two entries.
func DataKey(currency, period string) string {
	return formatKey("data", strings.ToUpper(currency), period)
}

func formatKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		clean := strings.TrimSpace(part)
		if clean == "" {
			continue
		}
		values = append(values, clean)
	}
	return strings.Join(values, ":")
}
