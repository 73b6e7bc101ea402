// Package markdown extracts the document title used in the catalog and
// search results.
package markdown

import (
	"path/filepath"
	"strings"
)

// ExtractTitle returns the document title: the first ATX heading, else the
// first non-empty line, else the base name of fallbackPath without its
// extension. It is a pure function of content (plus the fallback), so two
// documents with the same hash always extract the same title.
func ExtractTitle(content, fallbackPath string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			return strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		}
		// First non-empty line wins when there is no heading.
		return truncateTitle(trimmed)
	}

	base := filepath.Base(fallbackPath)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" || base == "." {
		return "Untitled"
	}
	return base
}

// maxTitleLen bounds titles extracted from body text rather than headings.
const maxTitleLen = 80

func truncateTitle(s string) string {
	if len(s) <= maxTitleLen {
		return s
	}
	cut := s[:maxTitleLen]
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "..."
}
