package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// VirtualScheme prefixes every virtual document path.
const VirtualScheme = "qmd://"

// HashContent returns the SHA-256 of a document body as lowercase hex.
// Hashing is done on the exact byte content, no normalization.
func HashContent(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

// DocidFor derives the stable short id for a document from its catalog
// identity, not its content, so the docid survives edits.
func DocidFor(collection, path string) string {
	sum := sha256.Sum256([]byte(collection + "/" + path))
	return "#" + hex.EncodeToString(sum[:4])
}

var docidPattern = regexp.MustCompile(`^#[0-9a-f]{8}$`)

// IsDocid reports whether s looks like a short document id.
func IsDocid(s string) bool {
	return docidPattern.MatchString(s)
}

// IsVirtualPath reports whether s is a qmd:// reference.
func IsVirtualPath(s string) bool {
	return strings.HasPrefix(s, VirtualScheme)
}

// ParseVirtualPath splits "qmd://collection/path" into its parts.
// The path part may be empty (a bare collection reference).
func ParseVirtualPath(s string) (collection, path string, ok bool) {
	if !IsVirtualPath(s) {
		return "", "", false
	}
	rest := strings.TrimPrefix(s, VirtualScheme)
	if rest == "" {
		return "", "", false
	}
	collection, path, _ = strings.Cut(rest, "/")
	return collection, path, true
}

var (
	handelizeInvalid  = regexp.MustCompile(`[^a-z0-9./-]+`)
	handelizeCollapse = regexp.MustCompile(`-{2,}`)
)

// Handelize normalizes a name into a lowercase, filesystem- and
// URL-safe handle. Slashes and dots are preserved so relative paths
// keep their shape; everything else unsafe becomes a dash.
func Handelize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = handelizeInvalid.ReplaceAllString(s, "-")
	s = handelizeCollapse.ReplaceAllString(s, "-")

	parts := strings.Split(s, "/")
	for i, p := range parts {
		parts[i] = strings.Trim(p, "-")
	}
	return strings.Trim(strings.Join(parts, "/"), "/")
}
