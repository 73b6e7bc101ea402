package indexer

import (
	"path"
	"strings"
)

// Directory names never descended into during a walk.
var excludedDirs = map[string]bool{
	".git":         true,
	".svn":         true,
	".hg":          true,
	"node_modules": true,
	"target":       true,
	"dist":         true,
	"build":        true,
}

// shouldExcludeDir reports whether a directory is skipped entirely.
// Dot-directories are excluded wholesale; the explicit list catches
// common build and VCS trees.
func shouldExcludeDir(name string) bool {
	if excludedDirs[name] {
		return true
	}
	return strings.HasPrefix(name, ".") && name != "."
}

// matchGlob matches a slash-separated relative path against a glob
// pattern. Segments match with path.Match semantics (*, ?, character
// classes); a "**" segment matches any number of segments including
// none.
func matchGlob(pattern, relPath string) bool {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(relPath, "/"))
}

func matchSegments(pattern, segs []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			// Collapse consecutive ** segments
			for len(pattern) > 0 && pattern[0] == "**" {
				pattern = pattern[1:]
			}
			if len(pattern) == 0 {
				return true
			}
			for i := 0; i <= len(segs); i++ {
				if matchSegments(pattern, segs[i:]) {
					return true
				}
			}
			return false
		}

		if len(segs) == 0 {
			return false
		}
		ok, err := path.Match(pattern[0], segs[0])
		if err != nil || !ok {
			return false
		}
		pattern = pattern[1:]
		segs = segs[1:]
	}
	return len(segs) == 0
}
