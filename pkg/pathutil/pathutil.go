// Package pathutil provides the virtual-path primitives shared by every
// storage adapter. Paths are slash-delimited and provider independent; the
// same input must normalize identically regardless of which backend ends up
// storing the object, otherwise collision probing and listing diverge across
// providers.
package pathutil

import "strings"

// NormalizePath strips leading and trailing slashes and collapses repeated
// slashes. NormalizePath("/a//b/") == "a/b". The empty string stays empty.
func NormalizePath(p string) string {
	parts := strings.Split(p, "/")

	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}

	return strings.Join(kept, "/")
}

// JoinPath normalizes each part, drops empty ones and joins the rest with a
// single slash. JoinPath("a/", "", "b") == "a/b".
func JoinPath(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		normalized := NormalizePath(part)
		if normalized != "" {
			kept = append(kept, normalized)
		}
	}

	return strings.Join(kept, "/")
}

// ParsePath splits a full path into its folder and filename components at the
// last slash. A path without a slash is a bare filename; a trailing slash or
// the root yields an empty filename.
func ParsePath(full string) (folder, filename string) {
	idx := strings.LastIndex(full, "/")
	if idx < 0 {
		return "", full
	}

	return NormalizePath(full[:idx]), full[idx+1:]
}

// SplitPath returns the normalized segments of a path, root first. An empty
// or root path yields no segments.
func SplitPath(p string) []string {
	normalized := NormalizePath(p)
	if normalized == "" {
		return nil
	}

	return strings.Split(normalized, "/")
}
