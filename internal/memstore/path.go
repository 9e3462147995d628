package memstore

import (
	"fmt"
	"strings"
	"time"
)

// ArchiveRoot is the reserved subtree for archived memories.
const ArchiveRoot = "archive"

// Normalize maps a user-supplied name onto the logical path form: no
// leading or trailing separator, no storage extension. A ".md" suffix is a
// storage detail of the backend and never part of the logical path.
func Normalize(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	path = strings.TrimSuffix(path, ".md")
	return path
}

// ValidatePath checks a normalized logical path: non-empty, `/`-separated,
// every segment a plain name.
func ValidatePath(path string) error {
	if path == "" {
		return &InvalidPathError{Path: path, Reason: "empty path"}
	}
	for _, seg := range strings.Split(path, "/") {
		switch {
		case seg == "":
			return &InvalidPathError{Path: path, Reason: "empty path segment"}
		case seg == "." || seg == "..":
			return &InvalidPathError{Path: path, Reason: "relative path segment"}
		case strings.ContainsAny(seg, "\\:*?\"<>|"):
			return &InvalidPathError{Path: path, Reason: fmt.Sprintf("reserved character in segment %q", seg)}
		}
	}
	return nil
}

// Base returns the leaf name of a path.
func Base(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Folder returns the folder prefix of a path, or "" for a root-level leaf.
func Folder(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[:i]
	}
	return ""
}

// ArchivePath derives the archive destination for a leaf name.
// Format: archive/[<category>/]<YYYYMMDD>_<leaf>[_<n>]
func ArchivePath(leaf string, day time.Time, category string, n int) string {
	name := fmt.Sprintf("%s_%s", day.Format("20060102"), leaf)
	if n > 0 {
		name = fmt.Sprintf("%s_%d", name, n)
	}
	if category != "" {
		return fmt.Sprintf("%s/%s/%s", ArchiveRoot, category, name)
	}
	return fmt.Sprintf("%s/%s", ArchiveRoot, name)
}
