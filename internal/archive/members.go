package archive

import (
	"fmt"
	"path"
	"strings"
)

const (
	subjectMarker = "sub-"
	sessionMarker = "ses-"
)

// normalizeMember strips "./" prefixes and trailing slashes and rejects
// names that climb out of the archive root.
func normalizeMember(name string) (string, error) {
	trimmed := strings.TrimRight(name, "/")
	for strings.HasPrefix(trimmed, "./") {
		trimmed = strings.TrimPrefix(trimmed, "./")
	}
	if trimmed == "" || trimmed == "." {
		return "", nil
	}
	if strings.HasPrefix(trimmed, "/") {
		return "", fmt.Errorf("absolute member path %q", name)
	}
	cleaned := path.Clean(trimmed)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("member path %q escapes the archive root", name)
	}
	return cleaned, nil
}

// isSessionRoot matches .../sub-<id>/ses-<id>.
func isSessionRoot(name string) bool {
	segments := strings.Split(name, "/")
	if len(segments) < 2 {
		return false
	}
	return strings.HasPrefix(segments[len(segments)-1], sessionMarker) &&
		strings.HasPrefix(segments[len(segments)-2], subjectMarker)
}

// matchRoot returns the longest root that contains name, and name relative
// to it.
func matchRoot(name string, roots []string) (root, rel string, ok bool) {
	for _, r := range roots {
		prefix := r + "/"
		if strings.HasPrefix(name, prefix) && len(r) > len(root) {
			root, rel, ok = r, strings.TrimPrefix(name, prefix), true
		}
	}
	return root, rel, ok
}
