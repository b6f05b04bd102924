package parse

import (
	"path/filepath"
	"strings"
)

// DecodeProjectName turns an encoded project directory name back into the
// workspace path it was derived from:
// "-Users-me-dev-app" -> "/Users/me/dev/app".
func DecodeProjectName(projectID string) string {
	if strings.HasPrefix(projectID, "-") {
		return "/" + strings.ReplaceAll(projectID[1:], "-", "/")
	}
	return projectID
}

// SessionIDFromPath returns the file name of a transcript without its extension.
func SessionIDFromPath(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
