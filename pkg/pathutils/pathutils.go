// Package pathutils expands user supplied paths.
package pathutils

import (
	"os"
	"path/filepath"
	"strings"
)

// HomeDir returns the home directory of the current user, or "" when it is
// unknown.
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home
}

// ExpandHome converts a leading "~" of path to the home directory of the
// current user. Other paths, and "~user" forms, are returned unchanged.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home := HomeDir()
	if home == "" {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
}
