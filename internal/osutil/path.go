// Package osutil holds small filesystem helpers shared by the CLI.
package osutil

import (
	"os"
	"path/filepath"
	"strings"
)

// UserHomeDir returns $HOME when it is set, falling back to
// os.UserHomeDir (USERPROFILE on windows).
func UserHomeDir() (string, error) {
	if h := os.Getenv("HOME"); h != "" {
		return h, nil
	}
	return os.UserHomeDir()
}

// NormalizeFilePath expands environment variables and a leading ~ to the
// home directory, then makes the path absolute. An empty path stays empty.
func NormalizeFilePath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	path = os.ExpandEnv(path)

	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		home, err := UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}

	return filepath.Abs(path)
}

// FileExists reports whether path can be stat'd. Any error counts as the
// file not being there.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
