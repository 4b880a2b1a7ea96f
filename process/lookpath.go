//go:build !windows

package process

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

func findExecutable(file string) error {
	d, err := os.Stat(file)
	if err != nil {
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0o111 != 0 {
		return nil
	}
	return os.ErrPermission
}

// LookPath searches for an executable named file in the directories of
// path, which is a colon delimited list. This differs from exec.LookPath in
// that the child's PATH is searched rather than ours. A file containing a
// slash is tried directly. fileExtensions is ignored outside windows.
func LookPath(file, path, fileExtensions string) (string, error) {
	if strings.Contains(file, "/") {
		if err := findExecutable(file); err != nil {
			return "", &exec.Error{Name: file, Err: err}
		}
		return file, nil
	}

	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			// Unix shell semantics: path element "" means "."
			dir = "."
		}
		candidate := filepath.Join(dir, file)
		if err := findExecutable(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", &exec.Error{Name: file, Err: exec.ErrNotFound}
}
