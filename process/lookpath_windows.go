//go:build windows

package process

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

func chkStat(file string) error {
	d, err := os.Stat(file)
	if err != nil {
		return err
	}
	if d.IsDir() {
		return os.ErrPermission
	}
	return nil
}

func hasExt(file string) bool {
	i := strings.LastIndex(file, ".")
	if i < 0 {
		return false
	}
	return strings.LastIndexAny(file, `:\/`) < i
}

func findExecutable(file string, exts []string) (string, error) {
	if len(exts) == 0 {
		return file, chkStat(file)
	}
	if hasExt(file) && chkStat(file) == nil {
		return file, nil
	}
	for _, e := range exts {
		if f := file + e; chkStat(f) == nil {
			return f, nil
		}
	}
	return "", os.ErrNotExist
}

func splitExtensions(fileExtensions string) []string {
	if fileExtensions == "" {
		return []string{".com", ".exe", ".bat", ".cmd"}
	}

	var exts []string
	for _, e := range strings.Split(strings.ToLower(fileExtensions), ";") {
		if e == "" {
			continue
		}
		if e[0] != '.' {
			e = "." + e
		}
		exts = append(exts, e)
	}
	return exts
}

// LookPath searches for an executable named file in the directories of
// path, which is a semicolon delimited list, trying each of the
// fileExtensions (PATHEXT) in turn. This differs from exec.LookPath in that
// the child's PATH is searched rather than ours.
func LookPath(file, path, fileExtensions string) (string, error) {
	exts := splitExtensions(fileExtensions)

	if strings.ContainsAny(file, `:\/`) {
		f, err := findExecutable(file, exts)
		if err != nil {
			return "", &exec.Error{Name: file, Err: err}
		}
		return f, nil
	}

	if f, err := findExecutable(filepath.Join(".", file), exts); err == nil {
		return f, nil
	}

	for _, dir := range filepath.SplitList(path) {
		if f, err := findExecutable(filepath.Join(dir, file), exts); err == nil {
			return f, nil
		}
	}

	return "", &exec.Error{Name: file, Err: exec.ErrNotFound}
}
