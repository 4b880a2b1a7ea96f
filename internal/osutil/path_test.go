package osutil

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
)

func TestNormalizeFilePath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	wd, err := os.Getwd()
	assert.NilError(t, err)

	tests := []struct {
		path, want string
	}{
		{"", ""},
		{"~", home},
		{"~/config.js", filepath.Join(home, "config.js")},
		{"$HOME/.jsrt/jsrt.cfg", filepath.Join(home, ".jsrt", "jsrt.cfg")},
		{"scripts/run.js", filepath.Join(wd, "scripts", "run.js")},
		{filepath.Join(home, "a", "..", "b"), filepath.Join(home, "b")},
	}

	for _, test := range tests {
		got, err := NormalizeFilePath(test.path)
		assert.NilError(t, err)
		assert.Equal(t, got, test.want, "NormalizeFilePath(%q)", test.path)
	}
}

func TestUserHomeDirPrefersHOME(t *testing.T) {
	t.Setenv("HOME", "home")
	t.Setenv("USERPROFILE", "userProfile")

	got, err := UserHomeDir()
	assert.NilError(t, err)
	assert.Equal(t, got, "home")
}

func TestFileExists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "exists")
	assert.NilError(t, os.WriteFile(path, nil, 0o600))

	assert.Assert(t, FileExists(path))
	assert.Assert(t, !FileExists(filepath.Join(dir, "missing")))
}
