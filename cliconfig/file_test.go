package cliconfig

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestFileLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "jsrt.cfg")
	assert.NilError(t, os.WriteFile(path, []byte(`# A comment
debug=true

export log-level = info
log-format: json
prefix="[ci] \t"
dir='/tmp/my builds'
timeout=30s # half a minute
`), 0o600))

	f := File{Path: path}
	assert.Assert(t, f.Exists())
	assert.NilError(t, f.Load())

	assert.DeepEqual(t, f.Config, map[string]string{
		"debug":      "true",
		"log-level":  "info",
		"log-format": "json",
		"prefix":     "[ci] \t",
		"dir":        "/tmp/my builds",
		"timeout":    "30s",
	})
}

func TestFileLoadBadLine(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "jsrt.cfg")
	assert.NilError(t, os.WriteFile(path, []byte("debug=true\nllamas\n"), 0o600))

	f := File{Path: path}
	err := f.Load()
	assert.Check(t, is.ErrorContains(err, "parsing config line 2"))
	assert.Check(t, is.ErrorContains(err, `no = or : found`))
}

func TestFileExists(t *testing.T) {
	t.Parallel()

	f := File{Path: filepath.Join(t.TempDir(), "missing.cfg")}
	assert.Assert(t, !f.Exists())
}
