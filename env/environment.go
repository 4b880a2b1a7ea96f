// Package env holds the environment a child process is given.
package env

import (
	"os"
	"runtime"
	"slices"
	"strings"

	"github.com/puzpuzpuz/xsync/v2"
)

// Environment is a set of environment variables. On Windows keys are
// compared without regard to case, so PATH and Path are the same variable.
type Environment struct {
	vars *xsync.MapOf[string, string]
}

func newWithLength(length int) *Environment {
	return &Environment{vars: xsync.NewMapOfPresized[string](length)}
}

// FromMap builds an environment from a spawn option's env object.
func FromMap(m map[string]string) *Environment {
	e := newWithLength(len(m))
	for k, v := range m {
		e.Set(k, v)
	}
	return e
}

// FromSlice builds an environment from KEY=VALUE entries. Malformed
// entries are skipped.
func FromSlice(s []string) *Environment {
	e := newWithLength(len(s))
	for _, l := range s {
		if k, v, ok := Split(l); ok {
			e.Set(k, v)
		}
	}
	return e
}

// FromOS captures the environment of the current process.
func FromOS() *Environment {
	return FromSlice(os.Environ())
}

// Split splits "name=value" at the first '='. An entry with no name, such
// as the "=C:=C:\" entries Windows creates, isn't ok.
func Split(l string) (name, value string, ok bool) {
	name, value, found := strings.Cut(l, "=")
	if !found || name == "" {
		return "", "", false
	}
	return name, value, true
}

func (e *Environment) Get(key string) (string, bool) {
	return e.vars.Load(normalizeKeyName(key))
}

func (e *Environment) Set(key, value string) {
	e.vars.Store(normalizeKeyName(key), value)
}

// ToSlice returns the environment as sorted KEY=VALUE entries, ready for
// exec.Cmd.Env.
func (e *Environment) ToSlice() []string {
	s := make([]string, 0, e.vars.Size())
	e.vars.Range(func(k, v string) bool {
		s = append(s, k+"="+v)
		return true
	})
	slices.Sort(s)
	return s
}

func normalizeKeyName(key string) string {
	if runtime.GOOS == "windows" {
		return strings.ToUpper(key)
	}
	return key
}
