package process

import (
	"strings"
	"unicode/utf8"

	"github.com/buildkite/shellwords"
)

// FormatCommand formats a command and its arguments for human reading. Long
// or multi-line arguments are shortened, and anything a shell would split is
// quoted.
func FormatCommand(name string, args []string) string {
	s := make([]string, 0, len(args)+1)
	s = append(s, shellwords.Quote(name))

	for _, a := range args {
		a = strings.ReplaceAll(a, "\n", " ")
		s = append(s, shellwords.Quote(truncate(a, 40)))
	}

	return strings.Join(s, " ")
}

func truncate(s string, i int) string {
	if len(s) <= i {
		return s
	}

	// back up to a rune boundary
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}

	return s[:i] + "..."
}
