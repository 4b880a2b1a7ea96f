// Package stdin reports whether the process was given input on STDIN.
package stdin

import "os"

// IsReadable reports whether STDIN is a pipe or a redirected file. A
// terminal or the null device doesn't count.
func IsReadable() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}

	mode := stat.Mode()
	if mode&os.ModeCharDevice != 0 {
		return false
	}
	return mode&os.ModeNamedPipe != 0 || mode.IsRegular()
}
