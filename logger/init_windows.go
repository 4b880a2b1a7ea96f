//go:build windows

package logger

import (
	"os"

	"golang.org/x/sys/windows"
)

// Windows 10 Build 16257 added support for ANSI color output if we enable them
func init() {
	var mode uint32
	console := windows.Handle(os.Stderr.Fd())

	if err := windows.GetConsoleMode(console, &mode); err != nil {
		return
	}

	// See https://docs.microsoft.com/en-us/windows/console/getconsolemode
	mode |= windows.ENABLE_VIRTUAL_TERMINAL_PROCESSING

	windowsColors = windows.SetConsoleMode(console, mode) == nil
}
