//go:build windows

package process

import (
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/windows"
)

func setupSysProcAttr(cmd *exec.Cmd, c Command) {
	if !c.WindowsVerbatimArguments {
		return
	}

	// CmdLine replaces the whole command line, program name included
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CmdLine: syscall.EscapeArg(c.Name) + " " + strings.Join(c.Args, " "),
	}
}

// dupFD duplicates the handle fd so the child gets its own copy and the
// caller's handle is left alone.
func dupFD(fd int) (*os.File, error) {
	proc := windows.CurrentProcess()

	var h windows.Handle
	err := windows.DuplicateHandle(proc, windows.Handle(fd), proc, &h, 0, false, windows.DUPLICATE_SAME_ACCESS)
	if err != nil {
		return nil, &os.SyscallError{Syscall: "DuplicateHandle", Err: err}
	}
	return os.NewFile(uintptr(h), "handle"+strconv.Itoa(fd)), nil
}
