//go:build !windows

package process

import (
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

func setupSysProcAttr(cmd *exec.Cmd, c Command) {
	// Each child leads its own process group so signals reach anything it
	// starts as well
	attr := &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}

	if c.UID != nil || c.GID != nil {
		cred := &syscall.Credential{
			Uid: uint32(os.Getuid()),
			Gid: uint32(os.Getgid()),
			// Only root may call setgroups
			NoSetGroups: os.Getuid() != 0,
		}
		if c.UID != nil {
			cred.Uid = uint32(*c.UID)
		}
		if c.GID != nil {
			cred.Gid = uint32(*c.GID)
		}
		attr.Credential = cred
	}

	cmd.SysProcAttr = attr
}

// dupFD duplicates fd so the child gets its own copy and the caller's
// descriptor is left alone.
func dupFD(fd int) (*os.File, error) {
	nfd, err := unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return nil, &os.SyscallError{Syscall: "fcntl", Err: err}
	}
	return os.NewFile(uintptr(nfd), "fd"+strconv.Itoa(fd)), nil
}
