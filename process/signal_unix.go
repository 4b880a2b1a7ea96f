//go:build !windows

package process

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// SignalsSupported reports whether kill requests can carry a signal. Where
// it is false every kill request terminates the child outright.
const SignalsSupported = true

// DefaultSignal is sent by kill when the caller doesn't name one.
const DefaultSignal = SIGTERM

func platformSignalName(s Signal) string {
	return unix.SignalName(syscall.Signal(s))
}

// signalProcessGroup delivers sig to every process in the group led by pid.
func signalProcessGroup(pid int, sig Signal) error {
	return unix.Kill(-pid, syscall.Signal(sig))
}

func exitSignal(state *os.ProcessState) Signal {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return Signal(ws.Signal())
	}
	return 0
}

func GetPgid(pid int) (int, error) {
	return unix.Getpgid(pid)
}
