//go:build windows

package process

import (
	"errors"
	"os"
)

// SignalsSupported reports whether kill requests can carry a signal. Where
// it is false every kill request terminates the child outright.
const SignalsSupported = false

// DefaultSignal is sent by kill when the caller doesn't name one.
const DefaultSignal = SIGKILL

func platformSignalName(Signal) string {
	return ""
}

func signalProcessGroup(int, Signal) error {
	return errors.New("signals are not supported on windows")
}

// Windows has no signal names to report, so every exit reports SIGKILL.
func exitSignal(*os.ProcessState) Signal {
	return SIGKILL
}

func GetPgid(int) (int, error) {
	return 0, errors.New("process groups are not supported on windows")
}
