package process

import "fmt"

// ArgumentError is returned when a caller passes a value of the wrong shape.
// Nothing has been spawned when one is returned.
type ArgumentError struct {
	Msg string
}

func (e *ArgumentError) Error() string {
	return e.Msg
}

// SpawnError is returned when the operating system refuses to start a child.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("Child process failed to spawn %q. %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// SignalError is returned by Supervise when a signal couldn't be delivered
// to a live process group.
type SignalError struct {
	Signal Signal
	Pid    int
	Err    error
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("Failed to send signal %d to process %d: %v", int(e.Signal), e.Pid, e.Err)
}

func (e *SignalError) Unwrap() error {
	return e.Err
}
