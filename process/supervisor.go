package process

import (
	"errors"
	"fmt"
	"os"
)

// State is where a supervised process is in its lifecycle.
type State int

const (
	StateRunning State = iota
	StateExited
	StateKilled
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateKilled:
		return "killed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ExitOutcome describes how a child ended. Code is 0 when the platform
// didn't report one, such as after a signal. Signal is 0 when the child
// wasn't ended by one.
type ExitOutcome struct {
	State  State
	Code   int
	Signal Signal
}

// SignalName returns the name of the terminating signal, or "" if there
// wasn't one.
func (o ExitOutcome) SignalName() string {
	if o.Signal == 0 {
		return ""
	}
	return o.Signal.String()
}

func (o ExitOutcome) String() string {
	if o.Signal != 0 {
		return fmt.Sprintf("%s (code %d, signal %s)", o.State, o.Code, o.Signal)
	}
	return fmt.Sprintf("%s (code %d)", o.State, o.Code)
}

// Supervise waits for the child to exit while serving kill requests from
// rx, and closes rx when it returns. A signal request is delivered to the
// child's process group and supervision carries on until the child exits. A
// forced request, or any request where signals aren't supported, terminates
// the child outright. The error is a *SignalError if a signal couldn't be
// delivered.
func (p *Process) Supervise(rx *KillReceiver) (ExitOutcome, error) {
	defer rx.Close()

	waited := make(chan error, 1)
	go func() {
		waited <- p.cmd.Wait()
	}()

	for {
		select {
		case err := <-waited:
			return p.outcome(StateExited, err)

		case req := <-rx.C():
			if req.Force || !SignalsSupported {
				p.logger.Debug("[Process] Terminating")
				if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
					p.logger.Warn("[Process] Failed to terminate: %v", err)
				}
				return p.outcome(StateKilled, <-waited)
			}

			p.logger.Debug("[Process] Sending signal %s to PGID: %d", req.Signal, p.Pid)
			if err := signalProcessGroup(p.Pid, req.Signal); err != nil {
				// The child may be gone already, in which case wait has
				// the real story
				select {
				case werr := <-waited:
					return p.outcome(StateExited, werr)
				default:
				}
				return ExitOutcome{}, &SignalError{Signal: req.Signal, Pid: p.Pid, Err: err}
			}
		}
	}
}

func (p *Process) outcome(state State, waitErr error) (ExitOutcome, error) {
	ps := p.cmd.ProcessState
	if ps == nil {
		return ExitOutcome{}, fmt.Errorf("waiting for process %d: %w", p.Pid, waitErr)
	}

	o := ExitOutcome{
		State:  state,
		Code:   ps.ExitCode(),
		Signal: exitSignal(ps),
	}
	if o.Code < 0 {
		o.Code = 0
	}

	p.logger.Debug("[Process] Finished: %s", o)
	return o, nil
}
