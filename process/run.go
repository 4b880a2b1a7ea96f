package process

import (
	"context"
	"io"

	"github.com/buildkite/jsrt/logger"
)

// Result is everything Run collected from a finished child.
type Result struct {
	ExitOutcome

	Stdout []byte
	Stderr []byte
}

// Run starts c with its stdin closed, collects whatever it writes to piped
// stdout and stderr, and waits for it to exit. Output is also copied to
// stdout and stderr as it arrives when they aren't nil. Cancelling ctx
// terminates the child.
func Run(ctx context.Context, l logger.Logger, c Command, stdout, stderr io.Writer) (Result, error) {
	p, err := Start(ctx, l, c)
	if err != nil {
		return Result{}, err
	}

	if p.Stdin != nil {
		_ = p.Stdin.Close()
	}

	var outBuf, errBuf Buffer
	stdoutDone := Pump(p.logger, "stdout", p.Stdout, stdout, &outBuf)
	stderrDone := Pump(p.logger, "stderr", p.Stderr, stderr, &errBuf)

	tx, rx := NewKillChannel()
	stop := context.AfterFunc(ctx, func() {
		tx.Send(KillRequest{Force: true})
	})
	defer stop()

	outcome, err := p.Supervise(rx)
	<-stdoutDone
	<-stderrDone
	if err != nil {
		return Result{}, err
	}

	return Result{
		ExitOutcome: outcome,
		Stdout:      outBuf.ReadAndTruncate(),
		Stderr:      errBuf.ReadAndTruncate(),
	}, nil
}
