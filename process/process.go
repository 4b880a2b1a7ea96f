// Package process starts and supervises operating system child processes:
// stdio routing, command building, kill delivery, and output pumping.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/buildkite/jsrt/logger"
	"github.com/buildkite/roko"
)

// How long to wait between spawn attempts that failed because the
// executable was still open for writing.
const spawnRetryInterval = 100 * time.Millisecond

// Process is a started child. Stdin, Stdout and Stderr are the parent ends
// of the pipes requested by the command's Stdio, and are nil for streams
// that weren't piped. The caller owns them and must close them.
type Process struct {
	Pid int

	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	Stderr io.ReadCloser

	command Command
	cmd     *exec.Cmd
	logger  logger.Logger
}

// Start spawns the command. The returned error is a *SpawnError when the
// operating system couldn't start the child.
func Start(ctx context.Context, l logger.Logger, c Command) (*Process, error) {
	path, err := c.resolve()
	if err != nil {
		return nil, &SpawnError{Command: c.Name, Err: err}
	}

	p := &Process{
		command: c,
		logger:  l.WithFields(logger.StringField("command", c.Name)),
	}

	// A freshly written executable can briefly be held open by whatever
	// wrote it, so "text file busy" is worth another go
	err = roko.NewRetrier(
		roko.WithMaxAttempts(3),
		roko.WithStrategy(roko.Constant(spawnRetryInterval)),
	).DoWithContext(ctx, func(r *roko.Retrier) error {
		err := p.start(path)
		if err != nil && !errors.Is(err, syscall.ETXTBSY) {
			r.Break()
		}
		return err
	})
	if err != nil {
		return nil, &SpawnError{Command: c.Name, Err: err}
	}

	p.logger = p.logger.WithFields(logger.IntField("pid", p.Pid))
	p.logger.Debug("[Process] Started %s", c)

	return p, nil
}

// Terminate kills the child outright, bypassing any kill channel. It is
// not an error if the child has already exited.
func (p *Process) Terminate() error {
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("terminating process %d: %w", p.Pid, err)
	}
	return nil
}

// resolve finds the executable using the PATH the child will see.
func (c Command) resolve() (string, error) {
	name := c.Name
	if c.Dir != "" && strings.ContainsAny(name, `/\`) && !filepath.IsAbs(name) {
		name = filepath.Join(c.Dir, name)
	}

	path, err := LookPath(name, c.lookupEnv("PATH"), c.lookupEnv("PATHEXT"))
	if err != nil {
		return "", err
	}

	// exec treats relative paths as relative to Dir, but we searched
	// relative to our own working directory
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	return path, nil
}

func (p *Process) start(path string) (err error) {
	cmd := &exec.Cmd{
		Path: path,
		Args: append([]string{p.command.Name}, p.command.Args...),
		Env:  p.command.Env,
		Dir:  p.command.Dir,
	}

	var ends [3]stdioEnds
	defer func() {
		for _, e := range ends {
			e.closeChild()
			if err != nil {
				e.closeParent()
			}
		}
	}()

	for i, mode := range p.command.Stdio {
		if ends[i], err = openStdio(i, mode); err != nil {
			return fmt.Errorf("setting up stdio %d (%s): %w", i, mode, err)
		}
	}

	// Leaving a stream nil makes exec connect it to the null device
	if ends[0].child != nil {
		cmd.Stdin = ends[0].child
	}
	if ends[1].child != nil {
		cmd.Stdout = ends[1].child
	}
	if ends[2].child != nil {
		cmd.Stderr = ends[2].child
	}

	setupSysProcAttr(cmd, p.command)

	if err := cmd.Start(); err != nil {
		return err
	}

	p.cmd = cmd
	p.Pid = cmd.Process.Pid

	if ends[0].parent != nil {
		p.Stdin = ends[0].parent
	}
	if ends[1].parent != nil {
		p.Stdout = ends[1].parent
	}
	if ends[2].parent != nil {
		p.Stderr = ends[2].parent
	}

	return nil
}

// stdioEnds are the two sides of one standard stream. The child side is
// closed in the parent once the child has it; inherited streams are never
// closed.
type stdioEnds struct {
	child  *os.File
	parent *os.File
	owned  bool
}

func (e stdioEnds) closeChild() {
	if e.child != nil && e.owned {
		_ = e.child.Close()
	}
}

func (e stdioEnds) closeParent() {
	if e.parent != nil {
		_ = e.parent.Close()
	}
}

func openStdio(slot int, mode StdioMode) (stdioEnds, error) {
	switch mode.Kind {
	case StdioPipe:
		r, w, err := os.Pipe()
		if err != nil {
			return stdioEnds{}, err
		}
		if slot == 0 {
			return stdioEnds{child: r, parent: w, owned: true}, nil
		}
		return stdioEnds{child: w, parent: r, owned: true}, nil

	case StdioInherit:
		return stdioEnds{child: []*os.File{os.Stdin, os.Stdout, os.Stderr}[slot]}, nil

	case StdioFD:
		f, err := dupFD(mode.FD)
		if err != nil {
			return stdioEnds{}, err
		}
		return stdioEnds{child: f, owned: true}, nil
	}

	return stdioEnds{}, nil
}
