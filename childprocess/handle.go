package childprocess

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os/exec"
	"sync/atomic"

	"github.com/buildkite/jsrt/internal/events"
	"github.com/buildkite/jsrt/internal/stream"
	"github.com/buildkite/jsrt/logger"
	"github.com/buildkite/jsrt/process"
	"github.com/dop251/goja"
	"github.com/google/uuid"
)

// ChildProcess is the script's handle on one spawned child. The streams
// and listener registry exist before the child is started; pid is only set
// once it has been.
type ChildProcess struct {
	id     string
	module *Module
	vm     *goja.Runtime
	logger logger.Logger

	emitter *events.Emitter
	stdin   *stream.Writable
	stdout  *stream.Readable
	stderr  *stream.Readable

	command process.Command
	file    string
	args    []string

	pid    atomic.Pointer[int]
	kill   atomic.Pointer[process.KillSender]
	proc   atomic.Pointer[process.Process]
	killed atomic.Bool

	// exited is closed once the child has been reaped and its output
	// drained, or straight away if it never started.
	exited chan struct{}

	// Only touched on the loop goroutine
	outcome *process.ExitOutcome

	// Set by execFile
	buffered   bool
	stdoutBuf  *process.Buffer
	stderrBuf  *process.Buffer
	onComplete func(vm *goja.Runtime, outcome process.ExitOutcome) error
	onFailure  func(vm *goja.Runtime, err goja.Value) error
}

func (m *Module) newChildProcess(vm *goja.Runtime, inv invocation, setup func(*ChildProcess)) *ChildProcess {
	id := uuid.NewString()

	cp := &ChildProcess{
		id:      id,
		module:  m,
		vm:      vm,
		logger:  m.logger.WithFields(logger.StringField("id", id)),
		command: process.NewCommand(inv.command, inv.args, inv.opts),
		file:    inv.command,
		args:    append([]string{inv.command}, inv.args...),
		exited:  make(chan struct{}),
	}
	if setup != nil {
		setup(cp)
	}

	obj := vm.NewObject()
	cp.emitter = events.New(vm, obj)

	var stdin, stdout, stderr goja.Value = goja.Null(), goja.Null(), goja.Null()
	if inv.opts.Stdio[0].Kind == process.StdioPipe {
		cp.stdin = stream.NewWritable(m.loop, cp.logger)
		stdin = cp.stdin.Object()
	}
	if inv.opts.Stdio[1].Kind == process.StdioPipe {
		cp.stdout = stream.NewReadable(m.loop)
		stdout = cp.stdout.Object()
	}
	if inv.opts.Stdio[2].Kind == process.StdioPipe {
		cp.stderr = stream.NewReadable(m.loop)
		stderr = cp.stderr.Object()
	}

	obj.Set("stdin", stdin)                   //nolint:errcheck // plain objects accept any key
	obj.Set("stdout", stdout)                 //nolint:errcheck // plain objects accept any key
	obj.Set("stderr", stderr)                 //nolint:errcheck // plain objects accept any key
	obj.Set("spawnfile", cp.file)             //nolint:errcheck // plain objects accept any key
	obj.Set("spawnargs", vm.ToValue(cp.args)) //nolint:errcheck // plain objects accept any key
	obj.Set("kill", cp.jsKill)                //nolint:errcheck // plain objects accept any key
	cp.getter("pid", cp.jsPid)
	cp.getter("killed", func() goja.Value { return vm.ToValue(cp.killed.Load()) })
	cp.getter("exitCode", func() goja.Value {
		if cp.outcome == nil || (cp.outcome.Signal != 0 && process.SignalsSupported) {
			return goja.Null()
		}
		return vm.ToValue(cp.outcome.Code)
	})
	cp.getter("signalCode", func() goja.Value {
		if cp.outcome == nil || cp.outcome.SignalName() == "" {
			return goja.Null()
		}
		return vm.ToValue(cp.outcome.SignalName())
	})

	return cp
}

func (cp *ChildProcess) getter(name string, fn func() goja.Value) {
	cp.Object().DefineAccessorProperty(name, cp.vm.ToValue(fn), nil, goja.FLAG_FALSE, goja.FLAG_TRUE) //nolint:errcheck // plain objects accept any key
}

// Object returns the script object for the child.
func (cp *ChildProcess) Object() *goja.Object {
	return cp.emitter.Object()
}

// Pid returns the child's process id once it has started.
func (cp *ChildProcess) Pid() (int, bool) {
	if pid := cp.pid.Load(); pid != nil {
		return *pid, true
	}
	return 0, false
}

// start spawns the child and hands it to a supervising goroutine. Spawn
// failures are reported asynchronously through the 'error' event.
func (m *Module) start(cp *ChildProcess) {
	proc, err := process.Start(context.Background(), cp.logger, cp.command)
	if err != nil {
		spawnFailures.Inc()
		cp.logger.Debug("[ChildProcess] %v", err)
		close(cp.exited)

		m.loop.Schedule(func(vm *goja.Runtime) error {
			return cp.spawnFailed(vm, err)
		})
		return
	}

	childrenSpawned.Inc()

	sender, receiver := process.NewKillChannel()
	cp.kill.Store(sender)
	cp.proc.Store(proc)
	pid := proc.Pid
	cp.pid.CompareAndSwap(nil, &pid)
	cp.logger = cp.logger.WithFields(logger.IntField("pid", pid))

	if cp.stdin != nil && proc.Stdin != nil {
		cp.stdin.Attach(proc.Stdin)
	}

	m.track(cp)
	m.loop.Ref()

	go cp.supervise(proc, receiver)
}

// supervise runs for the life of the child. It reports the exit, waits for
// both output pipes to drain, and only then reports the close.
func (cp *ChildProcess) supervise(proc *process.Process, rx *process.KillReceiver) {
	loop := cp.module.loop

	stdoutDone := process.Pump(cp.logger, "stdout", proc.Stdout, cp.outputWriter(cp.stdout, "stdout"), cp.stdoutBuf)
	stderrDone := process.Pump(cp.logger, "stderr", proc.Stderr, cp.outputWriter(cp.stderr, "stderr"), cp.stderrBuf)

	outcome, err := proc.Supervise(rx)
	if err != nil {
		cp.logger.WithFields(logger.ErrorField(err)).Error("[ChildProcess] Supervision failed")
		if terr := proc.Terminate(); terr != nil {
			cp.logger.Warn("[ChildProcess] %v", terr)
		}
		<-stdoutDone
		<-stderrDone
		close(cp.exited)

		loop.Schedule(func(vm *goja.Runtime) error {
			defer cp.release()
			if endErr := cp.endStreams(); endErr != nil {
				return endErr
			}
			return cp.emitError(vm, newError(vm, err.Error()), err)
		})
		return
	}

	childrenExited.WithLabelValues(outcome.State.String()).Inc()

	loop.Schedule(func(vm *goja.Runtime) error {
		return cp.exit(vm, outcome)
	})

	<-stdoutDone
	<-stderrDone
	close(cp.exited)

	loop.Schedule(func(vm *goja.Runtime) error {
		defer cp.release()
		return cp.close(vm, outcome)
	})
}

func (cp *ChildProcess) outputWriter(r *stream.Readable, name string) io.Writer {
	cw := countingWriter{c: bytesPumped.WithLabelValues(name)}
	if r != nil {
		cw.w = r.Writer()
	}
	return cw
}

// release drops the loop reference and registry entry held since start.
func (cp *ChildProcess) release() {
	cp.module.untrack(cp)
	cp.module.loop.Unref()
}

func (cp *ChildProcess) exit(vm *goja.Runtime, outcome process.ExitOutcome) error {
	cp.outcome = &outcome
	_, err := cp.emitter.Emit("exit", vm.ToValue(outcome.Code), cp.signalValue(outcome))
	return err
}

func (cp *ChildProcess) close(vm *goja.Runtime, outcome process.ExitOutcome) error {
	if err := cp.endStreams(); err != nil {
		return err
	}

	if _, err := cp.emitter.Emit("close", vm.ToValue(outcome.Code), cp.signalValue(outcome)); err != nil {
		return err
	}

	if cp.onComplete != nil {
		return cp.onComplete(vm, outcome)
	}
	return nil
}

// endStreams ends stdin, which lets its feeder drop the loop reference, and
// then the output streams.
func (cp *ChildProcess) endStreams() error {
	if cp.stdin != nil {
		cp.stdin.End()
	}
	for _, r := range []*stream.Readable{cp.stdout, cp.stderr} {
		if r == nil {
			continue
		}
		if err := r.End(); err != nil {
			return err
		}
	}
	return nil
}

func (cp *ChildProcess) spawnFailed(vm *goja.Runtime, err error) error {
	jsErr := newError(vm, err.Error())
	jsErr.Set("path", cp.command.Name)          //nolint:errcheck // plain objects accept any key
	jsErr.Set("spawnargs", vm.ToValue(cp.args)) //nolint:errcheck // plain objects accept any key
	if code := errorCode(err); code != "" {
		jsErr.Set("code", code) //nolint:errcheck // plain objects accept any key
	}

	if cp.buffered {
		if _, emitErr := cp.emitter.Emit("error", jsErr); emitErr != nil {
			return emitErr
		}
		return cp.onFailure(vm, jsErr)
	}
	return cp.emitError(vm, jsErr, err)
}

// emitError emits 'error'. Without a listener the error is unhandled and
// ends the script run.
func (cp *ChildProcess) emitError(vm *goja.Runtime, jsErr *goja.Object, cause error) error {
	if cp.emitter.ListenerCount("error") == 0 {
		return fmt.Errorf("unhandled 'error' event: %w", cause)
	}
	_, err := cp.emitter.Emit("error", jsErr)
	return err
}

// signalValue is the signal argument of 'exit' and 'close', undefined when
// the child wasn't stopped by one.
func (cp *ChildProcess) signalValue(outcome process.ExitOutcome) goja.Value {
	if name := outcome.SignalName(); name != "" {
		return cp.vm.ToValue(name)
	}
	return goja.Undefined()
}

// terminate force kills the child from any goroutine, through the kill
// channel if script hasn't used it yet.
func (cp *ChildProcess) terminate() {
	if sender := cp.kill.Swap(nil); sender != nil && sender.Send(process.KillRequest{Force: true}) {
		return
	}
	if proc := cp.proc.Load(); proc != nil {
		if err := proc.Terminate(); err != nil {
			cp.logger.Warn("[ChildProcess] %v", err)
		}
	}
}

func (cp *ChildProcess) jsPid() goja.Value {
	if pid, ok := cp.Pid(); ok {
		return cp.vm.ToValue(pid)
	}
	return goja.Undefined()
}

func (cp *ChildProcess) jsKill(call goja.FunctionCall) goja.Value {
	req := killRequest(call.Argument(0))

	sender := cp.kill.Swap(nil)
	if sender == nil {
		return cp.vm.ToValue(false)
	}

	ok := sender.Send(req)
	if ok {
		cp.killed.Store(true)
		killsSent.Inc()
		cp.logger.Debug("[ChildProcess] Kill requested (signal=%s force=%t)", req.Signal, req.Force)
	}
	return cp.vm.ToValue(ok)
}

// killRequest maps kill()'s argument to a request. No argument means the
// default signal. A name we don't know, a number that isn't a whole finite
// signal number, or anything else forces termination. So does every request
// where signals aren't supported.
func killRequest(v goja.Value) process.KillRequest {
	req := process.KillRequest{Force: true}

	switch sig := exported(v).(type) {
	case nil:
		req = process.KillRequest{Signal: process.DefaultSignal}
	case int64:
		req = process.KillRequest{Signal: process.Signal(sig)}
	case float64:
		if !math.IsNaN(sig) && !math.IsInf(sig, 0) && sig == math.Trunc(sig) {
			req = process.KillRequest{Signal: process.Signal(int(sig))}
		}
	case string:
		if s, ok := process.ParseSignal(sig); ok {
			req = process.KillRequest{Signal: s}
		}
	}

	if !process.SignalsSupported {
		req.Force = true
	}
	return req
}

// errorCode returns the node style code for common spawn failures.
func errorCode(err error) string {
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, exec.ErrNotFound):
		return "ENOENT"
	case errors.Is(err, fs.ErrPermission):
		return "EACCES"
	}
	return ""
}
