package childprocess

import (
	"strings"

	"github.com/buildkite/jsrt/process"
	"github.com/dop251/goja"
)

// jsExecFile runs a command like spawn, collects everything it writes and
// calls back once it has closed:
//
//	callback(null, stdout, "")     on exit code 0 with nothing on stderr
//	callback(error, "", stderr)    otherwise
//	callback(spawnError, "", "")   if it never started
//
// A failure to start is also emitted as 'error', but is never treated as
// unhandled.
func (m *Module) jsExecFile(call goja.FunctionCall, vm *goja.Runtime) goja.Value {
	inv, err := parseArgs(call, true)
	if err != nil {
		panic(vm.NewTypeError(err.Error()))
	}

	cp := m.newChildProcess(vm, inv, func(cp *ChildProcess) {
		cp.buffered = true
		cp.stdoutBuf = &process.Buffer{}
		cp.stderrBuf = &process.Buffer{}

		cp.onComplete = func(vm *goja.Runtime, outcome process.ExitOutcome) error {
			stdout, stderr := cp.stdoutBuf.String(), cp.stderrBuf.String()

			if outcome.Code == 0 && stderr == "" {
				_, err := inv.callback(goja.Undefined(), goja.Null(), vm.ToValue(stdout), vm.ToValue(""))
				return err
			}

			_, err := inv.callback(goja.Undefined(), cp.commandError(vm, inv, outcome, stderr), vm.ToValue(""), vm.ToValue(stderr))
			return err
		}

		cp.onFailure = func(vm *goja.Runtime, spawnErr goja.Value) error {
			_, err := inv.callback(goja.Undefined(), spawnErr, vm.ToValue(""), vm.ToValue(""))
			return err
		}
	})

	m.start(cp)
	return cp.Object()
}

// commandError describes a command that ran but didn't succeed.
func (cp *ChildProcess) commandError(vm *goja.Runtime, inv invocation, outcome process.ExitOutcome, stderr string) *goja.Object {
	cmd := inv.command + " " + strings.Join(inv.args, " ")

	err := newError(vm, "Command failed: "+cmd+"\n"+stderr)
	err.Set("code", outcome.Code)              //nolint:errcheck // plain objects accept any key
	err.Set("cmd", cmd)                        //nolint:errcheck // plain objects accept any key
	err.Set("killed", cp.killed.Load())        //nolint:errcheck // plain objects accept any key
	err.Set("signal", cp.signalValue(outcome)) //nolint:errcheck // plain objects accept any key
	return err
}
