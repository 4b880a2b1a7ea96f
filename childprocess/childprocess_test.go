package childprocess_test

import (
	"context"
	"os"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/buildkite/jsrt/childprocess"
	"github.com/buildkite/jsrt/internal/eventloop"
	"github.com/buildkite/jsrt/logger"
	"github.com/dop251/goja"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const prelude = `
	var child_process = require("child_process");
	function helperOpts(mode, extra) {
		var opts = { env: { TEST_MAIN: mode } };
		for (var k in extra || {}) opts[k] = extra[k];
		return opts;
	}
	function errorFields(err) {
		if (err === null) return null;
		return { message: err.message, code: err.code, cmd: err.cmd, killed: err.killed, signal: err.signal };
	}
`

type harness struct {
	vm     *goja.Runtime
	loop   *eventloop.Loop
	module *childprocess.Module
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	vm := goja.New()
	loop := eventloop.New(vm)
	m := childprocess.New(logger.Discard, loop)

	// A tiny require() that only knows about child_process
	require.NoError(t, vm.Set("require", func(name string) goja.Value {
		if name != childprocess.ModuleName {
			panic(vm.NewTypeError("Cannot find module '" + name + "'"))
		}
		module := vm.NewObject()
		m.Require(vm, module)
		return module.Get("exports")
	}))
	require.NoError(t, vm.Set("helper", os.Args[0]))

	return &harness{vm: vm, loop: loop, module: m}
}

func (h *harness) run(t *testing.T, src string) error {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return h.loop.Run(ctx, func(vm *goja.Runtime) error {
		_, err := vm.RunString(prelude + src)
		return err
	})
}

// eval evaluates expr once the loop has finished.
func (h *harness) eval(t *testing.T, expr string) goja.Value {
	t.Helper()

	v, err := h.vm.RunString(expr)
	require.NoError(t, err)
	return v
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("relies on unix commands")
	}
}

func TestSpawnDeliversStdout(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	h := newHarness(t)
	require.NoError(t, h.run(t, `
		var out = "";
		var child = child_process.spawn("echo", ["hello"]);
		child.stdout.on("data", function(chunk) { out += chunk });
	`))

	assert.Equal(t, "hello", strings.TrimSpace(h.eval(t, "out").String()))
}

func TestSpawnThroughShell(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	h := newHarness(t)
	require.NoError(t, h.run(t, `
		var out = "";
		var child = child_process.spawn("echo", ["hello"], { shell: true });
		child.stdout.on("data", function(chunk) { out += chunk });
	`))

	assert.Equal(t, "hello", strings.TrimSpace(h.eval(t, "out").String()))
}

func TestExecFileSuccess(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	h := newHarness(t)
	require.NoError(t, h.run(t, `
		var result;
		child_process.execFile("echo", ["hello"], function(err, stdout, stderr) {
			result = [err, stdout, stderr];
		});
	`))

	assert.Equal(t, []any{nil, "hello\n", ""}, h.eval(t, "result").Export())
}

func TestExecFileCommandFails(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	h := newHarness(t)
	require.NoError(t, h.run(t, `
		var err, stdout, stderr;
		child_process.execFile("ls", ["hello-missing"], function(e, out, errOut) {
			err = errorFields(e);
			stdout = out;
			stderr = errOut;
		});
	`))

	assert.NotZero(t, h.eval(t, "err.code").ToInteger())
	assert.Equal(t, "ls hello-missing", h.eval(t, "err.cmd").String())
	assert.True(t, strings.HasPrefix(h.eval(t, "err.message").String(), "Command failed: ls hello-missing\n"))
	assert.Equal(t, "", h.eval(t, "stdout").String())
	assert.NotEmpty(t, h.eval(t, "stderr").String())
}

func TestExecFileReportsExitCode(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.run(t, `
		var result;
		child_process.execFile(helper, [], helperOpts("fail"), function(err, stdout, stderr) {
			result = { err: errorFields(err), stdout: stdout, stderr: stderr };
		});
	`))

	want := map[string]any{
		"err": map[string]any{
			"message": "Command failed: " + os.Args[0] + " \nsomething went wrong",
			"code":    int64(3),
			"cmd":     os.Args[0] + " ",
			"killed":  false,
			"signal":  nil,
		},
		"stdout": "",
		"stderr": "something went wrong",
	}
	if diff := cmp.Diff(want, h.eval(t, "result").Export()); diff != "" {
		t.Fatalf("execFile result diff (-want +got):\n%s", diff)
	}
}

func TestExecFileStderrIsAFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.run(t, `
		var result;
		child_process.execFile(helper, helperOpts("warn"), function(err, stdout, stderr) {
			result = [err.code, stdout, stderr];
		});
	`))

	assert.Equal(t, []any{int64(0), "", "deprecated!"}, h.eval(t, "result").Export())
}

func TestExecFileWithNoOutputSucceeds(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.run(t, `
		var result;
		child_process.execFile(helper, [], helperOpts("silent"), function(err, stdout, stderr) {
			result = [err, stdout, stderr];
		});
	`))

	assert.Equal(t, []any{nil, "", ""}, h.eval(t, "result").Export())
}

func TestExecFileChildStoppedBySignalSucceeds(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	h := newHarness(t)
	require.NoError(t, h.run(t, `
		var result;
		var child = child_process.execFile(helper, [], helperOpts("selfterm"), function(err, stdout, stderr) {
			result = [err, stdout, stderr];
		});
	`))

	assert.Equal(t, []any{nil, "", ""}, h.eval(t, "result").Export())
	assert.Equal(t, "SIGTERM", h.eval(t, "child.signalCode").String())
}

func TestExecFileIsRepeatable(t *testing.T) {
	t.Parallel()

	for _, mode := range []string{"output", "fail", "warn"} {
		t.Run(mode, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)
			require.NoError(t, h.run(t, `
				var results = [];
				function record(err, stdout, stderr) {
					results.push({ err: errorFields(err), stdout: stdout, stderr: stderr });
				}
				child_process.execFile(helper, [], helperOpts("`+mode+`"), function(err, stdout, stderr) {
					record(err, stdout, stderr);
					child_process.execFile(helper, [], helperOpts("`+mode+`"), record);
				});
			`))

			results := h.eval(t, "results").Export().([]any)
			require.Len(t, results, 2)
			if diff := cmp.Diff(results[0], results[1]); diff != "" {
				t.Fatalf("second execFile result diff (-first +second):\n%s", diff)
			}
		})
	}
}

func TestSpawnFailureWithoutListenerEndsTheRun(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	err := h.run(t, `child_process.spawn("jsrt-does-not-exist-anywhere")`)

	require.Error(t, err)
	assert.Contains(t, err.Error(), `Child process failed to spawn "jsrt-does-not-exist-anywhere".`)
	assert.Equal(t, 0, h.module.Live())
}

func TestSpawnFailureIsEmitted(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.run(t, `
		var events = [];
		var child = child_process.spawn("jsrt-does-not-exist-anywhere", ["a"]);
		child.on("error", function(err) { events.push(err.message + " " + err.code) });
		child.on("exit", function() { events.push("exit") });
		child.on("close", function() { events.push("close") });
		var pid = child.pid;
	`))

	events := h.eval(t, "events").Export().([]any)
	require.Len(t, events, 1)
	assert.Contains(t, events[0], `Child process failed to spawn "jsrt-does-not-exist-anywhere".`)
	assert.True(t, strings.HasSuffix(events[0].(string), " ENOENT"))
	assert.True(t, goja.IsUndefined(h.eval(t, "pid")))
}

func TestExecFileSpawnFailureIsNotEscalated(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.run(t, `
		var result;
		child_process.execFile("jsrt-does-not-exist-anywhere", [], function(err, stdout, stderr) {
			result = [err.message, stdout, stderr];
		});
	`))

	result := h.eval(t, "result").Export().([]any)
	assert.Contains(t, result[0], "Child process failed to spawn")
	assert.Equal(t, []any{"", ""}, result[1:])
}

func TestExitComesBeforeClose(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.run(t, `
		var events = [];
		var child = child_process.spawn(helper, [], helperOpts("output"));
		child.stdout.on("data", function(chunk) { events.push("stdout " + chunk.trim()) });
		child.stderr.on("data", function(chunk) { events.push("stderr " + chunk.trim()) });
		child.stdout.on("end", function() { events.push("stdout end") });
		child.on("exit", function(code, signal) { events.push("exit " + code + " " + signal) });
		child.on("close", function(code, signal) { events.push("close " + code + " " + signal) });
	`))

	events := h.eval(t, "events").Export().([]any)
	require.NotEmpty(t, events)

	index := func(event string) int {
		for i, e := range events {
			if e == event {
				return i
			}
		}
		t.Fatalf("event %q missing from %v", event, events)
		return -1
	}

	assert.Equal(t, "close 0 undefined", events[len(events)-1])
	assert.Less(t, index("exit 0 undefined"), index("close 0 undefined"))
	assert.Less(t, index("stdout llamas"), index("close 0 undefined"))
	assert.Less(t, index("stderr alpacas"), index("close 0 undefined"))
	assert.Less(t, index("stdout end"), index("close 0 undefined"))
}

func TestStreamsAreComplete(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.run(t, `
		var chunks = [];
		var buffered;
		var child = child_process.execFile(helper, [], helperOpts("big"), function(err, stdout) {
			buffered = stdout;
		});
		child.stdout.on("data", function(chunk) { chunks.push(chunk) });
	`))

	want := strings.Repeat(strings.Repeat("héllo wörld ", 100)+"\n", 256)
	assert.Equal(t, want, h.eval(t, `chunks.join("")`).String())
	assert.Equal(t, want, h.eval(t, "buffered").String())
}

func TestStdinIsFedToTheChild(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.run(t, `
		var out = "";
		var finished = false;
		var child = child_process.spawn(helper, [], helperOpts("cat"));
		child.stdout.on("data", function(chunk) { out += chunk });
		child.stdin.on("finish", function() { finished = true });
		child.stdin.write("hello ");
		child.stdin.end("world");
	`))

	assert.Equal(t, "hello world", h.eval(t, "out").String())
	assert.True(t, h.eval(t, "finished").ToBoolean())
}

func TestEnvironmentIsolation(t *testing.T) {
	skipOnWindows(t)
	t.Setenv("JSRT_PARENT_ONLY", "llamas")

	h := newHarness(t)
	require.NoError(t, h.run(t, `
		var out = "";
		var child = child_process.spawn(helper, [], { env: { TEST_MAIN: "env", ONLY: 1 } });
		child.stdout.on("data", function(chunk) { out += chunk });
	`))

	assert.Equal(t, "ONLY=1\nTEST_MAIN=env", h.eval(t, "out").String())
}

func TestIgnoredStdio(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.run(t, `
		var closed;
		var child = child_process.spawn(helper, [], helperOpts("output", { stdio: "ignore" }));
		var streams = [child.stdin, child.stdout, child.stderr];
		child.on("close", function(code) { closed = code });
	`))

	assert.Equal(t, []any{nil, nil, nil}, h.eval(t, "streams").Export())
	assert.Equal(t, int64(0), h.eval(t, "closed").ToInteger())
}

func TestKillIsSingleShot(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	h := newHarness(t)
	require.NoError(t, h.run(t, `
		var kills = [];
		var exit;
		var child = child_process.spawn(helper, [], helperOpts("sleep"));
		child.stdout.once("data", function() {
			kills.push(child.kill());
			kills.push(child.kill());
			kills.push(child.killed);
		});
		child.on("exit", function(code, signal) { exit = [code, signal] });
	`))

	assert.Equal(t, []any{true, false, true}, h.eval(t, "kills").Export())

	assert.Equal(t, []any{int64(0), "SIGTERM"}, h.eval(t, "exit").Export())
	assert.True(t, goja.IsNull(h.eval(t, "child.exitCode")))
	assert.Equal(t, "SIGTERM", h.eval(t, "child.signalCode").String())
}

func TestKillWithHandledSignal(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	h := newHarness(t)
	require.NoError(t, h.run(t, `
		var out = "";
		var exit;
		var child = child_process.spawn(helper, [], helperOpts("trap"));
		child.stdout.on("data", function(chunk) {
			out += chunk;
			if (chunk.indexOf("Ready") >= 0) child.kill("SIGINT");
		});
		child.on("exit", function(code, signal) { exit = [code, signal] });
	`))

	assert.Contains(t, h.eval(t, "out").String(), "SIG interrupt")
	assert.Equal(t, []any{int64(0), nil}, h.eval(t, "exit").Export())
}

func TestKillWithUnknownSignalForcesTermination(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	h := newHarness(t)
	require.NoError(t, h.run(t, `
		var exit;
		var child = child_process.spawn(helper, [], helperOpts("trap"));
		child.stdout.once("data", function() { child.kill("SIGNOPE") });
		child.on("exit", function(code, signal) { exit = [code, signal] });
	`))

	assert.Equal(t, []any{int64(0), "SIGKILL"}, h.eval(t, "exit").Export())
}

func TestKillDeliveryFailureIsEmitted(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	h := newHarness(t)
	require.NoError(t, h.run(t, `
		var errs = [];
		var events = [];
		var child = child_process.spawn(helper, [], helperOpts("sleep"));
		child.stdout.once("data", function() { child.kill(999) });
		child.on("error", function(err) { errs.push(err.message) });
		child.on("exit", function() { events.push("exit") });
		child.on("close", function() { events.push("close") });
	`))

	errs := h.eval(t, "errs").Export().([]any)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "Failed to send signal 999 to process ")
	assert.Empty(t, h.eval(t, "events").Export())
	assert.True(t, h.eval(t, "child.killed").ToBoolean())
	assert.Equal(t, 0, h.module.Live())
}

func TestKillDeliveryFailureWithoutListenerEndsTheRun(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	h := newHarness(t)
	err := h.run(t, `
		var child = child_process.spawn(helper, [], helperOpts("sleep"));
		child.stdout.once("data", function() { child.kill(999) });
	`)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to send signal 999 to process ")
	assert.Equal(t, 0, h.module.Live())
}

func TestHandleProperties(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.run(t, `
		var child = child_process.spawn(helper, ["a", "b"], helperOpts("silent"));
		var pidType = typeof child.pid;
		var before = [child.exitCode, child.signalCode, child.killed];
	`))

	assert.Equal(t, "number", h.eval(t, "pidType").String())
	assert.Equal(t, []any{nil, nil, false}, h.eval(t, "before").Export())
	assert.Equal(t, os.Args[0], h.eval(t, "child.spawnfile").String())
	assert.Equal(t, []any{os.Args[0], "a", "b"}, h.eval(t, "child.spawnargs").Export())
	assert.Equal(t, int64(0), h.eval(t, "child.exitCode").ToInteger())
}

func TestArgumentErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		script string
		want   string
	}{
		{"command not a string", `child_process.spawn(42)`, `The "command" argument must be of type string`},
		{"args is a string", `child_process.spawn("ls", "-la")`, `The "args" argument must be of type object`},
		{"args element not a string", `child_process.spawn("ls", ["-l", 1])`, "argument is not a string"},
		{"bad stdio", `child_process.spawn("ls", [], { stdio: "bogus" })`, `Invalid stdio "bogus". Expected one of: pipe, ignore, inherit`},
		{"bad stdio element", `child_process.spawn("ls", [], { stdio: ["pipe", "bogus"] })`, `Invalid stdio "bogus". Expected one of: pipe, ignore, inherit`},
		{"execFile without callback", `child_process.execFile("ls", [])`, "Callback parameter is not a function"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)
			require.NoError(t, h.run(t, `
				var caught;
				try { `+test.script+` } catch (e) { caught = [e instanceof TypeError, e.message] }
			`))

			assert.Equal(t, []any{true, test.want}, h.eval(t, "caught").Export())
			assert.Equal(t, 0, h.module.Live())
		})
	}
}

func TestShutdownTerminatesLiveChildren(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	done := make(chan error, 1)
	go func() {
		done <- h.run(t, `
			var exit;
			var child = child_process.spawn(helper, [], helperOpts("sleep"));
			child.on("exit", function(code, signal) { exit = signal });
		`)
	}()

	require.Eventually(t, func() bool { return h.module.Live() == 1 }, 10*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, h.module.Shutdown(ctx))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("loop didn't finish after shutdown")
	}

	assert.Equal(t, "SIGKILL", h.eval(t, "exit").String())
	assert.Equal(t, 0, h.module.Live())
}
