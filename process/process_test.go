package process_test

import (
	"bufio"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/buildkite/jsrt/logger"
	"github.com/buildkite/jsrt/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCollectsOutput(t *testing.T) {
	t.Parallel()

	res, err := process.Run(context.Background(), logger.Discard, helperCommand("output"), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, process.StateExited, res.State)
	assert.Equal(t, 0, res.Code)
	assert.Equal(t, "", res.SignalName())
	assert.Equal(t, "llamas1\nllamas2\n", string(res.Stdout))
	assert.Equal(t, "alpacas1\n", string(res.Stderr))
}

func TestRunTeesOutput(t *testing.T) {
	t.Parallel()

	var stdout process.Buffer
	res, err := process.Run(context.Background(), logger.Discard, helperCommand("output"), &stdout, nil)
	require.NoError(t, err)

	assert.Equal(t, string(res.Stdout), stdout.String())
}

func TestRunReportsExitCode(t *testing.T) {
	t.Parallel()

	res, err := process.Run(context.Background(), logger.Discard, helperCommand("fail"), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, process.StateExited, res.State)
	assert.Equal(t, 3, res.Code)
	assert.Equal(t, "something went wrong", string(res.Stderr))
	assert.Empty(t, res.Stdout)
}

func TestRunPassesArguments(t *testing.T) {
	t.Parallel()

	res, err := process.Run(context.Background(), logger.Discard, helperCommand("args", "a b", "c"), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "a b|c", string(res.Stdout))
}

func TestRunReadsAllOutput(t *testing.T) {
	t.Parallel()

	res, err := process.Run(context.Background(), logger.Discard, helperCommand("big"), nil, nil)
	require.NoError(t, err)

	assert.Len(t, res.Stdout, 1024*1024)
}

func TestEnvironmentReplacesInherited(t *testing.T) {
	t.Setenv("JSRT_PARENT_ONLY", "llamas")

	cmd := process.NewCommand(os.Args[0], nil, process.Options{
		Env:   map[string]string{"TEST_MAIN": "env", "ONLY": "1"},
		Stdio: process.DefaultStdio(),
	})

	res, err := process.Run(context.Background(), logger.Discard, cmd, nil, nil)
	require.NoError(t, err)

	if runtime.GOOS == "windows" {
		// Windows always adds SYSTEMROOT to a child's environment
		assert.NotContains(t, string(res.Stdout), "JSRT_PARENT_ONLY")
		return
	}
	assert.Equal(t, "ONLY=1\nTEST_MAIN=env", string(res.Stdout))
}

func TestRunCancelledContextKills(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := process.Run(ctx, logger.Discard, helperCommand("tester-no-handler"), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, process.StateKilled, res.State)
	assert.Equal(t, "Ready\n", string(res.Stdout))
	if runtime.GOOS != "windows" {
		assert.Equal(t, "SIGKILL", res.SignalName())
	}
}

func TestStartMissingExecutable(t *testing.T) {
	t.Parallel()

	cmd := process.NewCommand("jsrt-definitely-not-a-command", nil, process.Options{Stdio: process.DefaultStdio()})
	_, err := process.Start(context.Background(), logger.Discard, cmd)

	var spawnErr *process.SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.True(t, errors.Is(err, exec.ErrNotFound))
	assert.Contains(t, err.Error(), `Child process failed to spawn "jsrt-definitely-not-a-command".`)
}

func TestStartMissingWorkingDirectory(t *testing.T) {
	t.Parallel()

	cmd := helperCommand("output")
	cmd.Dir = filepath.Join(t.TempDir(), "nope")

	_, err := process.Start(context.Background(), logger.Discard, cmd)

	var spawnErr *process.SpawnError
	assert.ErrorAs(t, err, &spawnErr)
}

func TestStdinIsPiped(t *testing.T) {
	t.Parallel()

	p, err := process.Start(context.Background(), logger.Discard, helperCommand("cat"))
	require.NoError(t, err)

	var out process.Buffer
	done := process.Pump(logger.Discard, "stdout", p.Stdout, nil, &out)
	errDone := process.Pump(logger.Discard, "stderr", p.Stderr, nil, nil)

	_, err = p.Stdin.Write([]byte("hello from the parent"))
	require.NoError(t, err)
	require.NoError(t, p.Stdin.Close())

	_, rx := process.NewKillChannel()
	outcome, err := p.Supervise(rx)
	require.NoError(t, err)
	<-done
	<-errDone

	assert.Equal(t, process.StateExited, outcome.State)
	assert.Equal(t, "hello from the parent", out.String())
}

func TestIgnoredStreamsAreNil(t *testing.T) {
	t.Parallel()

	cmd := helperCommand("output")
	cmd.Stdio = process.Stdio{process.Ignore, process.Pipe, process.Ignore}

	p, err := process.Start(context.Background(), logger.Discard, cmd)
	require.NoError(t, err)

	assert.Nil(t, p.Stdin)
	assert.Nil(t, p.Stderr)
	require.NotNil(t, p.Stdout)

	var out process.Buffer
	done := process.Pump(logger.Discard, "stdout", p.Stdout, nil, &out)

	_, rx := process.NewKillChannel()
	_, err = p.Supervise(rx)
	require.NoError(t, err)
	<-done

	assert.Equal(t, "llamas1\nllamas2\n", out.String())
}

func TestStdioDescriptorIsDuplicated(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("Descriptor numbers are unix specific")
	}

	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck // test cleanup

	cmd := helperCommand("output")
	cmd.Stdio = process.Stdio{process.Ignore, process.FD(int(f.Fd())), process.Ignore}

	res, err := process.Run(context.Background(), logger.Discard, cmd, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Stdout)

	// Our descriptor must still be usable afterwards
	_, err = f.WriteString("done\n")
	require.NoError(t, err)

	b, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Equal(t, "llamas1\nllamas2\ndone\n", string(b))
}

func TestSuperviseDeliversSignal(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("Signals are not supported on windows")
	}

	p, err := process.Start(context.Background(), logger.Discard, helperCommand("tester-signal"))
	require.NoError(t, err)

	stdout := bufio.NewReader(p.Stdout)
	line, err := stdout.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "Ready\n", line)

	tx, rx := process.NewKillChannel()
	require.True(t, tx.Send(process.KillRequest{Signal: process.SIGTERM}))

	outcome, err := p.Supervise(rx)
	require.NoError(t, err)

	rest, _ := stdout.ReadString('\n')
	assert.Equal(t, "SIG terminated", rest)
	assert.Equal(t, process.StateExited, outcome.State)
	assert.Equal(t, 0, outcome.Code)

	// The receiver is gone once supervision ends
	assert.False(t, tx.Send(process.KillRequest{Signal: process.SIGTERM}))
}

func TestSuperviseReportsTerminatingSignal(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("Signals are not supported on windows")
	}

	p, err := process.Start(context.Background(), logger.Discard, helperCommand("tester-no-handler"))
	require.NoError(t, err)

	line, err := bufio.NewReader(p.Stdout).ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "Ready\n", line)

	tx, rx := process.NewKillChannel()
	tx.Send(process.KillRequest{Signal: process.SIGINT})

	outcome, err := p.Supervise(rx)
	require.NoError(t, err)

	assert.Equal(t, process.StateExited, outcome.State)
	assert.Equal(t, 0, outcome.Code)
	assert.Equal(t, "SIGINT", outcome.SignalName())
}

func TestSuperviseReportsUndeliverableSignal(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("Signals are not supported on windows")
	}

	p, err := process.Start(context.Background(), logger.Discard, helperCommand("tester-no-handler"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Terminate() })

	line, err := bufio.NewReader(p.Stdout).ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "Ready\n", line)

	tx, rx := process.NewKillChannel()
	require.True(t, tx.Send(process.KillRequest{Signal: process.Signal(999)}))

	_, err = p.Supervise(rx)

	var sigErr *process.SignalError
	require.True(t, errors.As(err, &sigErr), "expected a SignalError, got %v", err)
	assert.Equal(t, process.Signal(999), sigErr.Signal)
	assert.Equal(t, p.Pid, sigErr.Pid)
	assert.Contains(t, err.Error(), "Failed to send signal 999 to process ")
}

func TestSuperviseForceKill(t *testing.T) {
	t.Parallel()

	p, err := process.Start(context.Background(), logger.Discard, helperCommand("tester-no-handler"))
	require.NoError(t, err)

	tx, rx := process.NewKillChannel()
	tx.Send(process.KillRequest{Force: true})

	outcome, err := p.Supervise(rx)
	require.NoError(t, err)

	assert.Equal(t, process.StateKilled, outcome.State)
	assert.Equal(t, "SIGKILL", outcome.SignalName())
}

func TestChildLeadsProcessGroup(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("Process groups are only used on unix")
	}

	res, err := process.Run(context.Background(), logger.Discard, helperCommand("tester-pgid"), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Code, string(res.Stderr))
	assert.True(t, strings.HasPrefix(string(res.Stdout), "pid "))
}

func TestShellCommand(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("Uses a POSIX shell")
	}

	cmd := process.NewCommand("echo", []string{"hello", "$JSRT_SHELL_VAR"}, process.Options{
		Shell: process.DefaultShell(),
		Env:   map[string]string{"JSRT_SHELL_VAR": "world", "PATH": os.Getenv("PATH")},
		Stdio: process.DefaultStdio(),
	})

	res, err := process.Run(context.Background(), logger.Discard, cmd, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "hello world\n", string(res.Stdout))
}

func TestKillChannelIsSingleShot(t *testing.T) {
	t.Parallel()

	tx, rx := process.NewKillChannel()

	assert.True(t, tx.Send(process.KillRequest{Signal: process.SIGTERM}))
	assert.False(t, tx.Send(process.KillRequest{Force: true}), "a request is already queued")

	req := <-rx.C()
	assert.Equal(t, process.KillRequest{Signal: process.SIGTERM}, req)

	rx.Close()
	assert.False(t, tx.Send(process.KillRequest{Force: true}), "the receiver is closed")
}
