// Package eventloop runs a goja runtime on a single goroutine and lets other
// goroutines hand work back to it.
package eventloop

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// Job is a unit of work run on the loop goroutine. A returned error stops
// the loop and is returned from Run.
type Job func(vm *goja.Runtime) error

// ErrStopped is returned from Run when the loop was stopped with Stop.
var ErrStopped = errors.New("event loop stopped")

// Loop owns a goja.Runtime. The runtime may only be used from inside jobs.
//
// The loop keeps running while jobs are queued or anything holds a
// reference taken with Ref. Work that will schedule a job later, like a
// running child process or a pending timer, holds a reference until it is
// done.
type Loop struct {
	vm *goja.Runtime

	mu      sync.Mutex
	queue   []Job
	refs    int
	stopped bool
	wakeup  chan struct{}
}

// New returns a loop around vm and installs the timer globals on it.
func New(vm *goja.Runtime) *Loop {
	l := &Loop{
		vm:     vm,
		wakeup: make(chan struct{}, 1),
	}
	l.installTimers()
	return l
}

// Runtime returns the runtime the loop drives. Only use it from a job, or
// before Run is called.
func (l *Loop) Runtime() *goja.Runtime {
	return l.vm
}

// Ref keeps the loop alive until a matching Unref.
func (l *Loop) Ref() {
	l.mu.Lock()
	l.refs++
	l.mu.Unlock()
}

// Unref releases a reference taken with Ref. Safe from any goroutine.
func (l *Loop) Unref() {
	l.mu.Lock()
	l.refs--
	if l.refs < 0 {
		l.mu.Unlock()
		panic("eventloop: Unref without matching Ref")
	}
	l.mu.Unlock()
	l.wake()
}

// Schedule queues job to run on the loop goroutine. Safe from any
// goroutine. Jobs run in the order they were scheduled.
func (l *Loop) Schedule(job Job) {
	l.mu.Lock()
	l.queue = append(l.queue, job)
	l.mu.Unlock()
	l.wake()
}

// Stop makes Run return ErrStopped once the current job finishes. Safe from
// any goroutine.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
	l.wake()
}

func (l *Loop) wake() {
	select {
	case l.wakeup <- struct{}{}:
	default:
	}
}

// Run calls start on the loop goroutine and then runs scheduled jobs until
// nothing is queued and no references are held. The first job error ends
// the loop and is returned; jobs still queued are dropped. Cancelling ctx
// interrupts running script and returns ctx.Err().
func (l *Loop) Run(ctx context.Context, start Job) error {
	stop := context.AfterFunc(ctx, func() {
		l.vm.Interrupt(context.Cause(ctx))
		l.wake()
	})
	defer stop()

	if err := l.runJob(ctx, start); err != nil {
		return err
	}

	for {
		l.mu.Lock()
		jobs, refs, stopped := l.queue, l.refs, l.stopped
		l.queue = nil
		l.mu.Unlock()

		if stopped {
			return ErrStopped
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if len(jobs) == 0 {
			if refs == 0 {
				return nil
			}
			select {
			case <-l.wakeup:
			case <-ctx.Done():
			}
			continue
		}

		for _, job := range jobs {
			if err := l.runJob(ctx, job); err != nil {
				return err
			}
		}
	}
}

func (l *Loop) runJob(ctx context.Context, job Job) error {
	err := job(l.vm)

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		l.vm.ClearInterrupt()
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}

// AfterFunc runs job on the loop once d has passed, keeping the loop alive
// until then. The returned function cancels the job and reports whether it
// was cancelled before it ran.
func (l *Loop) AfterFunc(d time.Duration, job Job) (cancel func() bool) {
	var (
		mu       sync.Mutex
		finished bool
	)

	l.Ref()
	timer := time.AfterFunc(d, func() {
		l.Schedule(func(vm *goja.Runtime) error {
			mu.Lock()
			if finished {
				mu.Unlock()
				return nil
			}
			finished = true
			mu.Unlock()

			defer l.Unref()
			return job(vm)
		})
	})

	return func() bool {
		mu.Lock()
		defer mu.Unlock()
		if finished {
			return false
		}
		finished = true
		timer.Stop()
		l.Unref()
		return true
	}
}
