package stream

import (
	"bytes"
	"io"
	"sync"

	"github.com/buildkite/jsrt/internal/eventloop"
	"github.com/buildkite/jsrt/internal/events"
	"github.com/buildkite/jsrt/logger"
	"github.com/dop251/goja"
)

type writeRequest struct {
	data []byte
	cb   goja.Callable
}

// Writable lets script write to a pipe. Writes are queued and written by a
// feeder goroutine, so write() never blocks the loop. Until Attach is
// called the stream discards what is written to it.
//
// Apart from the feeder, everything runs on the loop goroutine.
type Writable struct {
	loop    *eventloop.Loop
	vm      *goja.Runtime
	emitter *events.Emitter
	logger  logger.Logger

	attached bool
	ended    bool
	errored  bool
	finished bool
	endCbs   []goja.Callable

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []writeRequest
	closed bool
}

// NewWritable returns a Writable bound to a new script object.
func NewWritable(loop *eventloop.Loop, l logger.Logger) *Writable {
	vm := loop.Runtime()
	w := &Writable{
		loop:   loop,
		vm:     vm,
		logger: l,
	}
	w.cond = sync.NewCond(&w.mu)

	obj := vm.NewObject()
	w.emitter = events.New(vm, obj)

	obj.Set("write", w.jsWrite)                                          //nolint:errcheck // plain objects accept any key
	obj.Set("end", w.jsEnd)                                              //nolint:errcheck // plain objects accept any key
	obj.DefineAccessorProperty("writableEnded", vm.ToValue(func() bool { //nolint:errcheck // plain objects accept any key
		return w.ended
	}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	obj.DefineAccessorProperty("writableFinished", vm.ToValue(func() bool { //nolint:errcheck // plain objects accept any key
		return w.finished
	}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)

	return w
}

// Object returns the script object.
func (w *Writable) Object() *goja.Object {
	return w.emitter.Object()
}

// Attach starts feeding queued writes into dst. dst is closed once the
// stream has been ended and everything before it written.
func (w *Writable) Attach(dst io.WriteCloser) {
	if w.attached {
		return
	}
	w.attached = true
	w.loop.Ref()
	go w.feed(dst)
}

// End ends the stream as if script had called end().
func (w *Writable) End() {
	w.end(nil)
}

func (w *Writable) feed(dst io.WriteCloser) {
	defer w.loop.Unref()

	var failed error
	for {
		req, ok := w.next()
		if !ok {
			break
		}

		if failed == nil && len(req.data) > 0 {
			if _, err := dst.Write(req.data); err != nil {
				failed = err
			}
		}

		if req.cb != nil || failed != nil {
			cb, err := req.cb, failed
			w.loop.Schedule(func(*goja.Runtime) error {
				return w.written(cb, err)
			})
		}
	}

	if err := dst.Close(); err != nil && failed == nil {
		failed = err
	}

	w.loop.Schedule(func(*goja.Runtime) error {
		return w.finish(failed)
	})
}

func (w *Writable) next() (writeRequest, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for len(w.queue) == 0 && !w.closed {
		w.cond.Wait()
	}
	if len(w.queue) == 0 {
		return writeRequest{}, false
	}

	req := w.queue[0]
	w.queue = w.queue[1:]
	return req, true
}

func (w *Writable) enqueue(req writeRequest) {
	w.mu.Lock()
	w.queue = append(w.queue, req)
	w.mu.Unlock()
	w.cond.Signal()
}

func (w *Writable) closeQueue() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.cond.Signal()
}

func (w *Writable) write(data []byte, cb goja.Callable) bool {
	if w.ended {
		err := w.newError("write after end")
		w.loop.Schedule(func(*goja.Runtime) error {
			if cb != nil {
				if _, cbErr := cb(goja.Undefined(), err); cbErr != nil {
					return cbErr
				}
			}
			return w.emitError(err)
		})
		return false
	}

	if !w.attached {
		if cb != nil {
			w.loop.Schedule(func(*goja.Runtime) error {
				_, err := cb(goja.Undefined())
				return err
			})
		}
		return true
	}

	w.enqueue(writeRequest{data: data, cb: cb})
	return true
}

func (w *Writable) end(cb goja.Callable) {
	if cb != nil {
		if w.finished {
			w.loop.Schedule(func(*goja.Runtime) error {
				_, err := cb(goja.Undefined())
				return err
			})
		} else {
			w.endCbs = append(w.endCbs, cb)
		}
	}

	if w.ended {
		return
	}
	w.ended = true

	if !w.attached {
		w.loop.Schedule(func(*goja.Runtime) error {
			return w.finish(nil)
		})
		return
	}
	w.closeQueue()
}

// written runs on the loop once a queued write has gone to the pipe.
func (w *Writable) written(cb goja.Callable, err error) error {
	var jsErr goja.Value = goja.Undefined()
	if err != nil {
		jsErr = w.newError(err.Error())
		if !w.errored {
			w.errored = true
			if emitErr := w.emitError(jsErr); emitErr != nil {
				return emitErr
			}
		}
	}

	if cb == nil {
		return nil
	}
	_, cbErr := cb(goja.Undefined(), jsErr)
	return cbErr
}

func (w *Writable) finish(err error) error {
	if w.finished {
		return nil
	}
	w.finished = true

	var jsErr goja.Value = goja.Undefined()
	if err != nil {
		jsErr = w.newError(err.Error())
		if !w.errored {
			w.errored = true
			if emitErr := w.emitError(jsErr); emitErr != nil {
				return emitErr
			}
		}
	} else if _, emitErr := w.emitter.Emit("finish"); emitErr != nil {
		return emitErr
	}

	cbs := w.endCbs
	w.endCbs = nil
	for _, cb := range cbs {
		if _, cbErr := cb(goja.Undefined(), jsErr); cbErr != nil {
			return cbErr
		}
	}

	_, emitErr := w.emitter.Emit("close")
	return emitErr
}

// emitError reports a pipe failure to 'error' listeners. With nobody
// listening the failure is only logged; a child that exits without reading
// its input is not a script error.
func (w *Writable) emitError(err goja.Value) error {
	if w.emitter.ListenerCount("error") == 0 {
		w.logger.Debug("Discarding unobserved stdin error: %s", err.String())
		return nil
	}
	_, emitErr := w.emitter.Emit("error", err)
	return emitErr
}

func (w *Writable) newError(msg string) *goja.Object {
	obj, err := w.vm.New(w.vm.Get("Error"), w.vm.ToValue(msg))
	if err != nil {
		panic(err)
	}
	return obj
}

func (w *Writable) jsWrite(call goja.FunctionCall) goja.Value {
	data := w.chunk(call.Argument(0))

	var cb goja.Callable
	for _, arg := range call.Arguments[min(1, len(call.Arguments)):] {
		if fn, ok := goja.AssertFunction(arg); ok {
			cb = fn
			break
		}
	}

	return w.vm.ToValue(w.write(data, cb))
}

func (w *Writable) jsEnd(call goja.FunctionCall) goja.Value {
	var cb goja.Callable
	for i, arg := range call.Arguments {
		if fn, ok := goja.AssertFunction(arg); ok {
			cb = fn
			break
		}
		if i == 0 && !goja.IsUndefined(arg) && !goja.IsNull(arg) {
			w.write(w.chunk(arg), nil)
		}
	}

	w.end(cb)
	return w.Object()
}

func (w *Writable) chunk(v goja.Value) []byte {
	switch data := v.Export().(type) {
	case string:
		return []byte(data)
	case []byte:
		return bytes.Clone(data)
	case goja.ArrayBuffer:
		return bytes.Clone(data.Bytes())
	}
	panic(w.vm.NewTypeError("The \"chunk\" argument must be of type string or an instance of Buffer or Uint8Array"))
}
