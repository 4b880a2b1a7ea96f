// Package stream provides the script side of a child's standard streams: a
// Readable fed by a pump goroutine and a Writable that feeds a pipe.
package stream

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/buildkite/jsrt/internal/eventloop"
	"github.com/buildkite/jsrt/internal/events"
	"github.com/dop251/goja"
)

// Readable delivers chunks to script as 'data' events holding strings,
// followed by a single 'end'. Chunks pushed before anything listens for
// 'data' are held until a listener is attached or read() is called.
//
// Apart from Writer, its methods must only be called on the loop goroutine.
type Readable struct {
	loop    *eventloop.Loop
	vm      *goja.Runtime
	emitter *events.Emitter

	pending []string
	partial []byte

	flowing        bool
	paused         bool
	ended          bool
	endEmitted     bool
	flushScheduled bool
}

// NewReadable returns a Readable bound to a new script object.
func NewReadable(loop *eventloop.Loop) *Readable {
	vm := loop.Runtime()
	r := &Readable{
		loop: loop,
		vm:   vm,
	}

	obj := vm.NewObject()
	r.emitter = events.New(vm, obj)
	r.emitter.OnNewListener = func(name string) {
		if name == "data" && !r.paused {
			r.flowing = true
			r.scheduleFlush()
		}
	}

	obj.Set("pause", r.jsPause)                                          //nolint:errcheck // plain objects accept any key
	obj.Set("resume", r.jsResume)                                        //nolint:errcheck // plain objects accept any key
	obj.Set("isPaused", r.jsIsPaused)                                    //nolint:errcheck // plain objects accept any key
	obj.Set("read", r.jsRead)                                            //nolint:errcheck // plain objects accept any key
	obj.Set("setEncoding", r.jsSetEncoding)                              //nolint:errcheck // plain objects accept any key
	obj.DefineAccessorProperty("readableEnded", vm.ToValue(func() bool { //nolint:errcheck // plain objects accept any key
		return r.endEmitted
	}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)

	return r
}

// Object returns the script object.
func (r *Readable) Object() *goja.Object {
	return r.emitter.Object()
}

// Push appends chunk to the stream. A multi-byte character split across
// chunks is held back until the rest of it arrives.
func (r *Readable) Push(chunk []byte) error {
	if r.ended {
		return nil
	}

	data := append(r.partial, chunk...)
	cut := completeRunes(data)
	r.partial = bytes.Clone(data[cut:])

	if cut > 0 {
		r.pending = append(r.pending, string(data[:cut]))
	}
	return r.flush()
}

// End marks the stream as finished. 'end' is emitted once everything
// pushed before it has been delivered.
func (r *Readable) End() error {
	if r.ended {
		return nil
	}
	if len(r.partial) > 0 {
		r.pending = append(r.pending, string(r.partial))
		r.partial = nil
	}
	r.ended = true
	return r.flush()
}

// Writer returns an io.Writer that pushes each write into the stream from
// the loop goroutine. It is safe to use from any goroutine and never
// blocks on script.
func (r *Readable) Writer() *Writer {
	return &Writer{r: r}
}

// Writer hands chunks from another goroutine to a Readable.
type Writer struct {
	r *Readable
}

func (w *Writer) Write(p []byte) (int, error) {
	chunk := bytes.Clone(p)
	w.r.loop.Schedule(func(*goja.Runtime) error {
		return w.r.Push(chunk)
	})
	return len(p), nil
}

func (r *Readable) flush() error {
	for r.flowing && len(r.pending) > 0 {
		chunk := r.pending[0]
		r.pending = r.pending[1:]
		if _, err := r.emitter.Emit("data", r.vm.ToValue(chunk)); err != nil {
			return err
		}
	}
	return r.maybeEnd()
}

func (r *Readable) maybeEnd() error {
	if !r.ended || r.endEmitted || r.paused || len(r.pending) > 0 {
		return nil
	}
	r.endEmitted = true
	_, err := r.emitter.Emit("end")
	return err
}

// scheduleFlush delivers buffered chunks from a fresh job so listeners are
// never called from inside the call that registered them.
func (r *Readable) scheduleFlush() {
	if r.flushScheduled {
		return
	}
	r.flushScheduled = true
	r.loop.Schedule(func(*goja.Runtime) error {
		r.flushScheduled = false
		return r.flush()
	})
}

func (r *Readable) jsPause(goja.FunctionCall) goja.Value {
	r.paused = true
	r.flowing = false
	return r.Object()
}

func (r *Readable) jsResume(goja.FunctionCall) goja.Value {
	r.paused = false
	r.flowing = true
	r.scheduleFlush()
	return r.Object()
}

func (r *Readable) jsIsPaused(goja.FunctionCall) goja.Value {
	return r.vm.ToValue(r.paused)
}

func (r *Readable) jsRead(goja.FunctionCall) goja.Value {
	if len(r.pending) == 0 {
		return goja.Null()
	}

	data := strings.Join(r.pending, "")
	r.pending = nil
	if r.ended {
		r.scheduleFlush()
	}
	return r.vm.ToValue(data)
}

func (r *Readable) jsSetEncoding(call goja.FunctionCall) goja.Value {
	// Chunks are always delivered as UTF-8 strings
	switch enc := strings.ToLower(call.Argument(0).String()); enc {
	case "utf8", "utf-8", "undefined":
	default:
		panic(r.vm.NewTypeError("Unknown encoding: " + enc))
	}
	return r.Object()
}

// completeRunes returns the length of the longest prefix of b that doesn't
// end in the middle of a UTF-8 sequence.
func completeRunes(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return len(b)
			}
			return i
		}
	}
	return len(b)
}
