package process

import (
	"errors"
	"io"
	"os"

	"github.com/buildkite/jsrt/logger"
	"github.com/dustin/go-humanize"
)

const pumpBufferSize = 32 * 1024

// Pump copies r into w on a new goroutine until r reports EOF, appending
// every chunk to acc as well when acc isn't nil. Read errors end the copy
// the same way EOF does. The returned channel is closed once the copy has
// finished and r has been closed; nobody has to wait on it. A nil r yields
// an already closed channel.
//
// w gets one Write per chunk read and must not keep the slice.
func Pump(l logger.Logger, name string, r io.ReadCloser, w io.Writer, acc *Buffer) <-chan struct{} {
	done := make(chan struct{})

	if r == nil {
		close(done)
		return done
	}

	go func() {
		defer close(done)
		defer r.Close() //nolint:errcheck // the pipe is finished with either way

		var total uint64
		buf := make([]byte, pumpBufferSize)

		for {
			n, err := r.Read(buf)
			if n > 0 {
				chunk := buf[:n]
				total += uint64(n)

				if acc != nil {
					_, _ = acc.Write(chunk)
				}
				if w != nil {
					if _, werr := w.Write(chunk); werr != nil {
						l.Debug("[Pump] Dropped %d bytes of %s: %v", n, name, werr)
					}
				}
			}

			if err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
					l.Debug("[Pump] Reading %s failed, treating it as closed: %v", name, err)
				}
				break
			}
		}

		l.Debug("[Pump] Finished %s after %s", name, humanize.Bytes(total))
	}()

	return done
}
