package process

import (
	"bytes"
	"io"
	"sync"
)

// Prefixer is a writer that puts the result of f at the start of every
// line written through it. The prefix for a line is written when the first
// byte of that line arrives, so output ending in a newline doesn't leave a
// dangling prefix behind.
type Prefixer struct {
	mu        sync.Mutex
	w         io.Writer
	f         func() string
	lineStart bool
}

func NewPrefixer(w io.Writer, f func() string) *Prefixer {
	return &Prefixer{
		w:         w,
		f:         f,
		lineStart: true,
	}
}

func (p *Prefixer) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]byte, 0, len(data))

	for offset := 0; offset < len(data); {
		if p.lineStart {
			out = append(out, p.f()...)
			p.lineStart = false
		}

		next := bytes.IndexByte(data[offset:], '\n')
		if next == -1 {
			out = append(out, data[offset:]...)
			break
		}

		out = append(out, data[offset:offset+next+1]...)
		offset += next + 1
		p.lineStart = true
	}

	if _, err := p.w.Write(out); err != nil {
		return 0, err
	}

	return len(data), nil
}
