package logger

import (
	"fmt"
	"strings"
	"sync"
)

// Buffer is a Logger implementation intended for testing;
// messages are stored internally.
type Buffer struct {
	mu       *sync.Mutex
	messages *[]string
	fields   Fields
}

// NewBuffer creates a new Buffer with Messages slice initialized.
// This makes it simpler to assert empty []string when no log messages
// have been sent; otherwise Messages would be nil.
func NewBuffer() *Buffer {
	messages := make([]string, 0)
	return &Buffer{
		mu:       &sync.Mutex{},
		messages: &messages,
	}
}

// Messages returns a copy of every message logged so far, including those
// logged through loggers returned by WithFields.
func (b *Buffer) Messages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string{}, (*b.messages)...)
}

func (b *Buffer) Debug(format string, v ...any)  { b.add("debug", format, v...) }
func (b *Buffer) Error(format string, v ...any)  { b.add("error", format, v...) }
func (b *Buffer) Fatal(format string, v ...any)  { b.add("fatal", format, v...) }
func (b *Buffer) Notice(format string, v ...any) { b.add("notice", format, v...) }
func (b *Buffer) Warn(format string, v ...any)   { b.add("warn", format, v...) }
func (b *Buffer) Info(format string, v ...any)   { b.add("info", format, v...) }

func (b *Buffer) add(level, format string, v ...any) {
	var line strings.Builder
	fmt.Fprintf(&line, "[%s] %s", level, fmt.Sprintf(format, v...))
	for _, field := range b.fields {
		fmt.Fprintf(&line, " %s=%s", field.Key(), field.String())
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	*b.messages = append(*b.messages, line.String())
}

func (b *Buffer) WithFields(fields ...Field) Logger {
	clone := *b
	clone.fields = append(append(Fields{}, b.fields...), fields...)
	return &clone
}

func (b *Buffer) SetLevel(level Level) {}

func (b *Buffer) Level() Level {
	return DEBUG
}
