package logger

import (
	"fmt"
	"strings"
)

type Level int

const (
	DEBUG Level = iota
	NOTICE
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = []string{
	"DEBUG",
	"NOTICE",
	"INFO",
	"WARN",
	"ERROR",
	"FATAL",
}

// String returns the string representation of a logging level.
func (p Level) String() string {
	if p < 0 || int(p) >= len(levelNames) {
		return fmt.Sprintf("LEVEL(%d)", int(p))
	}
	return levelNames[p]
}

// LevelFromString parses a level name such as "debug" or "warn".
func LevelFromString(s string) (Level, error) {
	for i, name := range levelNames {
		if strings.EqualFold(s, name) {
			return Level(i), nil
		}
	}
	return -1, fmt.Errorf("invalid log level %q, expected one of: %s", s, strings.ToLower(strings.Join(levelNames, ", ")))
}
