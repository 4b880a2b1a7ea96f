package logger

import "strconv"

// Field is a key/value pair printed after the message of every line from a
// logger returned by WithFields.
type Field interface {
	Key() string
	String() string
}

type Fields []Field

type field struct {
	key   string
	value string
}

func (f field) Key() string    { return f.key }
func (f field) String() string { return f.value }

func StringField(key, value string) Field {
	return field{key: key, value: value}
}

func IntField(key string, value int) Field {
	return field{key: key, value: strconv.Itoa(value)}
}

// ErrorField is the error as a field keyed "error".
func ErrorField(err error) Field {
	if err == nil {
		return field{key: "error", value: "<nil>"}
	}
	return field{key: "error", value: err.Error()}
}
