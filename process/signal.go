package process

import "strconv"

// Signal is a POSIX signal number. The zero value means no signal.
type Signal int

const (
	SIGHUP  Signal = 1
	SIGINT  Signal = 2
	SIGQUIT Signal = 3
	SIGILL  Signal = 4
	SIGABRT Signal = 6
	SIGFPE  Signal = 8
	SIGKILL Signal = 9
	SIGSEGV Signal = 11
	SIGPIPE Signal = 13
	SIGALRM Signal = 14
	SIGTERM Signal = 15
)

// signalTable holds the signals whose numbers agree across the POSIX
// platforms we build for. Lookups go both ways through it.
var signalTable = []struct {
	sig  Signal
	name string
}{
	{SIGHUP, "SIGHUP"},
	{SIGINT, "SIGINT"},
	{SIGQUIT, "SIGQUIT"},
	{SIGILL, "SIGILL"},
	{SIGABRT, "SIGABRT"},
	{SIGFPE, "SIGFPE"},
	{SIGKILL, "SIGKILL"},
	{SIGSEGV, "SIGSEGV"},
	{SIGPIPE, "SIGPIPE"},
	{SIGALRM, "SIGALRM"},
	{SIGTERM, "SIGTERM"},
}

var (
	signalsByName   = make(map[string]Signal, len(signalTable))
	signalsByNumber = make(map[Signal]string, len(signalTable))
)

func init() {
	for _, row := range signalTable {
		signalsByName[row.name] = row.sig
		signalsByNumber[row.sig] = row.name
	}
}

// ParseSignal looks up a signal by its name, e.g. "SIGTERM".
func ParseSignal(name string) (Signal, bool) {
	sig, ok := signalsByName[name]
	return sig, ok
}

// String returns the signal name, falling back to the platform's own name
// and then to the bare number.
func (s Signal) String() string {
	if name, ok := signalsByNumber[s]; ok {
		return name
	}
	if name := platformSignalName(s); name != "" {
		return name
	}
	return strconv.Itoa(int(s))
}
