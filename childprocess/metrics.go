package childprocess

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "jsrt"
	metricsSubsystem = "child_process"
)

var (
	childrenSpawned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "spawned_total",
		Help:      "Count of child processes started",
	})
	spawnFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "spawn_failures_total",
		Help:      "Count of child processes that failed to start",
	})
	childrenExited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "exits_total",
		Help:      "Count of child processes reaped, by how they ended",
	}, []string{"state"})
	killsSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "kills_total",
		Help:      "Count of kill requests accepted",
	})
	bytesPumped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "output_bytes_total",
		Help:      "Bytes read from child output pipes",
	}, []string{"stream"})
)

// countingWriter adds the size of each write to a counter.
type countingWriter struct {
	w io.Writer
	c prometheus.Counter
}

func (cw countingWriter) Write(p []byte) (int, error) {
	cw.c.Add(float64(len(p)))
	if cw.w == nil {
		return len(p), nil
	}
	return cw.w.Write(p)
}
