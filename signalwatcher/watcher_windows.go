package signalwatcher

import (
	"context"
	"os"
	"os/signal"
)

// Watch calls callback with QUIT for every interrupt until ctx is done.
func Watch(ctx context.Context, callback func(Signal)) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt)
	defer signal.Stop(signals)

	for {
		select {
		case <-signals:
			callback(QUIT)
		case <-ctx.Done():
			return
		}
	}
}
