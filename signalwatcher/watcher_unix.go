//go:build !windows

package signalwatcher

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Watch calls callback for every SIGHUP (as HUP) and for every interrupt,
// SIGTERM or SIGQUIT (as QUIT) until ctx is done.
func Watch(ctx context.Context, callback func(Signal)) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
		syscall.SIGQUIT)
	defer signal.Stop(signals)

	for {
		select {
		case sig := <-signals:
			if sig == syscall.SIGHUP {
				callback(HUP)
			} else {
				callback(QUIT)
			}
		case <-ctx.Done():
			return
		}
	}
}
