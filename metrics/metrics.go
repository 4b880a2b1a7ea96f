// Package metrics serves the runtime's Prometheus metrics and a health check
// over HTTP.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/buildkite/jsrt/logger"
	"github.com/buildkite/jsrt/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

var buildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "jsrt",
	Name:      "build_info",
	Help:      "Version of the running jsrt binary",
}, []string{"version", "build"})

func init() {
	buildInfo.WithLabelValues(version.Version(), version.BuildVersion()).Set(1)
}

// Handler routes /metrics to the Prometheus default registry and /healthz to
// a plain "ok".
func Handler(l logger.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(
		// Scrapers are frequent, so only log at Debug level.
		loggerMiddleware("Metrics", l.Debug),
		middleware.Recoverer,
	)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if _, err := w.Write([]byte("ok\n")); err != nil {
			l.Error("Metrics: couldn't write health response: %v", err)
		}
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// Serve listens on addr and serves Handler until ctx is done.
func Serve(ctx context.Context, l logger.Logger, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening for metrics on %s: %w", addr, err)
	}
	return serve(ctx, l, ln)
}

func serve(ctx context.Context, l logger.Logger, ln net.Listener) error {
	srv := &http.Server{
		Handler:           Handler(l),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		errs <- srv.Serve(ln)
	}()
	l.Info("Serving metrics on http://%s/metrics", ln.Addr())

	select {
	case err := <-errs:
		return err

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down metrics server: %w", err)
		}
		if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// loggerMiddleware logs the method, path and handle time of every request
// through logf.
func loggerMiddleware(prefix string, logf func(f string, v ...any)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t := time.Now()
			next.ServeHTTP(w, r)
			logf("%s:\t%s\t%s\t%s", prefix, r.Method, r.URL.Path, time.Since(t))
		})
	}
}
