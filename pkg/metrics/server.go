package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fabzclean/fabzclean-backend/pkg/logger"
)

// NewHandler exposes gatherer in the Prometheus text format.
func NewHandler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Serve runs a /metrics listener for background workers until ctx is done.
// An empty addr disables the listener.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, logg *logger.Logger) {
	if addr == "" {
		return
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           NewHandler(gatherer),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(logg.WithField(ctx, "addr", addr), "metrics listener stopped", err)
		}
	}()
}
