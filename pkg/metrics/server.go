package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/reelforge-backend/pkg/logger"
)

const shutdownGrace = 5 * time.Second

// Handler serves the collectors in g on /metrics.
func Handler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return mux
}

// Serve exposes g on addr until ctx ends. It blocks, so callers start it in a goroutine.
func Serve(ctx context.Context, logg *logger.Logger, addr string, g prometheus.Gatherer) {
	server := &http.Server{Addr: addr, Handler: Handler(g), ReadHeaderTimeout: shutdownGrace}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logg.Info(logg.WithField(ctx, "addr", addr), "metrics.listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "metrics server stopped", err)
	}
}
