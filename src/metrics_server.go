package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/ryansname/suntracker/src/telemetry"
)

// logWriter sends access logs through the standard logger so they follow the debug console
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	log.Print(string(p))
	return len(p), nil
}

// newMetricsRouter serves the JSON snapshot the visualizer polls and the Prometheus metrics
func newMetricsRouter(metrics *telemetry.Metrics) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", snapshotHandler(metrics)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	h := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet}),
	)(r)
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(h)
	return handlers.LoggingHandler(logWriter{}, h)
}

func snapshotHandler(metrics *telemetry.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(metrics.Snapshot().Payload()); err != nil {
			log.Printf("Metrics server: encode snapshot: %v\n", err)
		}
	}
}

// metricsServerWorker listens on addr and serves at most workers connections at a time
func metricsServerWorker(ctx context.Context, addr string, workers int, metrics *telemetry.Metrics) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics server listen on %s: %w", addr, err)
	}
	log.Printf("Metrics server listening on %s\n", ln.Addr())
	return serveMetrics(ctx, ln, workers, metrics)
}

func serveMetrics(ctx context.Context, ln net.Listener, workers int, metrics *telemetry.Metrics) error {
	server := &http.Server{
		Handler:           newMetricsRouter(metrics),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := server.Serve(netutil.LimitListener(ln, workers))
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
