// Package metrics exposes Prometheus metrics for the mirror agent.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// event outcomes
const (
	OutcomeUploaded  = "uploaded"
	OutcomeDirSynced = "dir_synced"
	OutcomeSkipped   = "skipped"
	OutcomeFiltered  = "filtered"
	OutcomeIgnored   = "ignored"
	OutcomeFailed    = "failed"
)

var (
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirrorbox_events_total",
			Help: "Filesystem events handled, by outcome",
		},
		[]string{"outcome"},
	)

	IdentityCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirrorbox_identity_cache_lookups_total",
			Help: "Identity cache lookups, by result",
		},
		[]string{"result"}, // "hit", "miss"
	)

	RemoteOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirrorbox_remote_ops_total",
			Help: "Remote directory operations, by operation and status",
		},
		[]string{"operation", "status"},
	)

	RemoteOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mirrorbox_remote_op_duration_seconds",
			Help:    "Remote directory operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	AmbiguousIdentities = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mirrorbox_ambiguous_identities_total",
			Help: "Identity lookups that matched more than one remote object",
		},
	)
)

// ObserveRemoteOp records one remote call started at start
func ObserveRemoteOp(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	RemoteOpsTotal.WithLabelValues(operation, status).Inc()
	RemoteOpDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Serve exposes /metrics on addr until ctx is done
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics server start", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
