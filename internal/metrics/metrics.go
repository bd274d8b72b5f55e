package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telhawk-systems/pktwatch/internal/model"
)

var (
	// Line metrics
	LinesRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pktwatch_lines_read_total",
			Help: "Total number of input lines read",
		},
	)

	LinesMatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pktwatch_lines_matched_total",
			Help: "Total number of lines that parsed into a record",
		},
	)

	LinesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pktwatch_lines_skipped_total",
			Help: "Total number of lines that were not packet lines",
		},
	)

	// Classification metrics
	VerdictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pktwatch_verdicts_total",
			Help: "Total number of records per verdict",
		},
		[]string{"verdict"},
	)

	// Run metrics
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pktwatch_run_duration_seconds",
			Help:    "Duration of analysis runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pktwatch_runs_total",
			Help: "Total number of analysis runs",
		},
		[]string{"status"},
	)

	// Sink metrics
	SinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pktwatch_sink_errors_total",
			Help: "Total number of failed sink deliveries",
		},
		[]string{"sink"},
	)
)

// Recorder counts pipeline progress. It satisfies pipeline.Observer.
type Recorder struct{}

func (Recorder) OnRecord(rec model.ClassifiedRecord) {
	LinesRead.Inc()
	LinesMatched.Inc()
	VerdictsTotal.WithLabelValues(rec.Verdict.Slug()).Inc()
}

func (Recorder) OnSkipped(n int) {
	LinesRead.Add(float64(n))
	LinesSkipped.Add(float64(n))
}

// ObserveRun records the outcome of a finished run.
func ObserveRun(d time.Duration, partial bool) {
	RunDuration.Observe(d.Seconds())
	status := "complete"
	if partial {
		status = "partial"
	}
	RunsTotal.WithLabelValues(status).Inc()
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
