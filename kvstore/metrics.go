package kvstore

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/secrepo/secrepo/types"
)

// Instrumented wraps a Store with prometheus counters and latency
// histograms per operation. Misses (absent entries and paths) count as
// their own outcome so they are not mistaken for failures.
type Instrumented struct {
	next Store

	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

// NewInstrumented wraps next and registers the collectors with reg.
func NewInstrumented(next Store, reg prometheus.Registerer) (*Instrumented, error) {
	i := &Instrumented{
		next: next,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "secrepo",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Store operations by type and outcome.",
		}, []string{"operation", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "secrepo",
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Store operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	for _, c := range []prometheus.Collector{i.operations, i.latency} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return i, nil
}

func (i *Instrumented) observe(op string, start time.Time, err error) {
	i.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	i.operations.WithLabelValues(op, outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, types.ErrNotFound) || errors.Is(err, types.ErrPathNotFound):
		return "miss"
	default:
		return "error"
	}
}

// List implements Store.
func (i *Instrumented) List(ctx context.Context, path string) ([]string, error) {
	start := time.Now()
	keys, err := i.next.List(ctx, path)
	i.observe("list", start, err)
	return keys, err
}

// Read implements Store.
func (i *Instrumented) Read(ctx context.Context, path string) (types.Document, error) {
	start := time.Now()
	doc, err := i.next.Read(ctx, path)
	i.observe("read", start, err)
	return doc, err
}

// Write implements Store.
func (i *Instrumented) Write(ctx context.Context, path string, doc types.Document) error {
	start := time.Now()
	err := i.next.Write(ctx, path, doc)
	i.observe("write", start, err)
	return err
}

// Delete implements Store.
func (i *Instrumented) Delete(ctx context.Context, path string) error {
	start := time.Now()
	err := i.next.Delete(ctx, path)
	i.observe("delete", start, err)
	return err
}
