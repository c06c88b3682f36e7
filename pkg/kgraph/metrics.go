package kgraph

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("kgraph")

var (
	// opTotal counts facade operations by outcome
	opTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kgraph_operations_total",
		Help: "Total graph operations by operation and result",
	}, []string{"operation", "result"})

	// opDuration tracks operation latency including lock wait
	opDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kgraph_operation_duration_seconds",
		Help:    "Graph operation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // 10us to ~2.6s
	}, []string{"operation"})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kgraph_cache_lookups_total",
		Help: "Query cache lookups by operation and result (hit, miss)",
	}, []string{"operation", "result"})

	graphNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kgraph_nodes",
		Help: "Number of nodes in the graph",
	})

	graphEdges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kgraph_edges",
		Help: "Number of edges in the graph",
	})
)

// begin starts a span for op and returns a function that ends it and
// records metrics. Call the returned function exactly once with the
// operation's error.
func begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "kgraph."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		result := resultLabel(err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("kgraph.result", result))
		span.End()

		opDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		opTotal.WithLabelValues(op, result).Inc()
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNodeNotFound):
		return "not_found"
	case errors.Is(err, ErrUnknownEndpoint):
		return "unknown_endpoint"
	case errors.Is(err, ErrNoPath):
		return "no_path"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	case errors.Is(err, ErrClosed):
		return "closed"
	}
	return "error"
}
