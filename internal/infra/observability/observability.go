// Package observability provides lightweight in-process tracing spans and
// Prometheus metrics for the scheduler, cache, and propagator.
package observability

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Trace Spans ────────────────────────────────────────────────────────────
// Lightweight span tracking without an external OpenTelemetry SDK
// dependency: enough to correlate a get_exercise_batch/record_trial call
// with its duration and outcome in logs.

// SpanKind classifies a span.
type SpanKind int

const (
	SpanInternal SpanKind = iota
	SpanServer
	SpanClient
)

// Span represents a unit of work within a request.
type Span struct {
	TraceID   string            `json:"trace_id"`
	SpanID    string            `json:"span_id"`
	ParentID  string            `json:"parent_id,omitempty"`
	Operation string            `json:"operation"`
	Kind      SpanKind          `json:"kind"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time,omitempty"`
	Duration  time.Duration     `json:"duration,omitempty"`
	Status    SpanStatus        `json:"status"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// SpanStatus indicates success/failure.
type SpanStatus int

const (
	SpanOK SpanStatus = iota
	SpanError
)

// Tracer stores recent spans in a ring buffer for inspection and export.
type Tracer struct {
	mu       sync.Mutex
	spans    []Span
	maxSpans int
	enabled  bool
}

// TracerConfig configures the tracer.
type TracerConfig struct {
	Enabled  bool
	MaxSpans int // ring buffer size (default 10_000)
}

// DefaultTracerConfig returns production defaults.
func DefaultTracerConfig() TracerConfig {
	return TracerConfig{Enabled: true, MaxSpans: 10_000}
}

// NewTracer creates a new tracer.
func NewTracer(cfg TracerConfig) *Tracer {
	return &Tracer{
		spans:    make([]Span, 0, cfg.MaxSpans),
		maxSpans: cfg.MaxSpans,
		enabled:  cfg.Enabled,
	}
}

// StartSpan begins a new span with the given operation name. The caller
// must call EndSpan when done.
func (t *Tracer) StartSpan(ctx context.Context, operation string, attrs map[string]string) *Span {
	if !t.enabled {
		return &Span{Operation: operation}
	}
	return &Span{
		TraceID:   traceIDFromContext(ctx),
		SpanID:    generateID(),
		ParentID:  spanIDFromContext(ctx),
		Operation: operation,
		Kind:      SpanInternal,
		StartTime: time.Now(),
		Status:    SpanOK,
		Attrs:     attrs,
	}
}

// EndSpan completes a span and records it.
func (t *Tracer) EndSpan(span *Span, err error) {
	if !t.enabled || span == nil {
		return
	}

	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	if err != nil {
		span.Status = SpanError
		if span.Attrs == nil {
			span.Attrs = make(map[string]string)
		}
		span.Attrs["error"] = err.Error()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.spans) >= t.maxSpans {
		t.spans = t.spans[1:]
	}
	t.spans = append(t.spans, *span)
}

// Spans returns a copy of the most recent spans, up to limit.
func (t *Tracer) Spans(limit int) []Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	if limit <= 0 || limit > len(t.spans) {
		limit = len(t.spans)
	}
	start := len(t.spans) - limit
	out := make([]Span, limit)
	copy(out, t.spans[start:])
	return out
}

// SpanCount returns the number of recorded spans.
func (t *Tracer) SpanCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.spans)
}

// Reset clears all recorded spans.
func (t *Tracer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans = t.spans[:0]
}

// ─── Context Helpers ────────────────────────────────────────────────────────

type contextKey string

const (
	traceIDKey contextKey = "trane-trace-id"
	spanIDKey  contextKey = "trane-span-id"
)

// WithTraceID returns a context carrying traceID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// WithSpanID returns a context carrying spanID.
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, spanIDKey, spanID)
}

func traceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return generateID()
}

func spanIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(spanIDKey).(string); ok {
		return v
	}
	return ""
}

// generateID creates a unique ID for correlating trace/span identifiers
// across logs.
func generateID() string {
	return uuid.NewString()
}

// ─── Prometheus Metrics ─────────────────────────────────────────────────────

// BatchesServed counts completed get_exercise_batch calls.
var BatchesServed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "trane",
	Subsystem: "scheduler",
	Name:      "batches_served_total",
	Help:      "Total number of exercise batches returned by the scheduler.",
})

// BatchFillRatio observes how close a returned batch came to BatchSize.
var BatchFillRatio = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "trane",
	Subsystem: "scheduler",
	Name:      "batch_fill_ratio",
	Help:      "Ratio of exercises returned to the configured batch size.",
	Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
})

// TraversalDuration observes the latency of a whole GetExerciseBatch call
// (traversal, bucketing, sampling and manifest resolution).
var TraversalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "trane",
	Subsystem: "scheduler",
	Name:      "traversal_duration_seconds",
	Help:      "Time spent in GetExerciseBatch per batch request.",
	Buckets:   prometheus.DefBuckets,
})

// CacheHits counts unit-score cache hits.
var CacheHits = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "trane",
	Subsystem: "unitcache",
	Name:      "hits_total",
	Help:      "Unit-score cache hits.",
})

// CacheMisses counts unit-score cache misses (triggering recomputation).
var CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "trane",
	Subsystem: "unitcache",
	Name:      "misses_total",
	Help:      "Unit-score cache misses.",
})

// CacheInvalidations counts explicit cache invalidations.
var CacheInvalidations = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "trane",
	Subsystem: "unitcache",
	Name:      "invalidations_total",
	Help:      "Cache entries invalidated by record_trial/record_reward.",
})

// PropagationDepth observes how many units a single propagation call
// reached before stopping.
var PropagationDepth = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "trane",
	Subsystem: "propagator",
	Name:      "visited_units",
	Help:      "Number of units visited by a single reward propagation call.",
	Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34},
})

// TrialsRecorded counts record_trial calls.
var TrialsRecorded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "trane",
	Subsystem: "scheduler",
	Name:      "trials_recorded_total",
	Help:      "Total number of trials recorded via record_trial.",
})
