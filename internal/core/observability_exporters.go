package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultExpvarName is the expvar key the ledger metrics publish under when no
// explicit name is given.
const DefaultExpvarName = "teatrace_ledger_metrics"

var expvarSeq uint64

// OperationStats aggregates the outcomes of one ledger operation.
type OperationStats struct {
	Success    int64   `json:"success_total"`
	Errors     int64   `json:"error_total"`
	DurationMS float64 `json:"duration_ms_total"`
}

// ExpvarMetricsRecorder is a process-local MetricsRecorder for deployments
// that run without a Prometheus scrape target. Aggregates are published on the
// expvar page under a single key.
type ExpvarMetricsRecorder struct {
	name string
	mu   sync.Mutex
	ops  map[string]OperationStats
}

// ExpvarMetricsSnapshot is the value rendered on the expvar page.
type ExpvarMetricsSnapshot struct {
	Operations map[string]OperationStats `json:"operations"`
	RecordedAt time.Time                 `json:"recorded_at"`
}

// NewExpvarMetricsRecorder publishes a recorder under name, or under
// DefaultExpvarName when name is empty. Names already taken on the expvar page
// get a sequence suffix rather than panicking on republish.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = DefaultExpvarName
	}
	if expvar.Get(name) != nil {
		name = fmt.Sprintf("%s_%d", name, atomic.AddUint64(&expvarSeq, 1))
	}
	rec := &ExpvarMetricsRecorder{
		name: name,
		ops:  make(map[string]OperationStats),
	}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar key the recorder publishes under.
func (r *ExpvarMetricsRecorder) Name() string {
	return r.name
}

// Snapshot copies the aggregates out from under the lock.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	ops := make(map[string]OperationStats, len(r.ops))
	for op, stats := range r.ops {
		ops[op] = stats
	}
	return ExpvarMetricsSnapshot{
		Operations: ops,
		RecordedAt: time.Now().UTC(),
	}
}

// OperationNames returns the sorted set of operations observed so far.
func (r *ExpvarMetricsRecorder) OperationNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.ops))
	for op := range r.ops {
		names = append(names, op)
	}
	sort.Strings(names)
	return names
}

// Observe implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.mu.Lock()
	stats := r.ops[operation]
	stats.DurationMS += float64(duration) / float64(time.Millisecond)
	if success {
		stats.Success++
	} else {
		stats.Errors++
	}
	r.ops[operation] = stats
	r.mu.Unlock()
}

// SpanRecord is one completed operation span as the JSON tracer emits it.
type SpanRecord struct {
	Operation  string    `json:"operation"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS float64   `json:"duration_ms"`
}

// JSONTracer writes one JSON line per completed ledger operation and keeps the
// records in memory for inspection. A nil writer keeps records only.
type JSONTracer struct {
	mu      sync.Mutex
	records []SpanRecord
	enc     *json.Encoder
}

// NewJSONTracer constructs a tracer emitting span lines to w.
func NewJSONTracer(w io.Writer) *JSONTracer {
	t := &JSONTracer{}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Records returns a copy of every span completed so far.
func (t *JSONTracer) Records() []SpanRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]SpanRecord, len(t.records))
	copy(out, t.records)
	return out
}

// Start implements Tracer.
func (t *JSONTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonSpan{
		tracer:    t,
		operation: operation,
		started:   time.Now().UTC(),
	}
}

func (t *JSONTracer) record(rec SpanRecord) {
	t.mu.Lock()
	t.records = append(t.records, rec)
	if t.enc != nil {
		_ = t.enc.Encode(rec)
	}
	t.mu.Unlock()
}

type jsonSpan struct {
	tracer    *JSONTracer
	operation string
	started   time.Time
}

func (s *jsonSpan) End(err error) {
	rec := SpanRecord{
		Operation:  s.operation,
		Outcome:    "success",
		StartedAt:  s.started,
		DurationMS: float64(time.Now().UTC().Sub(s.started)) / float64(time.Millisecond),
	}
	if err != nil {
		rec.Outcome = "error"
		rec.Error = err.Error()
	}
	s.tracer.record(rec)
}
