package framealloc

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const tracerName = "github.com/pavanmanishd/framealloc"

// Trimmable is satisfied by PooledArena and SafeArena.
type Trimmable interface {
	TrimPools() int
	PooledBytes() int
}

// Trimmer runs TrimPools on an idle arena at a bounded rate, so callers can
// offer a trim at every frame boundary without paying for one each time.
// Trimmer is driven by the goroutine that owns the arena.
type Trimmer struct {
	arena   Trimmable
	limiter *rate.Limiter
	tracer  trace.Tracer
	log     logr.Logger
}

// TrimmerOption configures a Trimmer.
type TrimmerOption func(t *Trimmer)

// WithTracer sets the tracer trims are recorded with. Defaults to the
// global otel tracer provider.
func WithTracer(tracer trace.Tracer) TrimmerOption {
	return func(t *Trimmer) {
		t.tracer = tracer
	}
}

// WithTrimLogger sets the logger for trim results.
func WithTrimLogger(l logr.Logger) TrimmerOption {
	return func(t *Trimmer) {
		t.log = l
	}
}

// NewTrimmer allows at most one trim of arena per every. A non-positive
// every lets every MaybeTrim through.
func NewTrimmer(arena Trimmable, every time.Duration, opts ...TrimmerOption) *Trimmer {
	limit := rate.Inf
	if every > 0 {
		limit = rate.Every(every)
	}
	t := &Trimmer{
		arena:   arena,
		limiter: rate.NewLimiter(limit, 1),
		tracer:  otel.Tracer(tracerName),
		log:     logr.Discard(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// MaybeTrim trims when something is pooled and the rate allows it. It
// reports the reclaimed bytes and whether a trim ran.
func (t *Trimmer) MaybeTrim(ctx context.Context) (int, bool) {
	if t.arena.PooledBytes() == 0 || !t.limiter.Allow() {
		return 0, false
	}
	return t.Trim(ctx), true
}

// Trim runs TrimPools unconditionally inside a span.
func (t *Trimmer) Trim(ctx context.Context) int {
	_, span := t.tracer.Start(ctx, "framealloc.TrimPools")
	defer span.End()

	before := t.arena.PooledBytes()
	reclaimed := t.arena.TrimPools()
	after := t.arena.PooledBytes()
	span.SetAttributes(
		attribute.Int("framealloc.pooled_before", before),
		attribute.Int("framealloc.reclaimed", reclaimed),
		attribute.Int("framealloc.pooled_after", after),
	)
	t.log.V(1).Info("trim",
		"reclaimed", humanize.IBytes(uint64(reclaimed)),
		"pooled", humanize.IBytes(uint64(after)))
	return reclaimed
}
