// Command framestat drives a PooledArena with a synthetic per-frame workload
// and reports allocator telemetry, optionally exporting trim spans to
// jaeger.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/go-logr/stdr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"

	"github.com/pavanmanishd/framealloc"
)

const service = "framestat"

var (
	frames    = flag.Int("frames", 1000, "number of frames to simulate")
	perFrame  = flag.Int("allocs", 512, "allocations per frame")
	maxSize   = flag.Int("max-size", 4096, "largest allocation in bytes")
	freeRatio = flag.Float64("free-ratio", 0.5, "fraction of a frame's allocations freed out of order")
	trimEvery = flag.Duration("trim-every", 10*time.Millisecond, "minimum interval between trims")
	pooling   = flag.Bool("pooling", true, "enable size-class recycling")
	tracked   = flag.Bool("tracked", false, "use the tracked heap fallback instead of the bump allocator")
	jaegerURL = flag.String("jaeger", "", "jaeger collector endpoint, empty disables tracing")
	verbosity = flag.Int("v", 0, "log verbosity")
	seed      = flag.Int64("seed", 1, "workload random seed")
)

func tracerProvider(url string) (*tracesdk.TracerProvider, error) {
	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(url)))
	if err != nil {
		return nil, err
	}
	tp := tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(service),
			attribute.Int("frames", *frames),
		)),
	)
	return tp, nil
}

type allocation struct {
	ptr  unsafe.Pointer
	size int
}

func main() {
	flag.Parse()
	stdr.SetVerbosity(*verbosity)
	logger := stdr.New(log.New(os.Stderr, "", log.LstdFlags)).WithName(service)

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		s := <-sigint
		logger.Info("received signal", "signal", s.String())
		cancel()
	}()

	var tp *tracesdk.TracerProvider
	if *jaegerURL != "" {
		var err error
		if tp, err = tracerProvider(*jaegerURL); err != nil {
			log.Fatal(err)
		}
		otel.SetTracerProvider(tp)
	}

	strategy := framealloc.Bump
	if *tracked {
		strategy = framealloc.TrackedFallback
	}
	cache := framealloc.NewBlockCache(framealloc.WithCacheLogger(logger.WithName("cache")))
	root := framealloc.NewCounters("process", nil)
	frame := framealloc.NewCounters("frame", root)
	p := framealloc.NewPooledArena(cache,
		framealloc.WithStrategy(strategy),
		framealloc.WithPooling(*pooling),
		framealloc.WithSink(frame),
		framealloc.WithLogger(logger.WithName("arena")),
	)
	trimmer := framealloc.NewTrimmer(p, *trimEvery, framealloc.WithTrimLogger(logger.WithName("trim")))

	rng := rand.New(rand.NewSource(*seed))
	start := time.Now()
	reclaimed, trims, n := 0, 0, 0
	for ; n < *frames && ctx.Err() == nil; n++ {
		live := runFrame(p, rng)
		if r, ok := trimmer.MaybeTrim(ctx); ok {
			reclaimed += r
			trims++
		}
		for i := len(live) - 1; i >= 0; i-- {
			p.Deallocate(live[i].ptr, live[i].size)
		}
	}
	elapsed := time.Since(start)

	fmt.Printf("frames:     %d in %s\n", n, elapsed)
	fmt.Printf("strategy:   %s, pooling %v\n", strategy, *pooling)
	fmt.Printf("arena:      %s\n", p.Metrics())
	fmt.Printf("trims:      %d, reclaimed %s\n", trims, humanize.IBytes(uint64(reclaimed)))
	cs := cache.Stats()
	fmt.Printf("cache:      %d hits, %d misses, %d promotions, %d OS releases\n",
		cs.Hits, cs.Misses, cs.Promotions, cs.OSReleases)
	fmt.Printf("telemetry:  %s\n", root.Snapshot())

	p.ReleaseAll()
	cache.ReleaseAll()

	if tp != nil {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := errors.CombineErrors(tp.ForceFlush(sctx), tp.Shutdown(sctx)); err != nil {
			logger.Error(err, "shutdown tracer provider")
		}
	}
}

// runFrame allocates a frame's worth of scratch memory, frees part of it out
// of order and returns what is still live.
func runFrame(p *framealloc.PooledArena, rng *rand.Rand) []allocation {
	live := make([]allocation, 0, *perFrame)
	for i := 0; i < *perFrame; i++ {
		size := 1 + rng.Intn(*maxSize)
		live = append(live, allocation{ptr: p.Allocate(size), size: size})
	}
	for i := 0; i < int(float64(len(live))**freeRatio); i++ {
		j := rng.Intn(len(live))
		p.Deallocate(live[j].ptr, live[j].size)
		live[j] = live[len(live)-1]
		live = live[:len(live)-1]
	}
	return live
}
