package framealloc

import "github.com/go-logr/logr"

type config struct {
	sink     Sink
	log      logr.Logger
	strategy StrategyKind
	pooling  bool
	classes  SizeClasses
}

func newConfig(opts []Option) config {
	cfg := config{
		sink:     NopSink{},
		log:      logr.Discard(),
		strategy: Bump,
		pooling:  true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.classes == nil {
		cfg.classes = DefaultSizeClasses()
	}
	return cfg
}

// Option configures an Arena, TrackedArena or PooledArena.
type Option func(cfg *config)

// WithSink attaches a telemetry domain. Defaults to NopSink.
func WithSink(s Sink) Option {
	return func(cfg *config) {
		if s == nil {
			s = NopSink{}
		}
		cfg.sink = s
	}
}

// WithLogger sets the logger. Defaults to logr.Discard().
func WithLogger(l logr.Logger) Option {
	return func(cfg *config) {
		cfg.log = l
	}
}

// WithStrategy selects the arena implementation used by NewStrategy and
// NewPooledArena. Defaults to Bump.
func WithStrategy(k StrategyKind) Option {
	return func(cfg *config) {
		cfg.strategy = k
	}
}

// WithPooling enables or disables size-class recycling in a PooledArena.
// With pooling disabled every call passes straight through to the
// underlying strategy.
func WithPooling(enabled bool) Option {
	return func(cfg *config) {
		cfg.pooling = enabled
	}
}

// WithSizeClasses replaces the size-class table used by a PooledArena.
func WithSizeClasses(t SizeClasses) Option {
	return func(cfg *config) {
		cfg.classes = t
	}
}
