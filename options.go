package hamtree

import (
	"log/slog"

	"github.com/hupe1980/hamtree/internal/fs"
)

// Durability controls when appended data reaches stable storage.
type Durability int

const (
	// DurabilityAsync relies on the OS page cache.
	DurabilityAsync Durability = iota
	// DurabilitySync calls fsync after every push.
	DurabilitySync
)

const (
	defaultCacheSize    = 1024
	defaultKeyCacheSize = 4096
)

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	durability       Durability
	cacheSize        int
	keyCacheSize     int
	dedup            bool
	mmap             bool
	readOnly         bool
	fs               fs.FileSystem
}

func defaultOptions() options {
	return options{
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		durability:       DurabilityAsync,
		cacheSize:        defaultCacheSize,
		keyCacheSize:     defaultKeyCacheSize,
		dedup:            true,
		fs:               fs.Default,
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.fs == nil {
		o.fs = fs.Default
	}
	return o
}

// Option configures Create and Open.
type Option func(*options)

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := hamtree.NewJSONLogger(slog.LevelDebug)
//	f, _ := hamtree.Open[uint32]("./data", hamtree.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector. Pass nil to disable
// metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithDurability selects whether every push is fsynced before it returns.
func WithDurability(d Durability) Option {
	return func(o *options) {
		o.durability = d
	}
}

// WithCacheSize sets how many decoded record runs are kept across calls.
// Zero disables the cache.
func WithCacheSize(n int) Option {
	return func(o *options) {
		o.cacheSize = n
	}
}

// WithKeyCacheSize sets how many string keys are memoized in each direction.
// It has no effect on integer forests.
func WithKeyCacheSize(n int) Option {
	return func(o *options) {
		o.keyCacheSize = n
	}
}

// WithDeduplication toggles reuse of identical nodes within one save.
// Disabling it still produces a correct, larger stash.
func WithDeduplication(enabled bool) Option {
	return func(o *options) {
		o.dedup = enabled
	}
}

// WithMmap serves stash reads from a read-only memory mapping.
func WithMmap(enabled bool) Option {
	return func(o *options) {
		o.mmap = enabled
	}
}

// WithReadOnly opens the forest without append handles. Push returns
// ErrReadOnly, and roots appended by another writer become visible on the
// next call that names them.
func WithReadOnly() Option {
	return func(o *options) {
		o.readOnly = true
	}
}

// withFileSystem swaps the filesystem, for fault injection in tests.
func withFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		o.fs = fsys
	}
}
