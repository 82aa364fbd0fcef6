package backup

import (
	"github.com/hupe1980/hamtree"
)

type options struct {
	compression Compression
	bytesPerSec int
	logger      *hamtree.Logger
}

func applyOptions(opts []Option) options {
	o := options{
		compression: CompressionZstd,
		logger:      hamtree.NoopLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = hamtree.NoopLogger()
	}
	return o
}

// Option configures Export and Import.
type Option func(*options)

// WithCompression selects the blob codec used by Export. Import reads the
// codec from the manifest.
func WithCompression(c Compression) Option {
	return func(o *options) { o.compression = c }
}

// WithRateLimit caps the uncompressed bytes per second read or written
// across all files. Zero disables the limit.
func WithRateLimit(bytesPerSec int) Option {
	return func(o *options) { o.bytesPerSec = bytesPerSec }
}

// WithLogger configures progress logging.
func WithLogger(l *hamtree.Logger) Option {
	return func(o *options) { o.logger = l }
}
