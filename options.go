package catidx

import (
	"github.com/davidvella/catidx/loader"
	"github.com/davidvella/catidx/metrics"
)

// Progress is reported after every committed load batch.
type Progress = loader.Progress

// options defines all configuration options for a build.
type options struct {
	// Load options
	batchSize int            // Rows per committed batch
	progress  func(Progress) // Called after every committed batch
	wrapSink  func(loader.Sink) loader.Sink

	// Index build options
	runSize int // Entries sorted in memory per spill run

	// Scan options
	queueSize  int    // Capacity of the scanner to staging channel
	stagingDir string // Directory for staging files and spill runs
	rateLimit  int    // Compressed catalog bytes per second, zero for unlimited

	logger  *Logger
	metrics *metrics.Registry
}

// Option is a function that configures a build.
type Option func(*options)

// WithBatchSize sets the number of rows committed per batch.
func WithBatchSize(n int) Option {
	return func(o *options) {
		o.batchSize = n
	}
}

// WithRunSize sets the number of entries sorted in memory before spilling.
func WithRunSize(n int) Option {
	return func(o *options) {
		o.runSize = n
	}
}

// WithQueueSize sets how many extracted entries may wait for the staging writer.
func WithQueueSize(n int) Option {
	return func(o *options) {
		o.queueSize = n
	}
}

// WithStagingDir sets where staging files and spill runs are written.
func WithStagingDir(dir string) Option {
	return func(o *options) {
		o.stagingDir = dir
	}
}

// WithLogger sets the logger.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithProgress sets a callback invoked after every committed batch.
func WithProgress(fn func(Progress)) Option {
	return func(o *options) {
		o.progress = fn
	}
}

// WithMetrics records build metrics in r.
func WithMetrics(r *metrics.Registry) Option {
	return func(o *options) {
		o.metrics = r
	}
}

// WithScanRateLimit caps catalog reads at bytesPerSec compressed bytes.
func WithScanRateLimit(bytesPerSec int) Option {
	return func(o *options) {
		o.rateLimit = bytesPerSec
	}
}

// WithSink wraps the store the loader writes to.
func WithSink(wrap func(loader.Sink) loader.Sink) Option {
	return func(o *options) {
		o.wrapSink = wrap
	}
}

// defaultOptions returns the default configuration.
func defaultOptions() options {
	return options{
		batchSize: loader.DefaultBatchSize,
		runSize:   1_000_000,
		queueSize: 1024,
		logger:    NewLogger(nil),
	}
}
