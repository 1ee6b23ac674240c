package entitydb

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/entitydb/blobstore"
	"github.com/hupe1980/entitydb/blobvault"
	"github.com/hupe1980/entitydb/internal/env"
	"github.com/hupe1980/entitydb/internal/fs"
	"github.com/hupe1980/entitydb/internal/resource"
)

// Durability controls the durability guarantees of commits.
type Durability = env.Durability

const (
	// DurabilitySync calls fsync after every commit.
	DurabilitySync = env.DurabilitySync
	// DurabilityAsync relies on the OS page cache.
	DurabilityAsync = env.DurabilityAsync
)

// Compression selects the codec of blob content in the vault.
type Compression = blobvault.Compression

const (
	CompressionNone = blobvault.CompressionNone
	CompressionLZ4  = blobvault.CompressionLZ4
	CompressionZSTD = blobvault.CompressionZSTD
)

// ResourceConfig bounds the resources of repair and backup work.
type ResourceConfig = resource.Config

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	registerer       prometheus.Registerer
	durability       Durability
	fileSize         int64
	fs               fs.FileSystem
	compression      Compression
	sweepRange       int64
	inPlaceLimit     int
	objectStore      blobstore.Store
	resources        ResourceConfig
	repairOnOpen     bool
	openPlan         Plan
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel sets a text logger to stderr at the given level.
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector sets the collector of facade operations.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithMetricsRegisterer registers the prometheus metrics of repairs and
// backups on r.
func WithMetricsRegisterer(r prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = r
	}
}

// WithDurability sets the commit durability. The default is DurabilitySync.
func WithDurability(d Durability) Option {
	return func(o *options) {
		o.durability = d
	}
}

// WithLogFileSize sets the size at which log files are rotated.
func WithLogFileSize(n int64) Option {
	return func(o *options) {
		o.fileSize = n
	}
}

// WithFileSystem sets the file system of the log and the blob vault.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		o.fs = fsys
	}
}

// WithCompression sets the compression of new blob content.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithSweepRange sets how many handles above the last issued one are
// checked for leftover blob content on open.
func WithSweepRange(n int64) Option {
	return func(o *options) {
		o.sweepRange = n
	}
}

// WithInPlaceBlobLimit sets the largest string blob kept in its row.
func WithInPlaceBlobLimit(n int) Option {
	return func(o *options) {
		o.inPlaceLimit = n
	}
}

// WithObjectVault stores blob content in store instead of the blobs
// directory. Such content is not part of file backups.
func WithObjectVault(store blobstore.Store) Option {
	return func(o *options) {
		o.objectStore = store
	}
}

// WithResources bounds the memory, workers and IO of maintenance work.
func WithResources(cfg ResourceConfig) Option {
	return func(o *options) {
		o.resources = cfg
	}
}

// WithRepairOnOpen controls whether Open runs plan. Open runs DefaultPlan
// unless disabled.
//
// When disabled, or when plan leaves out FixFloats, types created by older
// stores may still hold legacy float encodings. Writing a negative float or
// double to such a type fails with ErrLegacyFloats until the fix-up has run.
func WithRepairOnOpen(enabled bool, plan ...Plan) Option {
	return func(o *options) {
		o.repairOnOpen = enabled
		if len(plan) > 0 {
			o.openPlan = plan[0]
		}
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		durability:       DurabilitySync,
		fileSize:         env.DefaultFileSize,
		fs:               fs.Default,
		compression:      CompressionNone,
		sweepRange:       blobvault.DefaultSweepRange,
		inPlaceLimit:     -1,
		repairOnOpen:     true,
		openPlan:         DefaultPlan(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
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
