package cache

import (
	"log/slog"
	"time"

	"github.com/jmgilman/go/errors"

	"objcache/internal/bucket"
)

// NoTimeout disables idle trimming.
const NoTimeout time.Duration = 0

// DefaultTrimBatchSize is the sweeper's maxCount when Config.TrimBatchSize is unset.
const DefaultTrimBatchSize = 256

// Config controls cache capacity, table width and idle trimming.
//
// Zero values are usable:
//   - Capacity <= 0 means "unbounded" (Put never evicts)
//   - Buckets <= 0 selects bucket.DefaultBuckets
//   - IdleTimeout == NoTimeout disables trimming
//   - SweepInterval <= 0 disables the background sweeper (TrimExpired still works)
type Config struct {
	// Capacity is the number of unpinned entries the LRU list may hold
	// before Put evicts its tail. Pinned entries do not count.
	Capacity int

	// Buckets is the hash table width, rounded up to a power of two.
	Buckets int

	IdleTimeout   time.Duration
	SweepInterval time.Duration
	// TrimBatchSize bounds how many entries a single sweep removes.
	TrimBatchSize int

	// Clock is the time source for access stamps. Defaults to time.Now.
	Clock func() time.Time

	// Logger receives eviction and trim events. Defaults to discarding.
	Logger *slog.Logger
}

// Validate reports configuration combinations the cache cannot honor.
func (c Config) Validate() error {
	if c.IdleTimeout < 0 {
		return errors.WithContext(
			errors.New(errors.CodeInvalidConfig, "idle timeout must not be negative"),
			"idle_timeout", c.IdleTimeout.String(),
		)
	}
	if c.SweepInterval > 0 && c.IdleTimeout == NoTimeout {
		return errors.WithContext(
			errors.New(errors.CodeInvalidConfig, "sweep interval requires an idle timeout"),
			"sweep_interval", c.SweepInterval.String(),
		)
	}
	return nil
}

func (c Config) trimBatchSize() int {
	if c.TrimBatchSize <= 0 {
		return DefaultTrimBatchSize
	}
	return c.TrimBatchSize
}

func (c Config) clock() func() time.Time {
	if c.Clock == nil {
		return time.Now
	}
	return c.Clock
}

// Option configures the key-typed parts of a cache.
type Option[K comparable] func(*options[K])

type options[K comparable] struct {
	hasher bucket.Hasher[K]
}

// WithHasher overrides the key hash function. The default is xxhash for
// string keys and maphash for everything else.
func WithHasher[K comparable](h bucket.Hasher[K]) Option[K] {
	return func(o *options[K]) {
		o.hasher = h
	}
}
