package cache

import (
	"log/slog"
	"time"
)

// Logger wraps slog.Logger with cache-specific events.
// This keeps field names consistent across eviction paths.
type Logger struct {
	*slog.Logger
}

// NewLogger wraps l. A nil l discards all output.
func NewLogger(l *slog.Logger) *Logger {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	return &Logger{
		Logger: l.With("component", "objcache"),
	}
}

// LogOverflow logs a single capacity eviction.
func (l *Logger) LogOverflow(key any, listSize, capacity int) {
	l.Debug("evicted lru entry",
		"key", key,
		"list_size", listSize,
		"capacity", capacity,
	)
}

// LogTrim logs the result of a TrimExpired call.
func (l *Logger) LogTrim(removed, maxCount int, idleTimeout time.Duration) {
	l.Debug("trimmed idle entries",
		"removed", removed,
		"max_count", maxCount,
		"idle_timeout", idleTimeout,
	)
}

// LogSweep logs a background sweep that removed entries.
func (l *Logger) LogSweep(removed int, listSize int) {
	l.Info("idle sweep completed",
		"removed", removed,
		"list_size", listSize,
	)
}

// LogRefcountUnderflow logs an unpin of an entry that was not pinned.
// The refcount is clamped at zero.
func (l *Logger) LogRefcountUnderflow(key any) {
	l.Warn("unpin without matching pin",
		"key", key,
	)
}

// LogClear logs a full teardown.
func (l *Logger) LogClear(removed int) {
	l.Info("cache cleared",
		"removed", removed,
	)
}
