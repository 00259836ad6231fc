package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"objcache/internal/cache"
)

func main() {
	// Signal-aware context is the root of ownership for long-lived background work.
	// When SIGINT/SIGTERM arrives, ctx is canceled and the workers wind down.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := run(ctx, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "objcache:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("objcache", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML config file")
	capacity := fs.Int("capacity", 0, "max unpinned entries before Put evicts")
	buckets := fs.Int("buckets", 0, "hash table width")
	idle := fs.Duration("idle-timeout", 0, "idle time before an entry may be trimmed")
	sweep := fs.Duration("sweep-interval", 0, "period of the idle sweeper")
	workers := fs.Int("workers", 0, "number of concurrent workers")
	keys := fs.Int("keys", 0, "size of the key space")
	duration := fs.Duration("duration", 0, "how long the workers run")
	logLevel := fs.String("log-level", "", "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadDemoConfig(*configPath)
	if err != nil {
		return err
	}

	// Flags set explicitly win over the file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "capacity":
			cfg.Capacity = *capacity
		case "buckets":
			cfg.Buckets = *buckets
		case "idle-timeout":
			cfg.IdleTimeout = *idle
		case "sweep-interval":
			cfg.SweepInterval = *sweep
		case "workers":
			cfg.Workers = *workers
		case "keys":
			cfg.Keys = *keys
		case "duration":
			cfg.Duration = *duration
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})
	if err := cfg.validate(); err != nil {
		return err
	}

	logger := newLogger(cfg)
	pool := newInstancePool(logger)

	c, err := cache.New[string, *instance](cfg.cacheConfig(logger), pool)
	if err != nil {
		return err
	}
	defer func() {
		// Close is idempotent; safe to call in defer.
		if err := c.Close(); err != nil {
			logger.Error("cache close", "error", err)
		}
	}()

	logger.Info("objcache demo starting",
		"capacity", cfg.Capacity,
		"buckets", cfg.Buckets,
		"idle_timeout", cfg.IdleTimeout,
		"sweep_interval", cfg.SweepInterval,
		"workers", cfg.Workers,
		"keys", cfg.Keys,
	)

	if err := runWorkers(ctx, c, pool, cfg); err != nil {
		return err
	}

	st := c.Stats()
	logger.Info("workers finished",
		"hits", st.Hits,
		"misses", st.Misses,
		"hit_ratio", fmt.Sprintf("%.3f", st.HitRatio()),
		"size", st.Size,
		"list_size", st.ListSize,
		"evictions", st.Evictions,
		"trims", st.Trims,
		"pins", st.Pins,
		"unpins", st.Unpins,
		"removals", st.Removals,
	)
	logger.Info("instances",
		"created", pool.created.Load(),
		"closed", pool.closed.Load(),
		"outstanding", pool.outstanding(),
	)

	c.Clear()
	fmt.Println("Done.")
	return nil
}
