package main

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"objcache/internal/cache"
)

// instance stands in for a pooled bean instance or connection: something the
// cache keeps warm and that must be closed once the cache drops it.
type instance struct {
	key     string
	id      int64
	created time.Time
	uses    atomic.Int64
}

// instancePool creates instances and closes them when the cache reports
// them as evicted or trimmed. It is the cache's OverflowListener.
type instancePool struct {
	log    *slog.Logger
	nextID atomic.Int64

	mu   sync.Mutex
	live map[string]*instance

	created atomic.Int64
	closed  atomic.Int64
}

func newInstancePool(log *slog.Logger) *instancePool {
	return &instancePool{
		log:  log,
		live: make(map[string]*instance),
	}
}

func (p *instancePool) create(key string) *instance {
	inst := &instance{
		key:     key,
		id:      p.nextID.Add(1),
		created: time.Now(),
	}

	p.mu.Lock()
	p.live[key] = inst
	p.mu.Unlock()

	p.created.Add(1)
	return inst
}

func (p *instancePool) close(key string) {
	p.mu.Lock()
	_, ok := p.live[key]
	delete(p.live, key)
	p.mu.Unlock()

	if ok {
		p.closed.Add(1)
	}
}

func (p *instancePool) outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.live)
}

func (p *instancePool) OnOverflow(key string) {
	p.close(key)
	p.log.Debug("instance evicted", "key", key)
}

func (p *instancePool) OnBatchOverflow(keys []string) {
	for _, k := range keys {
		p.close(k)
	}
	if len(keys) > 0 {
		p.log.Debug("idle instances trimmed", "count", len(keys))
	}
}

// runWorkers runs cfg.Workers goroutines for cfg.Duration. Each iteration
// pins an instance (creating it on a miss), uses it briefly, then either
// releases the pin or removes the instance outright.
func runWorkers(ctx context.Context, c *cache.Cache[string, *instance], pool *instancePool, cfg demoConfig) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for w := range cfg.Workers {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(uint64(w), uint64(time.Now().UnixNano())))
			for ctx.Err() == nil {
				key := "bean-" + strconv.Itoa(rng.IntN(cfg.Keys))

				inst, ok := c.Get(key, true)
				if !ok {
					inst = pool.create(key)
					if old, replaced := c.Put(key, inst, true); replaced && old != inst {
						// Another worker created it first; ours took its slot.
						pool.log.Debug("instance replaced", "key", key, "old_id", old.id, "new_id", inst.id)
					}
				}
				inst.uses.Add(1)

				select {
				case <-ctx.Done():
				case <-time.After(time.Duration(rng.IntN(500)) * time.Microsecond):
				}

				if rng.IntN(10) == 0 {
					if _, removed := c.Remove(key, true); removed {
						pool.close(key)
					}
					continue
				}
				c.Unpin(key)
			}
			return nil
		})
	}
	return g.Wait()
}
