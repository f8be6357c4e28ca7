package resolve

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"photoMap/photo"
)

// Cache remembers resolved records between runs. Lookup reports ok=false for unknown or stale
// entries; Store errors are not fatal to resolution.
type Cache interface {
	Lookup(path string) (photo.Record, bool)
	Store(rec photo.Record) error
}

// Pool resolves many paths with bounded parallelism.
type Pool struct {
	Resolver *Resolver
	Workers  int
	Cache    Cache
	// Progress, when set, is called once per resolved path from the worker goroutines.
	Progress func(rec photo.Record, cached bool)

	hits int64
}

// Hits returns how many records the last Run served from the cache.
func (p *Pool) Hits() int {
	return int(atomic.LoadInt64(&p.hits))
}

// Run resolves paths and returns records in input order. Cancelling ctx stops feeding new paths;
// the records resolved so far are returned together with ctx's error.
func (p *Pool) Run(ctx context.Context, paths []string) ([]photo.Record, error) {
	atomic.StoreInt64(&p.hits, 0)
	workers := p.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	out := make([]photo.Record, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range paths {
		if gctx.Err() != nil {
			break
		}
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = p.resolveOne(path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, ctx.Err()
}

func (p *Pool) resolveOne(path string) photo.Record {
	if p.Cache != nil {
		if rec, ok := p.Cache.Lookup(path); ok {
			atomic.AddInt64(&p.hits, 1)
			p.report(rec, true)
			return rec
		}
	}
	rec := p.Resolver.Resolve(path)
	if p.Cache != nil {
		if err := p.Cache.Store(rec); err != nil && p.Resolver.Log != nil {
			p.Resolver.Log.WithField("path", path).Warnf("cache store failed: %v", err)
		}
	}
	p.report(rec, false)
	return rec
}

func (p *Pool) report(rec photo.Record, cached bool) {
	if p.Progress != nil {
		p.Progress(rec, cached)
	}
}
