package unit

import (
	"context"
	"sync"
	"time"

	"dentalstock/internal/core/apperror"
	"dentalstock/pkg/logger"
)

// Resolver resolves and memoizes the base unit of inventory items for one
// composer session. Quantities are always recorded in the base unit, so every
// import line needs its item's base unit before it can be submitted.
//
// Lookups for different items run independently. Concurrent first lookups of
// the same item share one remote call. Failures are never cached.
type Resolver struct {
	source Source
	log    *logger.Logger

	mu       sync.Mutex
	cache    map[int64]*Definition
	inflight map[int64]*lookup
	stats    Stats
}

// lookupTimeout bounds a shared lookup once it no longer follows any
// caller's context.
const lookupTimeout = 30 * time.Second

type lookup struct {
	done chan struct{}
	def  *Definition
	err  error
}

// Stats counts resolver activity.
type Stats struct {
	Hits     int
	Lookups  int
	Failures int
	Cached   int
}

// NewResolver creates a resolver backed by source.
func NewResolver(source Source, log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.Default()
	}
	return &Resolver{
		source:   source,
		log:      log.WithComponent("unit-resolver"),
		cache:    make(map[int64]*Definition),
		inflight: make(map[int64]*lookup),
	}
}

// Resolve returns the base unit of itemID. A zero or negative itemID is a
// no-op and returns (nil, nil). Cached results are returned without a remote
// call; the same pointer is returned on every hit.
//
// The remote call is detached from ctx, so a caller that gives up only
// abandons its own wait; other callers of the same item keep waiting for the
// shared result.
func (r *Resolver) Resolve(ctx context.Context, itemID int64) (*Definition, error) {
	if itemID <= 0 {
		return nil, nil
	}

	r.mu.Lock()
	if def, ok := r.cache[itemID]; ok {
		r.stats.Hits++
		r.mu.Unlock()
		return def, nil
	}
	l, shared := r.inflight[itemID]
	if !shared {
		l = &lookup{done: make(chan struct{})}
		r.inflight[itemID] = l
		r.stats.Lookups++
		go r.fetch(context.WithoutCancel(ctx), itemID, l)
	}
	r.mu.Unlock()

	return r.wait(ctx, itemID, l, shared)
}

func (r *Resolver) fetch(ctx context.Context, itemID int64, l *lookup) {
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	def, err := r.source.GetBaseUnit(ctx, itemID)
	if err == nil && !def.IsValidBase() {
		err = apperror.NewValidation("service returned a unit that is not a valid base unit").
			WithDetail("itemId", itemID)
	}

	r.mu.Lock()
	delete(r.inflight, itemID)
	if err != nil {
		r.stats.Failures++
		l.err = apperror.NewResolution("base unit", itemID, err)
	} else {
		r.cache[itemID] = def
		l.def = def
	}
	r.mu.Unlock()
	close(l.done)

	if err != nil {
		r.log.WithContext(ctx).Warnw("base unit lookup failed", "item_id", itemID, "error", err)
		return
	}
	r.log.WithContext(ctx).Debugw("base unit resolved", "item_id", itemID, "unit_id", def.ID, "unit", def.Name)
}

func (r *Resolver) wait(ctx context.Context, itemID int64, l *lookup, shared bool) (*Definition, error) {
	select {
	case <-l.done:
		if l.err != nil {
			return nil, l.err
		}
		if shared {
			r.mu.Lock()
			r.stats.Hits++
			r.mu.Unlock()
		}
		return l.def, nil
	case <-ctx.Done():
		return nil, apperror.NewResolution("base unit", itemID, ctx.Err())
	}
}

// Cached returns the cached base unit of itemID without a remote call.
func (r *Resolver) Cached(itemID int64) (*Definition, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	def, ok := r.cache[itemID]
	return def, ok
}

// Invalidate drops itemID from the cache.
func (r *Resolver) Invalidate(itemID int64) {
	r.mu.Lock()
	delete(r.cache, itemID)
	r.mu.Unlock()
}

// Stats returns a snapshot of resolver counters.
func (r *Resolver) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats
	s.Cached = len(r.cache)
	return s
}
