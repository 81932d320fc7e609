package display

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/obsidianstack/teamprofiles/server/internal/cache"
	"github.com/obsidianstack/teamprofiles/server/internal/profile"
	"github.com/obsidianstack/teamprofiles/server/internal/render"
	"github.com/obsidianstack/teamprofiles/server/internal/source"
)

// ListingKey is the cache key of the full team listing.
const ListingKey = "TeamProfiles_display"

// DefaultTTL is how long a rendered listing is served before recomputing.
const DefaultTTL = 24 * time.Hour

// DefaultComputeTimeout bounds one shared source read and render.
const DefaultComputeTimeout = 30 * time.Second

// maxDepartmentKeys caps how many department listings are cached at once.
// Department views past the cap, and empty ones, are rendered live.
const maxDepartmentKeys = 256

// DepartmentKey returns the cache key of the listing for one department.
func DepartmentKey(slug string) string {
	return ListingKey + ":department=" + strings.ToLower(slug)
}

// Options configures a Service.
type Options struct {
	// Query selects the records for the full listing.
	Query source.Query
	// TTL for cached views. Zero means DefaultTTL.
	TTL time.Duration
	// ComputeTimeout bounds a miss computation. Zero means DefaultComputeTimeout.
	ComputeTimeout time.Duration
	// Metrics receives counters; nil registers on a private registry.
	Metrics *Metrics
}

// Service serves rendered listings, computing them from the source on a
// cache miss and memoizing the result.
//
// Service is safe for concurrent use. Concurrent misses on one key share a
// single source read and render.
type Service struct {
	cache    cache.Cache
	src      source.Source
	renderer atomic.Pointer[render.Renderer]
	query    source.Query
	ttl      time.Duration
	timeout  time.Duration
	metrics  *Metrics
	sf       singleflight.Group

	// gen is bumped on every invalidation; a render started under an older
	// generation is returned to its callers but not written to the cache.
	// writeMu makes the generation check and the cache write one step.
	writeMu sync.Mutex
	gen     uint64

	mu   sync.Mutex
	keys map[string]struct{} // department keys written to the cache
}

// New creates a Service. A nil cache disables caching entirely.
func New(c cache.Cache, src source.Source, r *render.Renderer, opts Options) *Service {
	if c == nil {
		c = nopCache{}
	}
	if opts.TTL == 0 {
		opts.TTL = DefaultTTL
	}
	if opts.ComputeTimeout <= 0 {
		opts.ComputeTimeout = DefaultComputeTimeout
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(prometheus.NewRegistry(), "teamprofiles")
	}
	s := &Service{
		cache:   c,
		src:     src,
		query:   opts.Query,
		ttl:     opts.TTL,
		timeout: opts.ComputeTimeout,
		metrics: opts.Metrics,
		keys:    make(map[string]struct{}),
	}
	s.renderer.Store(r)
	return s
}

// Display returns the full team listing. The result is render.Empty when
// the source has no renderable records. Source failures are returned and
// never cached; cache failures are logged and served live.
func (s *Service) Display(ctx context.Context) (render.View, error) {
	return s.view(ctx, ListingKey, s.query)
}

// DisplayDepartment returns the listing restricted to one department.
// An empty slug is the full listing.
func (s *Service) DisplayDepartment(ctx context.Context, slug string) (render.View, error) {
	if slug == "" {
		return s.Display(ctx)
	}
	q := s.query
	q.Department = slug
	return s.view(ctx, DepartmentKey(slug), q)
}

// Records reads the records behind a listing straight from the source,
// bypassing the cache.
func (s *Service) Records(ctx context.Context, department string) ([]profile.Record, error) {
	q := s.query
	q.Department = department
	recs, err := s.src.List(ctx, q)
	if err != nil {
		s.metrics.SourceErrors.Inc()
		return nil, fmt.Errorf("display: list records: %w", err)
	}
	return recs, nil
}

// Invalidate removes every listing this service has cached and returns the
// keys removed. Failures for individual keys are joined into the error.
func (s *Service) Invalidate(ctx context.Context) ([]string, error) {
	s.writeMu.Lock()
	s.gen++
	s.writeMu.Unlock()
	s.metrics.Invalidations.Inc()

	s.mu.Lock()
	keys := make([]string, 0, len(s.keys)+1)
	keys = append(keys, ListingKey)
	for k := range s.keys {
		if k != ListingKey {
			keys = append(keys, k)
		}
	}
	s.mu.Unlock()
	sort.Strings(keys[1:])

	var errs []error
	for _, k := range keys {
		s.sf.Forget(k)
		if err := s.cache.Invalidate(ctx, k); err != nil {
			s.metrics.CacheErrors.Inc()
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return keys, fmt.Errorf("display: invalidate: %w", err)
	}
	slog.Info("display: cache invalidated", "keys", len(keys))
	return keys, nil
}

// SetRenderer swaps the renderer (e.g. after a config reload) and drops
// every cached listing so the new options take effect immediately.
func (s *Service) SetRenderer(ctx context.Context, r *render.Renderer) error {
	s.renderer.Store(r)
	_, err := s.Invalidate(ctx)
	return err
}

func (s *Service) view(ctx context.Context, key string, q source.Query) (render.View, error) {
	v, ok, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		s.metrics.CacheErrors.Inc()
		slog.Warn("display: cache read failed, rendering live", "key", key, "err", err)
	case ok:
		s.metrics.CacheHits.Inc()
		return render.View(v), nil
	}
	s.metrics.CacheMisses.Inc()

	// The shared computation must not die with whichever caller started it;
	// every caller waits on its own context instead.
	ch := s.sf.DoChan(key, func() (any, error) {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.compute(cctx, key, q)
	})
	select {
	case <-ctx.Done():
		return render.Empty, fmt.Errorf("display: %q: %w", key, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return render.Empty, res.Err
		}
		return res.Val.(render.View), nil
	}
}

func (s *Service) compute(ctx context.Context, key string, q source.Query) (render.View, error) {
	s.writeMu.Lock()
	gen := s.gen
	s.writeMu.Unlock()
	start := time.Now()

	recs, err := s.src.List(ctx, q)
	if err != nil {
		s.metrics.SourceErrors.Inc()
		return render.Empty, fmt.Errorf("display: list %q: %w", key, err)
	}

	v := s.renderer.Load().Render(recs)
	rendered := 0
	for _, r := range recs {
		if r.Valid() {
			rendered++
		}
	}
	s.metrics.Renders.Inc()
	s.metrics.RecordsRendered.Set(float64(rendered))
	s.metrics.RenderDuration.Observe(time.Since(start).Seconds())

	if q.Department != "" && (v.IsEmpty() || !s.admit(key)) {
		slog.Debug("display: department view not cached", "key", key, "empty", v.IsEmpty())
		return v, nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.gen != gen {
		slog.Debug("display: invalidated during render, not caching", "key", key)
		return v, nil
	}
	// The empty sentinel is cached too, so repeated "no members" lookups
	// also short-circuit until the TTL or an invalidation.
	if err := s.cache.Set(ctx, key, string(v), s.ttl); err != nil {
		s.metrics.CacheErrors.Inc()
		slog.Warn("display: cache write failed", "key", key, "err", err)
	}
	slog.Debug("display: rendered", "key", key, "records", rendered, "empty", v.IsEmpty())
	return v, nil
}

// admit records a department key for later invalidation. It reports false
// once maxDepartmentKeys distinct keys are held.
func (s *Service) admit(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return true
	}
	if len(s.keys) >= maxDepartmentKeys {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

// nopCache is used when caching is disabled: every read misses.
type nopCache struct{}

func (nopCache) Get(context.Context, string) (string, bool, error) {
	return "", false, nil
}

func (nopCache) Set(context.Context, string, string, time.Duration) error { return nil }

func (nopCache) Invalidate(context.Context, string) error { return nil }
