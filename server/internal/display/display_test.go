package display

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidianstack/teamprofiles/server/internal/cache"
	"github.com/obsidianstack/teamprofiles/server/internal/profile"
	"github.com/obsidianstack/teamprofiles/server/internal/render"
	"github.com/obsidianstack/teamprofiles/server/internal/source"
)

// --- fakes ------------------------------------------------------------------

// fakeSource sorts its records by name ascending, counts reads and can be
// made to fail or block.
type fakeSource struct {
	mu      sync.Mutex
	records []profile.Record
	err     error
	calls   atomic.Int32
	gate    chan struct{} // if non-nil, List waits on it
	lastQ   source.Query
}

func (f *fakeSource) List(ctx context.Context, q source.Query) ([]profile.Record, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQ = q
	if f.err != nil {
		return nil, f.err
	}
	out := make([]profile.Record, 0, len(f.records))
	for _, r := range f.records {
		if q.Department == "" || r.InDepartment(q.Department) {
			out = append(out, r)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].SortKey < out[j-1].SortKey; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (f *fakeSource) set(recs ...profile.Record) {
	f.mu.Lock()
	f.records = recs
	f.mu.Unlock()
}

// clockCache is an in-memory cache with a settable clock and a failure switch.
type clockCache struct {
	mu   sync.Mutex
	now  time.Time
	data map[string]cache.Entry
	fail bool
	sets int
}

func newClockCache() *clockCache {
	return &clockCache{now: time.Now(), data: make(map[string]cache.Entry)}
}

var errCacheDown = errors.New("cache down")

func (c *clockCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return "", false, errCacheDown
	}
	e, ok := c.data[key]
	if !ok || e.Expired(c.now) {
		return "", false, nil
	}
	return e.Value, true, nil
}

func (c *clockCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errCacheDown
	}
	c.sets++
	c.data[key] = cache.Entry{Key: key, Value: value, ExpiresAt: c.now.Add(ttl)}
	return nil
}

func (c *clockCache) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errCacheDown
	}
	delete(c.data, key)
	return nil
}

func (c *clockCache) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func member(name string, depts ...string) profile.Record {
	return profile.Post{ID: name, Title: name, Departments: depts}.Record()
}

var teamQuery = source.Query{PostType: "team", Limit: 50, OrderBy: "title", Order: "asc"}

func newService(c cache.Cache, src source.Source) (*Service, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	svc := New(c, src, render.New(render.Options{Heading: "Meet The Team"}), Options{
		Query:   teamQuery,
		Metrics: NewMetrics(reg, "teamprofiles"),
	})
	return svc, reg
}

// counter returns the value of a counter family from reg.
func counter(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == name {
			return firstValue(mf)
		}
	}
	return 0
}

func firstValue(mf *dto.MetricFamily) float64 {
	for _, m := range mf.GetMetric() {
		switch {
		case m.Counter != nil:
			return m.Counter.GetValue()
		case m.Gauge != nil:
			return m.Gauge.GetValue()
		}
	}
	return 0
}

// --- tests ------------------------------------------------------------------

func TestDisplay_IdempotentWithinTTL(t *testing.T) {
	src := &fakeSource{records: []profile.Record{member("Zara"), member("Amir"), member("Mona")}}
	svc, reg := newService(newClockCache(), src)

	first, err := svc.Display(context.Background())
	require.NoError(t, err)
	second, err := svc.Display(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, src.calls.Load(), "exactly one source read")
	assert.Equal(t, teamQuery, src.lastQ)
	assert.EqualValues(t, 1, counter(t, reg, "teamprofiles_cache_hits_total"))
	assert.EqualValues(t, 1, counter(t, reg, "teamprofiles_cache_misses_total"))
}

func TestDisplay_OrderFollowsSource(t *testing.T) {
	src := &fakeSource{records: []profile.Record{member("Zara"), member("Amir"), member("Mona")}}
	svc, _ := newService(newClockCache(), src)

	v, err := svc.Display(context.Background())
	require.NoError(t, err)
	out := string(v)
	assert.Less(t, strings.Index(out, "Amir"), strings.Index(out, "Mona"))
	assert.Less(t, strings.Index(out, "Mona"), strings.Index(out, "Zara"))
}

func TestDisplay_ExpiryTriggersOneFreshRead(t *testing.T) {
	c := newClockCache()
	src := &fakeSource{records: []profile.Record{member("Amir")}}
	svc, _ := newService(c, src)

	_, err := svc.Display(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, c.sets)

	c.advance(DefaultTTL)
	src.set(member("Amir"), member("Zara"))

	v, err := svc.Display(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(v), "Zara")
	assert.EqualValues(t, 2, src.calls.Load())
	assert.Equal(t, 2, c.sets)

	_, err = svc.Display(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.calls.Load(), "fresh entry serves the next call")
}

func TestDisplay_EmptyResultIsCached(t *testing.T) {
	c := newClockCache()
	src := &fakeSource{}
	svc, _ := newService(c, src)

	v, err := svc.Display(context.Background())
	require.NoError(t, err)
	assert.True(t, v.IsEmpty())

	v, err = svc.Display(context.Background())
	require.NoError(t, err)
	assert.True(t, v.IsEmpty())
	assert.EqualValues(t, 1, src.calls.Load(), "empty sentinel short-circuits too")
}

func TestDisplay_InvalidateUnmasksFirstProfile(t *testing.T) {
	c := newClockCache()
	src := &fakeSource{}
	svc, _ := newService(c, src)

	v, _ := svc.Display(context.Background())
	require.True(t, v.IsEmpty())

	src.set(member("Mona"))
	keys, err := svc.Invalidate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{ListingKey}, keys)

	v, err = svc.Display(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(v), "<h3>Mona</h3>")
}

func TestDisplay_SourceErrorPropagatesAndIsNotCached(t *testing.T) {
	c := newClockCache()
	src := &fakeSource{err: errors.New("cms unreachable")}
	svc, reg := newService(c, src)

	_, err := svc.Display(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "cms unreachable")
	assert.Equal(t, 0, c.sets)
	assert.EqualValues(t, 1, counter(t, reg, "teamprofiles_source_errors_total"))

	src.mu.Lock()
	src.err = nil
	src.records = []profile.Record{member("Amir")}
	src.mu.Unlock()

	v, err := svc.Display(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(v), "Amir")
}

func TestDisplay_CacheDownDegradesToLive(t *testing.T) {
	c := newClockCache()
	c.fail = true
	src := &fakeSource{records: []profile.Record{member("Amir")}}
	svc, reg := newService(c, src)

	for i := 0; i < 2; i++ {
		v, err := svc.Display(context.Background())
		require.NoError(t, err)
		assert.Contains(t, string(v), "Amir")
	}
	assert.EqualValues(t, 2, src.calls.Load(), "every call renders live")
	assert.EqualValues(t, 4, counter(t, reg, "teamprofiles_cache_errors_total"))
}

func TestDisplay_NilCacheAlwaysRendersLive(t *testing.T) {
	src := &fakeSource{records: []profile.Record{member("Amir")}}
	svc, _ := newService(nil, src)
	svc.Display(context.Background()) //nolint:errcheck
	svc.Display(context.Background()) //nolint:errcheck
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestDisplay_ConcurrentColdMisses(t *testing.T) {
	c := cache.NewMemory()
	src := &fakeSource{records: []profile.Record{member("Amir"), member("Zara")}, gate: make(chan struct{})}
	svc, _ := newService(c, src)

	const n = 8
	var wg sync.WaitGroup
	results := make([]render.View, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Display(context.Background())
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}
	assert.False(t, results[0].IsEmpty())

	cached, ok, err := c.Get(context.Background(), ListingKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, string(results[0]), cached)
	assert.LessOrEqual(t, src.calls.Load(), int32(n))
}

func TestDisplayDepartment_SeparateKey(t *testing.T) {
	c := newClockCache()
	src := &fakeSource{records: []profile.Record{member("Amir", "sales"), member("Mona", "art")}}
	svc, _ := newService(c, src)

	v, err := svc.DisplayDepartment(context.Background(), "Art")
	require.NoError(t, err)
	assert.Contains(t, string(v), "Mona")
	assert.NotContains(t, string(v), "Amir")
	assert.Equal(t, "Art", src.lastQ.Department)

	all, err := svc.DisplayDepartment(context.Background(), "")
	require.NoError(t, err)
	assert.Contains(t, string(all), "Amir")

	keys, err := svc.Invalidate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{ListingKey, DepartmentKey("art")}, keys)
	assert.Empty(t, c.data)
}

func TestInvalidate_CacheErrorReported(t *testing.T) {
	c := newClockCache()
	svc, _ := newService(c, &fakeSource{})
	c.fail = true
	_, err := svc.Invalidate(context.Background())
	assert.ErrorIs(t, err, errCacheDown)
}

func TestInvalidate_DuringRenderSkipsCacheWrite(t *testing.T) {
	c := newClockCache()
	src := &fakeSource{records: []profile.Record{member("Amir")}, gate: make(chan struct{})}
	svc, _ := newService(c, src)

	done := make(chan struct{})
	go func() {
		svc.Display(context.Background()) //nolint:errcheck
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	_, err := svc.Invalidate(context.Background())
	require.NoError(t, err)
	close(src.gate)
	<-done

	assert.Equal(t, 0, c.sets, "stale render must not repopulate the cache")
}

func TestSetRenderer_AppliesNewOptions(t *testing.T) {
	src := &fakeSource{records: []profile.Record{member("Amir")}}
	svc, _ := newService(newClockCache(), src)

	v, _ := svc.Display(context.Background())
	require.Contains(t, string(v), "Meet The Team")

	require.NoError(t, svc.SetRenderer(context.Background(), render.New(render.Options{Heading: "Our People"})))
	v, err := svc.Display(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(v), "Our People")
}

func TestRecords_BypassesCache(t *testing.T) {
	src := &fakeSource{records: []profile.Record{member("Amir", "sales"), member("Mona")}}
	svc, _ := newService(newClockCache(), src)

	recs, err := svc.Records(context.Background(), "sales")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Amir", recs[0].Name)

	svc.Records(context.Background(), "") //nolint:errcheck
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestMetrics_TextExposition(t *testing.T) {
	src := &fakeSource{records: []profile.Record{member("Amir"), member("Zara")}}
	svc, reg := newService(newClockCache(), src)
	svc.Display(context.Background()) //nolint:errcheck

	mfs, err := reg.Gather()
	require.NoError(t, err)

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		require.NoError(t, enc.Encode(mf))
	}
	out := buf.String()
	assert.Contains(t, out, "teamprofiles_renders_total 1")
	assert.Contains(t, out, "teamprofiles_records_rendered 2")
	assert.Contains(t, out, "teamprofiles_render_duration_seconds_count 1")
}

func TestDisplay_CallerCancelDoesNotFailSharedMiss(t *testing.T) {
	src := &fakeSource{records: []profile.Record{member("Amir")}, gate: make(chan struct{})}
	svc, _ := newService(newClockCache(), src)

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Display(firstCtx)
		firstErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	type result struct {
		v   render.View
		err error
	}
	second := make(chan result, 1)
	go func() {
		v, err := svc.Display(context.Background())
		second <- result{v, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(src.gate)
	r := <-second
	require.NoError(t, r.err)
	assert.Contains(t, string(r.v), "Amir")
	assert.EqualValues(t, 1, src.calls.Load(), "both callers shared one read")
}

// gatedCache parks the first Set until release is closed.
type gatedCache struct {
	*clockCache
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.clockCache.Set(ctx, key, value, ttl)
}

func TestInvalidate_OrderedAfterInFlightCacheWrite(t *testing.T) {
	c := &gatedCache{clockCache: newClockCache(), entered: make(chan struct{}), release: make(chan struct{})}
	svc, _ := newService(c, &fakeSource{records: []profile.Record{member("Amir")}})

	done := make(chan struct{})
	go func() {
		svc.Display(context.Background()) //nolint:errcheck
		close(done)
	}()
	<-c.entered

	invalidated := make(chan error, 1)
	go func() {
		_, err := svc.Invalidate(context.Background())
		invalidated <- err
	}()
	time.Sleep(20 * time.Millisecond)
	close(c.release)
	<-done
	require.NoError(t, <-invalidated)

	_, ok, err := c.Get(context.Background(), ListingKey)
	require.NoError(t, err)
	assert.False(t, ok, "entry written before Invalidate must not survive it")
}

func TestDisplayDepartment_CachedKeysAreBounded(t *testing.T) {
	n := maxDepartmentKeys + 10
	recs := make([]profile.Record, 0, n)
	for i := 0; i < n; i++ {
		recs = append(recs, member(fmt.Sprintf("Member %03d", i), fmt.Sprintf("dept-%d", i)))
	}
	c := newClockCache()
	svc, _ := newService(c, &fakeSource{records: recs})

	for i := 0; i < 1000; i++ {
		v, err := svc.DisplayDepartment(context.Background(), fmt.Sprintf("nobody-%d", i))
		require.NoError(t, err)
		require.True(t, v.IsEmpty())
	}
	assert.Empty(t, c.data, "unknown departments are not cached")
	assert.Empty(t, svc.keys)

	for i := 0; i < n; i++ {
		v, err := svc.DisplayDepartment(context.Background(), fmt.Sprintf("dept-%d", i))
		require.NoError(t, err)
		assert.False(t, v.IsEmpty())
	}
	assert.Len(t, c.data, maxDepartmentKeys)
	assert.Len(t, svc.keys, maxDepartmentKeys)

	keys, err := svc.Invalidate(context.Background())
	require.NoError(t, err)
	assert.Len(t, keys, maxDepartmentKeys+1)
	assert.Empty(t, c.data)
}

func TestMetrics_RecordsRenderedSkipsNameless(t *testing.T) {
	src := &fakeSource{records: []profile.Record{member("Amir"), profile.Post{ID: "9"}.Record()}}
	svc, reg := newService(newClockCache(), src)

	_, err := svc.Display(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, counter(t, reg, "teamprofiles_records_rendered"))
}
