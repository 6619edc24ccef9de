package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"

	"Pierrot/internal/feed"
)

const testCSV = "sku,category,name,price,image_file_ids\n" +
	"A001,A,Dress,5000,file123\n" +
	",B,Bad Row,1000,\n" +
	"A002,A,Skirt,,file456\n"

// scriptedSource replays one step per Fetch and repeats the last step once the
// script runs out.
type scriptedSource struct {
	mu    sync.Mutex
	steps []step
	calls int
}

type step struct {
	csv string
	err error
}

func (s *scriptedSource) Fetch(context.Context) (feed.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.steps[min(s.calls, len(s.steps)-1)]
	s.calls++
	if st.err != nil {
		return feed.Document{}, st.err
	}
	return feed.ParseDocument(st.csv)
}

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
	// onNow runs once, on the next call to Now.
	onNow func()
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	hook := c.onNow
	c.onNow = nil
	c.mu.Unlock()

	if hook != nil {
		hook()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) Sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return nil
}

func transportErr(n int) error {
	return fmt.Errorf("%w: attempt %d", feed.ErrTransport, n)
}

type storeFixture struct {
	store *Store
	src   *scriptedSource
	clock *fakeClock
	sleep *sleepRecorder
}

func newStoreFixture(t *testing.T, steps ...step) storeFixture {
	t.Helper()

	f := storeFixture{
		src:   &scriptedSource{steps: steps},
		clock: &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
		sleep: &sleepRecorder{},
	}
	f.store = NewStore(StoreDeps{
		Source:        f.src,
		Normalizer:    Normalizer{ImageBaseURL: "https://img.example/"},
		CacheDuration: 300000 * time.Millisecond,
		MaxRetries:    DefaultMaxRetries,
		Now:           f.clock.Now,
		Sleep:         f.sleep.Sleep,
	})
	return f
}

func skus(ps []Product) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.SKU
	}
	return out
}

func wantSKUs(t *testing.T, want []string, got []Product) {
	t.Helper()
	if diff := cmp.Diff(want, skus(got)); diff != "" {
		t.Errorf("skus mismatch (-want +got):\n%s", diff)
	}
}

func wantCalls(t *testing.T, src *scriptedSource, want int) {
	t.Helper()
	if got := src.Calls(); got != want {
		t.Fatalf("fetches=%d want=%d", got, want)
	}
}

func wantEmpty(t *testing.T, got []Product) {
	t.Helper()
	if got == nil || len(got) != 0 {
		t.Fatalf("want empty non-nil result, got %v", got)
	}
}

func TestStore_LoadNormalizesFeed(t *testing.T) {
	f := newStoreFixture(t, step{csv: testCSV})

	got := f.store.Load(context.Background())

	want := []Product{
		{SKU: "A001", Category: "A", Name: "Dress", Price: 5000, ImageFileID: "file123", ImageURL: "https://img.example/file123"},
		{SKU: "A002", Category: "A", Name: "Skirt", ImageFileID: "file456", ImageURL: "https://img.example/file456"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("products mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"A"}, f.store.AllCategories()); diff != "" {
		t.Errorf("categories (-want +got):\n%s", diff)
	}
	if st := f.store.State(); st != StateReady {
		t.Errorf("state=%s want=ready", st)
	}
}

func TestStore_CacheWindow(t *testing.T) {
	f := newStoreFixture(t, step{csv: testCSV})
	ctx := context.Background()

	first := f.store.Load(ctx)
	wantCalls(t, f.src, 1)

	f.clock.Advance(299999 * time.Millisecond)
	second := f.store.Load(ctx)
	wantCalls(t, f.src, 1)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("cached snapshot changed (-first +second):\n%s", diff)
	}

	f.clock.Advance(2 * time.Millisecond)
	f.store.Load(ctx)
	wantCalls(t, f.src, 2)
}

func TestStore_LoadRechecksCacheAfterClaiming(t *testing.T) {
	f := newStoreFixture(t, step{csv: testCSV})
	ctx := context.Background()

	// A load that commits between the outer call's cache check and its claim
	// of the loading flag.
	f.clock.onNow = func() { f.store.Load(ctx) }

	got := f.store.Load(ctx)

	wantCalls(t, f.src, 1)
	wantSKUs(t, []string{"A001", "A002"}, got)
}

func TestStore_EmptySnapshotIsNeverCached(t *testing.T) {
	f := newStoreFixture(t, step{csv: "sku,category\n"})
	ctx := context.Background()

	wantEmpty(t, f.store.Load(ctx))
	wantEmpty(t, f.store.Load(ctx))
	wantCalls(t, f.src, 2)
	if st := f.store.State(); st != StateReady {
		t.Errorf("state=%s want=ready", st)
	}
}

func TestStore_RetriesWithBackoff(t *testing.T) {
	f := newStoreFixture(t,
		step{err: transportErr(1)},
		step{err: transportErr(2)},
		step{csv: testCSV},
	)

	got := f.store.Load(context.Background())

	if diff := cmp.Diff([]time.Duration{2 * time.Second, 4 * time.Second}, f.sleep.delays); diff != "" {
		t.Errorf("delays (-want +got):\n%s", diff)
	}
	wantCalls(t, f.src, 3)
	wantSKUs(t, []string{"A001", "A002"}, got)
	wantSKUs(t, []string{"A001", "A002"}, f.store.Products())
	if n := f.store.Status().RetryCount; n != 0 {
		t.Errorf("retry_count=%d want=0", n)
	}
}

func TestStore_ExhaustedRetriesKeepSnapshot(t *testing.T) {
	f := newStoreFixture(t,
		step{csv: testCSV},
		step{err: transportErr(1)},
	)
	ctx := context.Background()

	prior := f.store.Load(ctx)
	if len(prior) != 2 {
		t.Fatalf("prior load=%v", prior)
	}

	f.clock.Advance(10 * time.Minute)
	wantEmpty(t, f.store.Load(ctx))

	wantCalls(t, f.src, 1+1+DefaultMaxRetries)
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	if diff := cmp.Diff(want, f.sleep.delays); diff != "" {
		t.Errorf("delays (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(prior, f.store.Products()); diff != "" {
		t.Errorf("snapshot changed (-prior +now):\n%s", diff)
	}
	if n := f.store.Status().RetryCount; n != DefaultMaxRetries {
		t.Errorf("retry_count=%d want=%d", n, DefaultMaxRetries)
	}
}

func TestStore_MalformedFeedIsNotRetried(t *testing.T) {
	tests := []struct {
		name string
		step step
	}{
		{name: "no header", step: step{csv: "\n\n"}},
		{name: "missing category column", step: step{csv: "sku,name\nA001,Dress\n"}},
		{name: "wrapped malformed", step: step{err: fmt.Errorf("decode: %w", feed.ErrMalformed)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newStoreFixture(t, tt.step)

			wantEmpty(t, f.store.Load(context.Background()))
			wantCalls(t, f.src, 1)
			if len(f.sleep.delays) != 0 {
				t.Errorf("slept %v", f.sleep.delays)
			}
			if st := f.store.State(); st != StateIdle {
				t.Errorf("state=%s want=idle", st)
			}
		})
	}
}

func TestStore_MalformedRefreshKeepsSnapshot(t *testing.T) {
	f := newStoreFixture(t, step{csv: testCSV}, step{csv: "name\nDress\n"})
	ctx := context.Background()

	prior := f.store.Load(ctx)
	f.clock.Advance(time.Hour)

	wantEmpty(t, f.store.Load(ctx))
	wantCalls(t, f.src, 2)
	if diff := cmp.Diff(prior, f.store.Products()); diff != "" {
		t.Errorf("snapshot changed (-prior +now):\n%s", diff)
	}
}

type blockingSource struct {
	csv     string
	entered chan<- struct{}
	release <-chan struct{}
	calls   int
}

func (b *blockingSource) Fetch(context.Context) (feed.Document, error) {
	b.calls++
	b.entered <- struct{}{}
	<-b.release
	return feed.ParseDocument(b.csv)
}

func TestStore_ConcurrentLoadReturnsSnapshot(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	src := &blockingSource{csv: testCSV, entered: entered, release: release}

	s := NewStore(StoreDeps{Source: src, CacheDuration: time.Minute})

	done := make(chan []Product, 1)
	go func() { done <- s.Load(context.Background()) }()

	<-entered
	if st := s.State(); st != StateLoading {
		t.Errorf("state=%s want=loading", st)
	}

	wantEmpty(t, s.Load(context.Background()))

	close(release)
	got := <-done

	if len(got) != 2 {
		t.Fatalf("loaded=%v", got)
	}
	if src.calls != 1 {
		t.Errorf("fetches=%d want=1", src.calls)
	}
	if st := s.State(); st != StateReady {
		t.Errorf("state=%s want=ready", st)
	}
}

func TestStore_ResultsAreCopies(t *testing.T) {
	f := newStoreFixture(t, step{csv: "sku,category,name,color\nA001,A,Dress,red\n"})

	got := f.store.Load(context.Background())
	if len(got) != 1 {
		t.Fatalf("loaded=%v", got)
	}

	got[0].Name = "changed"
	got[0].Extra["color"] = "blue"

	p, ok := f.store.ProductBySKU("A001")
	if !ok {
		t.Fatalf("A001 missing")
	}
	if p.Name != "Dress" || p.Extra["color"] != "red" {
		t.Errorf("store modified through result: %+v", p)
	}

	cats := f.store.AllCategories()
	cats[0] = "Z"
	if diff := cmp.Diff([]string{"A"}, f.store.AllCategories()); diff != "" {
		t.Errorf("categories modified (-want +got):\n%s", diff)
	}
}

func TestStore_PingAndStatus(t *testing.T) {
	f := newStoreFixture(t, step{csv: testCSV})
	ctx := context.Background()

	if err := f.store.Ping(ctx); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("ping before load=%v", err)
	}
	if st := f.store.Status().State; st != "idle" {
		t.Errorf("state=%s want=idle", st)
	}

	f.store.Load(ctx)

	if err := f.store.Ping(ctx); err != nil {
		t.Fatalf("ping after load=%v", err)
	}
	want := Status{State: "ready", Products: 2, Categories: 1, LastFetch: f.clock.Now()}
	if diff := cmp.Diff(want, f.store.Status()); diff != "" {
		t.Errorf("status (-want +got):\n%s", diff)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if err := f.store.Ping(cctx); !errors.Is(err, context.Canceled) {
		t.Errorf("ping cancelled=%v", err)
	}
}

func TestStore_Accessors(t *testing.T) {
	f := newStoreFixture(t, step{csv: "sku,category,name,price\n" +
		"A1,A,Red Dress,3000\n" +
		"B1,B,Blue Shirt,1500\n" +
		"A2,A,Green Dress,\n"})
	f.store.Load(context.Background())

	if n := f.store.TotalProducts(); n != 3 {
		t.Errorf("total=%d want=3", n)
	}
	wantSKUs(t, []string{"A1", "A2"}, f.store.ProductsByCategory("A"))
	wantSKUs(t, []string{"A1", "A2"}, f.store.SearchProducts("dress"))
	wantSKUs(t, []string{"B1", "A2"}, f.store.ProductsByPriceRange(0, 2000))
	wantSKUs(t, []string{"A2"}, f.store.ProductsPage(2, 2))
	wantSKUs(t, []string{"A1", "B1", "A2"}, f.store.ProductsPage(1, 0))
	if n := f.store.PageSize(); n != DefaultPageSize {
		t.Errorf("page size=%d want=%d", n, DefaultPageSize)
	}

	if _, ok := f.store.ProductBySKU("nope"); ok {
		t.Errorf("unknown sku found")
	}

	res := f.store.Query(Query{Sort: SortByPrice, Order: Desc, Page: 1})
	wantSKUs(t, []string{"A1", "B1", "A2"}, res.Items)
	if res.Size != DefaultPageSize || res.TotalPages != 1 {
		t.Errorf("size=%d pages=%d", res.Size, res.TotalPages)
	}
}

func TestStore_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	f := newStoreFixture(t, step{err: transportErr(1)}, step{csv: testCSV})
	f.store.deps.Metrics = m
	ctx := context.Background()

	f.store.Load(ctx)
	f.store.Load(ctx)

	for name, tc := range map[string]struct {
		got, want float64
	}{
		"attempts":  {testutil.ToFloat64(m.Attempts), 2},
		"retries":   {testutil.ToFloat64(m.Retries), 1},
		"success":   {testutil.ToFloat64(m.Loads.WithLabelValues(outcomeSuccess)), 1},
		"cache_hit": {testutil.ToFloat64(m.Loads.WithLabelValues(outcomeCacheHit)), 1},
		"products":  {testutil.ToFloat64(m.Products), 2},
	} {
		if tc.got != tc.want {
			t.Errorf("%s=%v want=%v", name, tc.got, tc.want)
		}
	}
}
