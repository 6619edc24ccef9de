package catalog

import (
	"context"
	"errors"
	"maps"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"Pierrot/internal/feed"
	"Pierrot/internal/report"
)

const (
	DefaultMaxRetries    = 3
	DefaultBaseDelay     = time.Second
	DefaultCacheDuration = 5 * time.Minute
	DefaultPageSize      = 12
)

var ErrNotLoaded = errors.New("catalog not loaded")

// State is the load lifecycle of a Store.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "idle"
	}
}

// StoreDeps configures a Store. Zero values fall back to the package defaults.
type StoreDeps struct {
	Source     feed.Source
	Normalizer Normalizer
	Reporter   report.Reporter
	Metrics    *Metrics

	// CacheDuration is how long a non-empty snapshot is served without refetching.
	CacheDuration time.Duration
	MaxRetries    int
	// BaseDelay is scaled by 2^retry between attempts.
	BaseDelay time.Duration
	PageSize  int

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

type snapshot struct {
	products   []Product
	categories []string
	fetchedAt  time.Time
}

// Store owns the current product snapshot. Load is its only mutator; readers
// never block and always see a complete snapshot.
type Store struct {
	deps StoreDeps

	snap       atomic.Pointer[snapshot]
	loading    atomic.Bool
	retryCount atomic.Int64
}

func NewStore(deps StoreDeps) *Store {
	if deps.Reporter == nil {
		deps.Reporter = report.Nop()
	}
	if deps.BaseDelay <= 0 {
		deps.BaseDelay = DefaultBaseDelay
	}
	if deps.PageSize <= 0 {
		deps.PageSize = DefaultPageSize
	}
	if deps.MaxRetries < 0 {
		deps.MaxRetries = 0
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Sleep == nil {
		deps.Sleep = sleepContext
	}

	s := &Store{deps: deps}
	s.snap.Store(&snapshot{})
	return s
}

// Load returns the current products, refetching the feed first when the
// cached snapshot has expired or is empty. Calls made while a load is in
// flight get the current snapshot without waiting.
//
// Load never fails. When a refresh fails the caller gets an empty slice and
// the previous snapshot stays in place for later reads.
func (s *Store) Load(ctx context.Context) []Product {
	snap := s.snap.Load()

	if s.loading.Load() {
		s.deps.Metrics.load(outcomeBusy)
		return cloneProducts(snap.products)
	}
	if s.cacheValid(snap, s.deps.Now()) {
		s.deps.Metrics.load(outcomeCacheHit)
		return cloneProducts(snap.products)
	}
	if !s.loading.CompareAndSwap(false, true) {
		s.deps.Metrics.load(outcomeBusy)
		return cloneProducts(snap.products)
	}
	defer s.loading.Store(false)

	// Another load may have committed since snap was read.
	if snap = s.snap.Load(); s.cacheValid(snap, s.deps.Now()) {
		s.deps.Metrics.load(outcomeCacheHit)
		return cloneProducts(snap.products)
	}

	return s.refresh(context.WithoutCancel(ctx))
}

func (s *Store) cacheValid(snap *snapshot, now time.Time) bool {
	return len(snap.products) > 0 && now.Sub(snap.fetchedAt) < s.deps.CacheDuration
}

func (s *Store) refresh(ctx context.Context) []Product {
	loadID := zap.String("load_id", uuid.NewString())
	s.retryCount.Store(0)

	for retry := 0; ; {
		s.deps.Metrics.attempt()
		s.deps.Reporter.Info(report.ScopeProductLoad, "fetching feed", loadID, zap.Int("retry", retry))

		startedAt := s.deps.Now()
		products, err := s.fetch(ctx, loadID)
		if err == nil {
			s.commit(products, startedAt)
			s.retryCount.Store(0)
			s.deps.Metrics.load(outcomeSuccess)
			s.deps.Reporter.Info(report.ScopeProductLoad, "products loaded", loadID,
				zap.Int("products", len(products)), zap.Int("retries", retry))
			return cloneProducts(products)
		}

		if !feed.IsRetryable(err) {
			scope := report.ScopeProductLoad
			if errors.Is(err, feed.ErrMalformed) {
				scope = report.ScopeCSVParse
			}
			s.deps.Metrics.load(outcomeMalformed)
			s.deps.Reporter.Error(scope, err, loadID)
			return []Product{}
		}

		if retry >= s.deps.MaxRetries {
			s.deps.Metrics.load(outcomeExhausted)
			s.deps.Reporter.Error(report.ScopeProductLoad, err, loadID, zap.Int("retries", retry))
			return []Product{}
		}

		retry++
		s.retryCount.Store(int64(retry))
		s.deps.Metrics.retry()

		delay := s.backoff(retry)
		s.deps.Reporter.Warn(report.ScopeNetwork, "feed fetch failed, retrying", loadID,
			zap.Error(err), zap.Int("retry", retry), zap.Duration("delay", delay))

		if err := s.deps.Sleep(ctx, delay); err != nil {
			s.deps.Reporter.Error(report.ScopeProductLoad, err, loadID)
			return []Product{}
		}
	}
}

// backoff is 2^retry * BaseDelay: 2s, 4s, 8s with the default base.
func (s *Store) backoff(retry int) time.Duration {
	return s.deps.BaseDelay << retry
}

func (s *Store) fetch(ctx context.Context, loadID zap.Field) ([]Product, error) {
	doc, err := s.deps.Source.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if err := doc.RequireColumns(feed.ColumnSKU, feed.ColumnCategory); err != nil {
		return nil, err
	}

	out := make([]Product, 0, len(doc.Records))
	for _, r := range doc.Records {
		if p, ok := s.deps.Normalizer.Normalize(r.Headers, r.Values); ok {
			out = append(out, p)
		}
	}

	if dropped := len(doc.Records) - len(out); dropped > 0 {
		s.deps.Reporter.Info(report.ScopeCSVParse, "dropped rows without sku or category", loadID,
			zap.Int("dropped", dropped))
	}
	return out, nil
}

func (s *Store) commit(ps []Product, at time.Time) {
	s.snap.Store(&snapshot{
		products:   ps,
		categories: Categories(ps),
		fetchedAt:  at,
	})
	s.deps.Metrics.committed(len(ps), at)
}

func (s *Store) State() State {
	if s.loading.Load() {
		return StateLoading
	}
	if s.snap.Load().fetchedAt.IsZero() {
		return StateIdle
	}
	return StateReady
}

// Status is a point-in-time summary of the store for debug output.
type Status struct {
	State      string    `json:"state"`
	Products   int       `json:"products"`
	Categories int       `json:"categories"`
	LastFetch  time.Time `json:"last_fetch"`
	RetryCount int       `json:"retry_count"`
}

// Status reads the current snapshot without triggering a load.
func (s *Store) Status() Status {
	snap := s.snap.Load()
	return Status{
		State:      s.State().String(),
		Products:   len(snap.products),
		Categories: len(snap.categories),
		LastFetch:  snap.fetchedAt,
		RetryCount: int(s.retryCount.Load()),
	}
}

// Ping reports ErrNotLoaded until the first snapshot has been committed.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.snap.Load().fetchedAt.IsZero() {
		return ErrNotLoaded
	}
	return nil
}

func (s *Store) PageSize() int { return s.deps.PageSize }

func (s *Store) Products() []Product {
	return cloneProducts(s.snap.Load().products)
}

func (s *Store) TotalProducts() int {
	return len(s.snap.Load().products)
}

func (s *Store) ProductsByCategory(code string) []Product {
	return cloneProducts(ByCategory(s.snap.Load().products, code))
}

func (s *Store) ProductBySKU(sku string) (Product, bool) {
	p, ok := BySKU(s.snap.Load().products, sku)
	if !ok {
		return Product{}, false
	}
	return p.clone(), true
}

func (s *Store) SearchProducts(q string) []Product {
	return cloneProducts(Search(s.snap.Load().products, q))
}

func (s *Store) ProductsByPriceRange(lo, hi int64) []Product {
	return cloneProducts(ByPriceRange(s.snap.Load().products, lo, hi))
}

// AllCategories returns the sorted categories of the current snapshot.
func (s *Store) AllCategories() []string {
	return append([]string{}, s.snap.Load().categories...)
}

// ProductsPage returns page n (1-indexed). size <= 0 uses the configured page size.
func (s *Store) ProductsPage(n, size int) []Product {
	if size <= 0 {
		size = s.deps.PageSize
	}
	return cloneProducts(Page(s.snap.Load().products, n, size))
}

// Query runs q against the current snapshot. A page without a size uses the
// configured page size.
func (s *Store) Query(q Query) Result {
	if q.Page > 0 && q.Size <= 0 {
		q.Size = s.deps.PageSize
	}
	res := Apply(s.snap.Load().products, q)
	res.Items = cloneProducts(res.Items)
	return res
}

func (p Product) clone() Product {
	p.Extra = maps.Clone(p.Extra)
	return p
}

func cloneProducts(ps []Product) []Product {
	out := make([]Product, len(ps))
	for i, p := range ps {
		out[i] = p.clone()
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
