package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ErrQueryDisabled is returned when fetching a query whose Enabled check fails
var ErrQueryDisabled = errors.New("query disabled")

// ErrQuerySuperseded is returned to callers of a fetch that started before
// the query was Reset; its result belongs to the previous session
var ErrQuerySuperseded = errors.New("query reset while fetching")

// QueryOptions tune a Query
type QueryOptions struct {
	// StaleTime is how long a successful result is served without refetching
	StaleTime time.Duration
	// RefetchInterval enables background polling while the query is started
	RefetchInterval time.Duration
	// Retry is the number of extra attempts after a failed fetch
	Retry int
	// RetryDelay is the wait before the first retry; it doubles per attempt
	// up to 30s. Zero means one second.
	RetryDelay time.Duration
	// Enabled gates every fetch; nil means always enabled
	Enabled func() bool
}

// Fetcher loads a query's data
type Fetcher[T any] func(ctx context.Context) (T, error)

// Query caches one server read model. Every fetch is stamped with a
// sequence number when it starts and its result is applied only if no
// later fetch has been applied already, so a slow stale response can never
// overwrite fresher data. Concurrent fetches within one cache generation
// share a single request.
type Query[T any] struct {
	key    string
	fetch  Fetcher[T]
	opts   QueryOptions
	now    func() time.Time
	flight singleflight.Group

	life     context.Context
	lifeStop context.CancelFunc

	mu          sync.Mutex
	data        T
	hasData     bool
	err         error
	updatedAt   time.Time
	seq         uint64
	applied     uint64
	generation  uint64
	resetGen    uint64
	invalidated bool
	listeners   []func(T, error)

	pollMu   sync.Mutex
	pollStop context.CancelFunc
	pollDone chan struct{}
}

// NewQuery creates a query and registers it with qc when qc is not nil
func NewQuery[T any](qc *QueryClient, key string, fetch Fetcher[T], opts QueryOptions) *Query[T] {
	life, stop := context.WithCancel(context.Background())
	q := &Query[T]{
		key:      key,
		fetch:    fetch,
		opts:     opts,
		now:      time.Now,
		life:     life,
		lifeStop: stop,
	}
	if qc != nil {
		qc.register(q)
	}
	return q
}

// Key returns the cache key
func (q *Query[T]) Key() string {
	return q.key
}

func (q *Query[T]) enabled() bool {
	return q.opts.Enabled == nil || q.opts.Enabled()
}

// Get returns cached data while it is fresh and fetches otherwise
func (q *Query[T]) Get(ctx context.Context) (T, error) {
	q.mu.Lock()
	if q.hasData && !q.staleLocked() {
		data := q.data
		q.mu.Unlock()
		return data, nil
	}
	q.mu.Unlock()
	return q.Refetch(ctx)
}

// Peek returns cached data without fetching
func (q *Query[T]) Peek() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.data, q.hasData
}

// Err returns the error of the last applied fetch
func (q *Query[T]) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

// IsStale reports whether the next Get would fetch
func (q *Query[T]) IsStale() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.hasData || q.staleLocked()
}

func (q *Query[T]) staleLocked() bool {
	return q.invalidated || q.now().Sub(q.updatedAt) >= q.opts.StaleTime
}

// Refetch fetches regardless of staleness. Callers arriving while a fetch
// of the current generation is in flight wait for that fetch instead of
// starting another. ctx only bounds the wait; the fetch itself runs until
// the query is closed or the HTTP timeout fires.
func (q *Query[T]) Refetch(ctx context.Context) (T, error) {
	var zero T
	if !q.enabled() {
		return zero, ErrQueryDisabled
	}

	q.mu.Lock()
	gen := q.generation
	q.mu.Unlock()

	ch := q.flight.DoChan(fmt.Sprintf("%s#%d", q.key, gen), func() (any, error) {
		return nil, q.run(gen)
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		q.mu.Lock()
		data, reset := q.data, gen < q.resetGen
		q.mu.Unlock()
		if reset {
			return zero, ErrQuerySuperseded
		}
		return data, res.Err
	}
}

func (q *Query[T]) run(gen uint64) error {
	q.mu.Lock()
	q.seq++
	seq := q.seq
	q.mu.Unlock()

	data, err := q.fetchWithRetry(q.life)
	q.apply(seq, gen, data, err)
	return err
}

func (q *Query[T]) fetchWithRetry(ctx context.Context) (T, error) {
	delay := q.opts.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}
	var (
		data T
		err  error
	)
	for attempt := 0; ; attempt++ {
		data, err = q.fetch(ctx)
		if err == nil || attempt >= q.opts.Retry || !retryable(err) {
			return data, err
		}
		log.Printf("[QUERY] %s attempt %d failed, retrying in %s: %v", q.key, attempt+1, delay, err)
		select {
		case <-ctx.Done():
			return data, ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, 30*time.Second)
	}
}

// retryable skips client errors; repeating a 4xx gives the same answer
func retryable(err error) bool {
	code := StatusCode(err)
	return code == 0 || code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
}

func (q *Query[T]) apply(seq, gen uint64, data T, err error) {
	q.mu.Lock()
	if seq <= q.applied {
		q.mu.Unlock()
		log.Printf("[QUERY] %s discarded response %d, %d already applied", q.key, seq, q.applied)
		return
	}
	q.applied = seq
	if err != nil {
		q.err = err
	} else {
		q.data = data
		q.hasData = true
		q.err = nil
		q.updatedAt = q.now()
		if gen == q.generation {
			q.invalidated = false
		}
	}
	data, err = q.data, q.err
	listeners := append([]func(T, error){}, q.listeners...)
	q.mu.Unlock()

	for _, fn := range listeners {
		fn(data, err)
	}
}

// Subscribe registers fn to run after every applied fetch, with the cached
// data and the fetch error
func (q *Query[T]) Subscribe(fn func(T, error)) {
	q.mu.Lock()
	q.listeners = append(q.listeners, fn)
	q.mu.Unlock()
}

// Invalidate marks the cached data stale and, when the query is enabled
// and in use, refetches it. In-flight fetches from before the call are not
// joined.
func (q *Query[T]) Invalidate(ctx context.Context) error {
	q.mu.Lock()
	q.generation++
	q.invalidated = true
	inUse := q.hasData || q.polling()
	q.mu.Unlock()

	if !inUse || !q.enabled() {
		return nil
	}
	_, err := q.Refetch(ctx)
	return err
}

// Reset drops cached data, used when the session changes hands. Fetches
// in flight are discarded and their callers get ErrQuerySuperseded.
func (q *Query[T]) Reset() {
	var zero T
	q.mu.Lock()
	q.generation++
	q.resetGen = q.generation
	q.applied = q.seq
	q.data = zero
	q.hasData = false
	q.err = nil
	q.invalidated = false
	q.mu.Unlock()
}

func (q *Query[T]) polling() bool {
	q.pollMu.Lock()
	defer q.pollMu.Unlock()
	return q.pollStop != nil
}

// Start fetches once and then polls every RefetchInterval until Stop. Polls
// are skipped while the query is disabled.
func (q *Query[T]) Start(ctx context.Context) {
	q.pollMu.Lock()
	defer q.pollMu.Unlock()
	if q.pollStop != nil {
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	q.pollStop, q.pollDone = cancel, done

	go func() {
		defer close(done)
		q.poll(pollCtx)
	}()
}

func (q *Query[T]) poll(ctx context.Context) {
	tick := func() {
		if !q.enabled() {
			return
		}
		if _, err := q.Refetch(ctx); err != nil && ctx.Err() == nil && !errors.Is(err, ErrQuerySuperseded) {
			log.Printf("[QUERY] %s refetch failed: %v", q.key, err)
		}
	}

	tick()
	if q.opts.RefetchInterval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(q.opts.RefetchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}

// Stop ends polling and waits for the poll goroutine
func (q *Query[T]) Stop() {
	q.pollMu.Lock()
	stop, done := q.pollStop, q.pollDone
	q.pollStop, q.pollDone = nil, nil
	q.pollMu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
}

// Close stops polling and abandons in-flight fetches
func (q *Query[T]) Close() {
	q.Stop()
	q.lifeStop()
}

type managedQuery interface {
	Key() string
	Invalidate(ctx context.Context) error
	Reset()
	Start(ctx context.Context)
	Stop()
	Close()
}

// QueryClient indexes queries by key for invalidation
type QueryClient struct {
	mu      sync.RWMutex
	queries map[string]managedQuery
}

// NewQueryClient returns an empty registry
func NewQueryClient() *QueryClient {
	return &QueryClient{queries: make(map[string]managedQuery)}
}

func (c *QueryClient) register(q managedQuery) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries[q.Key()] = q
}

func (c *QueryClient) lookup(keys []string) []managedQuery {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []managedQuery
	for _, k := range keys {
		if q, ok := c.queries[k]; ok {
			out = append(out, q)
		}
	}
	return out
}

func (c *QueryClient) all() []managedQuery {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]managedQuery, 0, len(c.queries))
	for _, q := range c.queries {
		out = append(out, q)
	}
	return out
}

// Invalidate invalidates the named queries concurrently and waits for
// their refetches. Unknown keys are ignored.
func (c *QueryClient) Invalidate(ctx context.Context, keys ...string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, q := range c.lookup(keys) {
		g.Go(func() error {
			if err := q.Invalidate(gctx); err != nil {
				return fmt.Errorf("refetch %s: %w", q.Key(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// ResetAll drops every cached result
func (c *QueryClient) ResetAll() {
	for _, q := range c.all() {
		q.Reset()
	}
}

// StartAll starts polling every registered query
func (c *QueryClient) StartAll(ctx context.Context) {
	for _, q := range c.all() {
		q.Start(ctx)
	}
}

// Close stops every query and waits for their goroutines
func (c *QueryClient) Close() {
	var wg sync.WaitGroup
	for _, q := range c.all() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Close()
		}()
	}
	wg.Wait()
}
