package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryServesFreshDataFromCache(t *testing.T) {
	var calls atomic.Int32
	q := NewQuery(nil, "k", func(ctx context.Context) (int, error) {
		return int(calls.Add(1)), nil
	}, QueryOptions{StaleTime: 5 * time.Second})
	clock := time.Now()
	q.now = func() time.Time { return clock }
	ctx := context.Background()

	v, err := q.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	clock = clock.Add(4 * time.Second)
	v, _ = q.Get(ctx)
	assert.Equal(t, 1, v)
	assert.False(t, q.IsStale())

	clock = clock.Add(2 * time.Second)
	assert.True(t, q.IsStale())
	v, _ = q.Get(ctx)
	assert.Equal(t, 2, v)
}

func TestQueryDiscardsOutOfOrderResponses(t *testing.T) {
	gates := []chan struct{}{make(chan struct{}), make(chan struct{})}
	var calls atomic.Int32
	q := NewQuery(nil, "orders", func(ctx context.Context) (string, error) {
		n := calls.Add(1)
		<-gates[n-1]
		if n == 1 {
			return "stale", nil
		}
		return "fresh", nil
	}, QueryOptions{})
	ctx := context.Background()

	first := make(chan struct{})
	go func() {
		defer close(first)
		_, _ = q.Refetch(ctx)
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	// a new generation does not join the first flight
	require.NoError(t, q.Invalidate(ctx))
	second := make(chan string)
	go func() {
		v, _ := q.Refetch(ctx)
		second <- v
	}()
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)

	close(gates[1])
	assert.Equal(t, "fresh", <-second)

	close(gates[0])
	<-first
	v, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, "fresh", v)
}

func TestQuerySharesConcurrentFetches(t *testing.T) {
	gate := make(chan struct{})
	var calls atomic.Int32
	q := NewQuery(nil, "k", func(ctx context.Context) (int, error) {
		calls.Add(1)
		<-gate
		return 7, nil
	}, QueryOptions{})

	var wg sync.WaitGroup
	results := make([]int, 5)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = q.Refetch(context.Background())
		}()
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []int{7, 7, 7, 7, 7}, results)
}

func TestQueryCallerContextOnlyBoundsTheWait(t *testing.T) {
	gate := make(chan struct{})
	q := NewQuery(nil, "k", func(ctx context.Context) (int, error) {
		<-gate
		return 1, nil
	}, QueryOptions{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := q.Refetch(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(gate)
	require.Eventually(t, func() bool { _, ok := q.Peek(); return ok }, time.Second, time.Millisecond)
}

func TestQueryRetry(t *testing.T) {
	t.Run("server errors are retried", func(t *testing.T) {
		var calls atomic.Int32
		q := NewQuery(nil, "wallet", func(ctx context.Context) (int, error) {
			if calls.Add(1) == 1 {
				return 0, &APIError{StatusCode: http.StatusInternalServerError, Message: "boom"}
			}
			return 42, nil
		}, QueryOptions{Retry: 1, RetryDelay: time.Millisecond})

		v, err := q.Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 42, v)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("client errors are not", func(t *testing.T) {
		var calls atomic.Int32
		q := NewQuery(nil, "wallet", func(ctx context.Context) (int, error) {
			calls.Add(1)
			return 0, &APIError{StatusCode: http.StatusNotFound}
		}, QueryOptions{Retry: 3, RetryDelay: time.Millisecond})

		_, err := q.Get(context.Background())
		assert.True(t, IsNotFound(err))
		assert.Equal(t, int32(1), calls.Load())
		assert.True(t, IsNotFound(q.Err()))
	})

	t.Run("gives up after the retry budget", func(t *testing.T) {
		var calls atomic.Int32
		boom := errors.New("connection refused")
		q := NewQuery(nil, "wallet", func(ctx context.Context) (int, error) {
			calls.Add(1)
			return 0, boom
		}, QueryOptions{Retry: 1, RetryDelay: time.Millisecond})

		_, err := q.Get(context.Background())
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, int32(2), calls.Load())
	})
}

func TestQueryDisabled(t *testing.T) {
	var calls atomic.Int32
	enabled := false
	q := NewQuery(nil, "k", func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 1, nil
	}, QueryOptions{Enabled: func() bool { return enabled }})

	_, err := q.Get(context.Background())
	assert.ErrorIs(t, err, ErrQueryDisabled)
	assert.NoError(t, q.Invalidate(context.Background()))
	assert.Zero(t, calls.Load())

	enabled = true
	v, err := q.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestQueryPolling(t *testing.T) {
	var calls atomic.Int32
	q := NewQuery(nil, "k", func(ctx context.Context) (int, error) {
		return int(calls.Add(1)), nil
	}, QueryOptions{RefetchInterval: 10 * time.Millisecond})

	var mu sync.Mutex
	var seen []int
	q.Subscribe(func(v int, err error) {
		mu.Lock()
		seen = append(seen, v)
		mu.Unlock()
	})

	q.Start(context.Background())
	q.Start(context.Background())
	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
	q.Stop()

	stopped := calls.Load()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, stopped, calls.Load())

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i], seen[i-1])
	}
}

func TestQueryReset(t *testing.T) {
	var calls atomic.Int32
	q := NewQuery(nil, "k", func(ctx context.Context) (int, error) {
		return int(calls.Add(1)), nil
	}, QueryOptions{StaleTime: time.Hour})

	_, err := q.Get(context.Background())
	require.NoError(t, err)
	q.Reset()
	_, ok := q.Peek()
	assert.False(t, ok)

	v, _ := q.Get(context.Background())
	assert.Equal(t, 2, v)
}

func TestQueryResetSupersedesInFlightFetch(t *testing.T) {
	gate := make(chan struct{})
	var calls atomic.Int32
	q := NewQuery(nil, "producer-orders", func(ctx context.Context) ([]string, error) {
		if calls.Add(1) == 1 {
			<-gate
			return []string{"previous session"}, nil
		}
		return []string{"current session"}, nil
	}, QueryOptions{StaleTime: time.Hour})

	type result struct {
		v   []string
		err error
	}
	first := make(chan result, 1)
	go func() {
		v, err := q.Refetch(context.Background())
		first <- result{v, err}
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	q.Reset()
	close(gate)
	res := <-first
	assert.ErrorIs(t, res.err, ErrQuerySuperseded)
	assert.Nil(t, res.v)
	_, ok := q.Peek()
	assert.False(t, ok)

	v, err := q.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"current session"}, v)
}

func TestQueryClientInvalidate(t *testing.T) {
	qc := NewQueryClient()
	var a, b, idle atomic.Int32
	qa := NewQuery(qc, "a", func(ctx context.Context) (int32, error) { return a.Add(1), nil }, QueryOptions{StaleTime: time.Hour})
	qb := NewQuery(qc, "b", func(ctx context.Context) (int32, error) { return b.Add(1), nil }, QueryOptions{StaleTime: time.Hour})
	qIdle := NewQuery(qc, "idle", func(ctx context.Context) (int32, error) { return idle.Add(1), nil }, QueryOptions{})
	defer qc.Close()
	ctx := context.Background()

	_, _ = qa.Get(ctx)
	_, _ = qb.Get(ctx)

	require.NoError(t, qc.Invalidate(ctx, "a", "b", "idle", "missing"))
	assert.Equal(t, int32(2), a.Load())
	assert.Equal(t, int32(2), b.Load())
	// never read, so only marked stale
	assert.Zero(t, idle.Load())
	assert.True(t, qIdle.IsStale())

	v, _ := qa.Get(ctx)
	assert.Equal(t, int32(2), v)
}
