package rediscache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/facecascade/internal/featurestore"
)

type countingSource struct {
	featurestore.Source
	calls int64
}

func (s *countingSource) SortedValues(ctx context.Context, featureIndex int64) ([]featurestore.ExampleValue, error) {
	atomic.AddInt64(&s.calls, 1)
	return s.Source.SortedValues(ctx, featureIndex)
}

func newTestCache(t *testing.T) (*Cache, *countingSource, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	mem, err := featurestore.NewMemoryFromVectors([][]int{{3, 1}, {-2, 1}, {7, 0}})
	require.NoError(t, err)

	src := &countingSource{Source: mem}
	cfg := &Config{LockExpirationSeconds: 5, TTLSeconds: 60}
	return New(client, src, "fp", cfg, zerolog.Nop()), src, mr
}

func TestCache_ReadThrough(t *testing.T) {
	cache, src, mr := newTestCache(t)
	ctx := context.Background()

	want, err := src.Source.SortedValues(ctx, 0)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := cache.SortedValues(ctx, 0)
		require.NoError(t, err)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("SortedValues() mismatch (-want +got):\n%s", diff)
		}
	}

	require.EqualValues(t, 1, atomic.LoadInt64(&src.calls))
	require.True(t, mr.Exists(cache.Key(0)))
	require.False(t, mr.Exists("lock:"+cache.Key(0)))
}

func TestCache_ConcurrentFillsOnce(t *testing.T) {
	cache, src, _ := newTestCache(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.SortedValues(ctx, 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, atomic.LoadInt64(&src.calls))
}

func TestCache_FallsBackWhenRedisIsDown(t *testing.T) {
	cache, src, mr := newTestCache(t)
	mr.Close()

	got, err := cache.SortedValues(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.EqualValues(t, 1, atomic.LoadInt64(&src.calls))
}

func TestCache_DelegatesOtherReads(t *testing.T) {
	cache, _, _ := newTestCache(t)

	v, err := cache.ValueAt(context.Background(), 0, 2)
	require.NoError(t, err)
	require.Equal(t, 7, v)
	require.Equal(t, 3, cache.Examples())
	require.EqualValues(t, 2, cache.Features())
}

func TestConfig_Enabled(t *testing.T) {
	require.False(t, (&Config{}).Enabled())
	require.True(t, (&Config{Host: "localhost"}).Enabled())
}
