package fetcher

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tollwatch/scraiper/internal/toll"
)

// fakeFetcher fails URLs containing "bad" and records concurrency.
type fakeFetcher struct {
	mu         sync.Mutex
	inFlight   int
	maxSeen    int
	fetched    []string
	perURLWait time.Duration
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (toll.FetchResult, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.mu.Unlock()

	if f.perURLWait > 0 {
		time.Sleep(f.perURLWait)
	}

	f.mu.Lock()
	f.inFlight--
	f.fetched = append(f.fetched, url)
	f.mu.Unlock()

	if strings.Contains(url, "bad") {
		return toll.FetchResult{}, &Error{URL: url, Attempts: 1, Last: fmt.Errorf("unreachable")}
	}
	return toll.FetchResult{URL: url, Key: "k", Attempts: 1}, nil
}

func TestFetchAllIsolatesFailures(t *testing.T) {
	t.Parallel()

	urls := make([]string, 0, 20)
	for i := range 20 {
		if i%4 == 0 {
			urls = append(urls, fmt.Sprintf("http://bad.example/%d.pdf", i))
		} else {
			urls = append(urls, fmt.Sprintf("http://good.example/%d.pdf", i))
		}
	}

	f := &fakeFetcher{}
	pool, err := NewPool(f, 4, zap.NewNop())
	require.NoError(t, err)

	report := pool.FetchAll(context.Background(), urls)
	require.Len(t, report.Outcomes, 20)
	require.Equal(t, 15, report.Succeeded)
	require.Equal(t, 5, report.Failed)

	for _, o := range report.Outcomes {
		if strings.Contains(o.URL, "bad") {
			require.Error(t, o.Err)
		} else {
			require.NoError(t, o.Err)
		}
	}
}

func TestFetchAllBoundsConcurrency(t *testing.T) {
	t.Parallel()

	urls := make([]string, 0, 16)
	for i := range 16 {
		urls = append(urls, fmt.Sprintf("http://good.example/%d.pdf", i))
	}

	f := &fakeFetcher{perURLWait: 20 * time.Millisecond}
	pool, err := NewPool(f, 3, zap.NewNop())
	require.NoError(t, err)

	report := pool.FetchAll(context.Background(), urls)
	require.Equal(t, 16, report.Succeeded)
	require.LessOrEqual(t, f.maxSeen, 3)
	require.Greater(t, f.maxSeen, 1, "expected some parallelism")
}

func TestFetchAllEmptyInput(t *testing.T) {
	t.Parallel()

	pool, err := NewPool(&fakeFetcher{}, 8, zap.NewNop())
	require.NoError(t, err)

	report := pool.FetchAll(context.Background(), nil)
	require.Empty(t, report.Outcomes)
	require.Zero(t, report.Succeeded)
	require.Zero(t, report.Failed)
}

func TestNewPoolRequiresFetcher(t *testing.T) {
	t.Parallel()

	_, err := NewPool(nil, 8, zap.NewNop())
	require.Error(t, err)
}
