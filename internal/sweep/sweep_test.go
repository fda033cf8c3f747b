package sweep

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tollwatch/scraiper/internal/fetcher"
	"github.com/tollwatch/scraiper/internal/publisher/memory"
	"github.com/tollwatch/scraiper/internal/toll"
)

type fakeRefs struct {
	urls []string
	err  error
}

func (f *fakeRefs) References(ctx context.Context) ([]string, error) {
	return f.urls, f.err
}

type fakeFetcher struct{}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (toll.FetchResult, error) {
	if strings.Contains(url, "bad") {
		return toll.FetchResult{URL: url}, errors.New("boom")
	}
	return toll.FetchResult{
		URL:       url,
		Key:       "abc123.pdf",
		BlobURI:   "file:///pdfs/abc123.pdf",
		FetchedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Attempts:  1,
	}, nil
}

type fakeIDGen struct {
	id  string
	err error
}

func (f *fakeIDGen) NewID() (string, error) { return f.id, f.err }

func newTestSweeper(t *testing.T, refs toll.ReferenceSource, pub toll.Publisher, topic string) *Sweeper {
	t.Helper()
	pool, err := fetcher.NewPool(&fakeFetcher{}, 4, zap.NewNop())
	require.NoError(t, err)
	s, err := New(refs, pool, pub, &fakeIDGen{id: "sweep-1"}, Config{Topic: topic}, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestSweeperPublishesSuccessesOnly(t *testing.T) {
	refs := &fakeRefs{urls: []string{
		"http://example.com/a.pdf",
		"http://example.com/bad.pdf",
		"http://example.com/b.pdf",
	}}
	pub := memory.New()
	s := newTestSweeper(t, refs, pub, "toll-sweeps")

	report, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "sweep-1", report.SweepID)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)

	events := pub.Payloads("toll-sweeps")
	require.Len(t, events, 2)

	event, ok := events[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "sweep-1", event["sweep_id"])
	assert.Equal(t, "abc123.pdf", event["key"])
	assert.NotContains(t, event["url"], "bad")
}

func TestSweeperReferenceLoadFailure(t *testing.T) {
	refs := &fakeRefs{err: errors.New("connection refused")}
	s := newTestSweeper(t, refs, memory.New(), "toll-sweeps")

	_, err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load references")
}

func TestSweeperNoPublisherConfigured(t *testing.T) {
	refs := &fakeRefs{urls: []string{"http://example.com/a.pdf"}}
	s := newTestSweeper(t, refs, nil, "")

	report, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
}

func TestSweeperPublishFailureDoesNotFailRun(t *testing.T) {
	refs := &fakeRefs{urls: []string{"http://example.com/a.pdf"}}
	s := newTestSweeper(t, refs, &failingPublisher{}, "toll-sweeps")

	report, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
}

type failingPublisher struct{}

func (f *failingPublisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	return "", errors.New("topic unavailable")
}
