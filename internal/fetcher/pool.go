package fetcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/tollwatch/scraiper/internal/toll"
)

// Pool runs many fetches under a bounded worker budget. Each URL is fetched
// independently: one URL exhausting its retries never cancels or delays its
// siblings.
type Pool struct {
	fetcher    toll.Fetcher
	maxWorkers int
	logger     *zap.Logger
}

// NewPool constructs a Pool.
func NewPool(fetcher toll.Fetcher, maxWorkers int, logger *zap.Logger) (*Pool, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if maxWorkers <= 0 {
		maxWorkers = 32
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		fetcher:    fetcher,
		maxWorkers: maxWorkers,
		logger:     logger,
	}, nil
}

// FetchAll fetches every URL and collects per-URL outcomes as they complete.
// Completion order is unspecified. Partial success is the normal terminal
// state: the report carries counts for observability, not thresholds.
func (p *Pool) FetchAll(ctx context.Context, urls []string) toll.SweepReport {
	report := toll.SweepReport{
		Outcomes: make([]toll.FetchOutcome, 0, len(urls)),
	}
	if len(urls) == 0 {
		return report
	}

	workers, err := ants.NewPool(p.maxWorkers)
	if err != nil {
		// Pool construction only fails on invalid sizes; fall back to a
		// serial sweep rather than dropping the batch.
		p.logger.Error("worker pool init failed, fetching serially", zap.Error(err))
		for _, u := range urls {
			report.Outcomes = append(report.Outcomes, p.fetchOne(ctx, u))
		}
		return p.tally(report)
	}
	defer workers.Release()

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, u := range urls {
		wg.Add(1)
		url := u
		submitErr := workers.Submit(func() {
			defer wg.Done()
			outcome := p.fetchOne(ctx, url)
			mu.Lock()
			report.Outcomes = append(report.Outcomes, outcome)
			mu.Unlock()
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			report.Outcomes = append(report.Outcomes, toll.FetchOutcome{
				URL: url,
				Err: fmt.Errorf("submit fetch: %w", submitErr),
			})
			mu.Unlock()
		}
	}
	wg.Wait()

	return p.tally(report)
}

func (p *Pool) fetchOne(ctx context.Context, url string) toll.FetchOutcome {
	result, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		p.logger.Error("fetch failed", zap.String("url", url), zap.Error(err))
		return toll.FetchOutcome{URL: url, Err: err}
	}
	return toll.FetchOutcome{URL: url, Result: result}
}

func (p *Pool) tally(report toll.SweepReport) toll.SweepReport {
	for _, o := range report.Outcomes {
		if o.Err != nil {
			report.Failed++
		} else {
			report.Succeeded++
		}
	}
	return report
}
