// Package sweep orchestrates one bulk-retrieval pass over the reference URLs.
package sweep

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tollwatch/scraiper/internal/fetcher"
	"github.com/tollwatch/scraiper/internal/toll"
)

// Config controls Sweeper behavior.
type Config struct {
	Topic string
}

// Sweeper loads references, fans them out over the fetch pool, and publishes
// a completion event per stored artifact. A sweep is a best-effort concurrent
// pass, not an atomic unit: partial success is its normal terminal state.
type Sweeper struct {
	refs      toll.ReferenceSource
	pool      *fetcher.Pool
	publisher toll.Publisher
	idGen     toll.IDGenerator
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Sweeper.
func New(
	refs toll.ReferenceSource,
	pool *fetcher.Pool,
	publisher toll.Publisher,
	idGen toll.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) (*Sweeper, error) {
	if refs == nil {
		return nil, fmt.Errorf("reference source is required")
	}
	if pool == nil {
		return nil, fmt.Errorf("fetch pool is required")
	}
	if idGen == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		refs:      refs,
		pool:      pool,
		publisher: publisher,
		idGen:     idGen,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Run executes one sweep. Reference-load failures escape; per-URL fetch
// failures are contained in the report.
func (s *Sweeper) Run(ctx context.Context) (toll.SweepReport, error) {
	urls, err := s.refs.References(ctx)
	if err != nil {
		return toll.SweepReport{}, fmt.Errorf("load references: %w", err)
	}

	sweepID, err := s.idGen.NewID()
	if err != nil {
		return toll.SweepReport{}, fmt.Errorf("generate sweep id: %w", err)
	}

	s.logger.Info("sweep started",
		zap.String("sweep_id", sweepID),
		zap.Int("urls", len(urls)),
	)

	report := s.pool.FetchAll(ctx, urls)
	report.SweepID = sweepID

	for _, outcome := range report.Outcomes {
		if outcome.Err != nil {
			continue
		}
		s.publishResult(ctx, sweepID, outcome.Result)
	}

	s.logger.Info("sweep finished",
		zap.String("sweep_id", sweepID),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// publishResult emits a completion event. Publish failures are logged, not
// escalated: the artifact is already durable in the content store.
func (s *Sweeper) publishResult(ctx context.Context, sweepID string, result toll.FetchResult) {
	if s.cfg.Topic == "" || s.publisher == nil {
		return
	}
	payload := map[string]any{
		"sweep_id":   sweepID,
		"url":        result.URL,
		"key":        result.Key,
		"blob_uri":   result.BlobURI,
		"fetched_at": result.FetchedAt.Format(time.RFC3339),
		"attempts":   result.Attempts,
	}
	if _, err := s.publisher.Publish(ctx, s.cfg.Topic, payload); err != nil {
		s.logger.Warn("publish sweep event failed",
			zap.String("sweep_id", sweepID),
			zap.String("url", result.URL),
			zap.Error(err),
		)
	}
}
