package worker

import (
	"context"
	"time"

	"github.com/garyjia/claim-intake/internal/domain/entity"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// PoolConfig bounds batch processing
type PoolConfig struct {
	Concurrency int
	// RatePerSecond limits how fast runs start; zero means unlimited.
	RatePerSecond float64
}

// Pool processes a batch of documents with bounded concurrency. Runs are
// independent and share nothing but the processor.
type Pool struct {
	processor Processor
	cfg       PoolConfig
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// NewPool creates a batch pool
func NewPool(processor Processor, cfg PoolConfig, logger *zap.Logger) *Pool {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &Pool{
		processor: processor,
		cfg:       cfg,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logger,
	}
}

// Run processes every document and returns the outcomes in input order.
// Documents not started before ctx ends have a nil outcome.
func (p *Pool) Run(ctx context.Context, docs []*entity.ClaimDocument) []*entity.ClaimOutcome {
	outcomes := make([]*entity.ClaimOutcome, len(docs))
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	for i, doc := range docs {
		if err := p.limiter.Wait(gctx); err != nil {
			p.logger.Warn("Batch interrupted", zap.Int("started", i), zap.Int("total", len(docs)), zap.Error(err))
			break
		}
		i, doc := i, doc
		g.Go(func() error {
			outcomes[i] =p.processor.Process(gctx, doc)
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Info("Batch processed",
		zap.Int("documents", len(docs)),
		zap.Int("concurrency", p.cfg.Concurrency),
		zap.Duration("elapsed", time.Since(start)))

	return outcomes
}
