package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/claim-intake/internal/application/port"
	"github.com/garyjia/claim-intake/internal/domain/entity"
	"go.uber.org/zap"
)

var (
	// ErrAsyncUnavailable is returned by Enqueue when no queue is configured
	ErrAsyncUnavailable = errors.New("asynchronous intake is not enabled")

	// ErrRecorderUnavailable is returned by queries when outcomes are not recorded
	ErrRecorderUnavailable = errors.New("outcome history is not enabled")
)

// Processor runs one document through the decision pipeline
type Processor interface {
	Process(ctx context.Context, doc *entity.ClaimDocument) *entity.ClaimOutcome
}

// Queue accepts documents for background processing
type Queue interface {
	Submit(doc *entity.ClaimDocument) error
}

// OutcomeReader answers queries over recorded outcomes
type OutcomeReader interface {
	GetByRunID(ctx context.Context, runID string) (*entity.ClaimOutcome, error)
	List(ctx context.Context, filter port.OutcomeFilter) ([]*entity.ClaimOutcome, error)
	CountByAction(ctx context.Context) (map[entity.RoutingAction]int, error)
}

// ClaimService is the entry point used by the HTTP and CLI adapters
type ClaimService interface {
	Submit(ctx context.Context, doc *entity.ClaimDocument) *entity.ClaimOutcome
	Enqueue(ctx context.Context, doc *entity.ClaimDocument) error
	GetOutcome(ctx context.Context, runID string) (*entity.ClaimOutcome, error)
	ListOutcomes(ctx context.Context, filter port.OutcomeFilter) ([]*entity.ClaimOutcome, error)
	CountByAction(ctx context.Context) (map[entity.RoutingAction]int, error)
}

type claimServiceImpl struct {
	processor Processor
	queue     Queue
	outcomes  OutcomeReader
	logger    *zap.Logger
}

// NewClaimService creates a ClaimService. queue and outcomes may be nil,
// which disables asynchronous intake and history queries respectively.
func NewClaimService(processor Processor, queue Queue, outcomes OutcomeReader, logger *zap.Logger) ClaimService {
	return &claimServiceImpl{
		processor: processor,
		queue:     queue,
		outcomes:  outcomes,
		logger:    logger,
	}
}

// Submit processes the document and returns its outcome
func (s *claimServiceImpl) Submit(ctx context.Context, doc *entity.ClaimDocument) *entity.ClaimOutcome {
	s.logger.Info("Claim submitted",
		zap.String("document_id", doc.ID),
		zap.String("filename", doc.Filename),
		zap.String("category", string(doc.Category)),
		zap.Int("size", doc.Size))
	return s.processor.Process(ctx, doc)
}

// Enqueue hands the document to the background queue
func (s *claimServiceImpl) Enqueue(_ context.Context, doc *entity.ClaimDocument) error {
	if s.queue == nil {
		return ErrAsyncUnavailable
	}
	if err := s.queue.Submit(doc); err != nil {
		return fmt.Errorf("failed to enqueue document: %w", err)
	}
	s.logger.Info("Claim queued",
		zap.String("document_id", doc.ID),
		zap.String("filename", doc.Filename))
	return nil
}

// GetOutcome loads the recorded outcome of a run
func (s *claimServiceImpl) GetOutcome(ctx context.Context, runID string) (*entity.ClaimOutcome, error) {
	if s.outcomes == nil {
		return nil, ErrRecorderUnavailable
	}
	return s.outcomes.GetByRunID(ctx, runID)
}

// ListOutcomes lists recorded outcomes newest first
func (s *claimServiceImpl) ListOutcomes(ctx context.Context, filter port.OutcomeFilter) ([]*entity.ClaimOutcome, error) {
	if s.outcomes == nil {
		return nil, ErrRecorderUnavailable
	}
	return s.outcomes.List(ctx, filter)
}

// CountByAction reports how many recorded claims were routed to each action
func (s *claimServiceImpl) CountByAction(ctx context.Context) (map[entity.RoutingAction]int, error) {
	if s.outcomes == nil {
		return nil, ErrRecorderUnavailable
	}
	return s.outcomes.CountByAction(ctx)
}
