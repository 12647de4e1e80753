package port

import (
	"context"
	"errors"

	"github.com/garyjia/claim-intake/internal/domain/entity"
)

// ErrOutcomeNotFound is returned when no outcome exists for a run ID
var ErrOutcomeNotFound = errors.New("claim outcome not found")

// OutcomeFilter narrows a listing of recorded outcomes
type OutcomeFilter struct {
	State      string
	Action     entity.RoutingAction
	DocumentID string
	Limit      int
	Offset     int
}

// OutcomeRepository records terminal pipeline outcomes for audit
type OutcomeRepository interface {
	Save(ctx context.Context, outcome *entity.ClaimOutcome) error
	GetByRunID(ctx context.Context, runID string) (*entity.ClaimOutcome, error)
	List(ctx context.Context, filter OutcomeFilter) ([]*entity.ClaimOutcome, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
