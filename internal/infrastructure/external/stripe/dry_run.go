package stripe

import (
	"context"

	"github.com/garyjia/claim-intake/internal/application/port"
	"github.com/garyjia/claim-intake/internal/domain/entity"
	"go.uber.org/zap"
)

// DryRunGateway accepts every approved claim without moving money. The
// reference is derived from the document so reruns are stable.
type DryRunGateway struct {
	logger *zap.Logger
}

// NewDryRunGateway creates a gateway for local runs
func NewDryRunGateway(logger *zap.Logger) *DryRunGateway {
	return &DryRunGateway{logger: logger}
}

// SubmitPayment validates the claim like the real gateway and returns a
// dry-run reference
func (g *DryRunGateway) SubmitPayment(ctx context.Context, claim *entity.StructuredClaim, decision *entity.RoutingDecision) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if decision == nil || decision.Action != entity.ActionAutoApprove {
		return "", ErrNotApproved
	}
	cents, err := AmountInCents(claim)
	if err != nil {
		return "", err
	}

	ref := "dryrun_" + claim.SourceDocumentID
	g.logger.Info("Dry-run settlement",
		zap.String("reference", ref),
		zap.Int64("amount_cents", cents))
	return ref, nil
}

var _ port.PaymentGateway = (*DryRunGateway)(nil)
