package stripe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/garyjia/claim-intake/internal/application/port"
	"github.com/garyjia/claim-intake/internal/domain/entity"
	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"go.uber.org/zap"
)

var (
	// ErrNoAmount is returned for a claim without a payable amount
	ErrNoAmount = errors.New("claim has no payable amount")

	// ErrNotApproved is returned when the decision is not an approval
	ErrNotApproved = errors.New("claim is not approved for settlement")
)

// Config holds Stripe settlement configuration
type Config struct {
	SecretKey string
	// Currency is used when the claim does not name one.
	Currency string
	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string
}

// Gateway implements port.PaymentGateway with Stripe PaymentIntents
type Gateway struct {
	intents  *paymentintent.Client
	currency string
	logger   *zap.Logger
}

// NewGateway creates a Stripe payment gateway
func NewGateway(cfg Config, logger *zap.Logger) *Gateway {
	backendCfg := &stripe.BackendConfig{
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
		MaxNetworkRetries: stripe.Int64(0),
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(cfg.BaseURL)
	}

	currency := strings.ToLower(cfg.Currency)
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}

	return &Gateway{
		intents: &paymentintent.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
			Key: cfg.SecretKey,
		},
		currency: currency,
		logger:   logger,
	}
}

// SubmitPayment creates a PaymentIntent for the claim amount and returns
// its ID. The source document ID is the idempotency key, so a resubmitted
// claim never pays twice.
func (g *Gateway) SubmitPayment(ctx context.Context, claim *entity.StructuredClaim, decision *entity.RoutingDecision) (string, error) {
	if decision == nil || decision.Action != entity.ActionAutoApprove {
		return "", ErrNotApproved
	}
	cents, err := AmountInCents(claim)
	if err != nil {
		return "", err
	}

	currency := g.currency
	if claim.Currency != "" {
		currency = strings.ToLower(claim.Currency)
	}

	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(cents),
		Currency:    stripe.String(currency),
		Description: stripe.String(fmt.Sprintf("Insurance claim settlement for %s", claim.ClaimantName)),
	}
	params.Context = ctx
	if claim.SourceDocumentID != "" {
		params.SetIdempotencyKey("claim-" + claim.SourceDocumentID)
		params.AddMetadata("document_id", claim.SourceDocumentID)
	}
	params.AddMetadata("claimant_name", claim.ClaimantName)
	params.AddMetadata("policy_id", claim.PolicyID)
	params.AddMetadata("routing_step", decision.Step)

	intent, err := g.intents.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) {
			g.logger.Warn("Stripe rejected payment",
				zap.String("document_id", claim.SourceDocumentID),
				zap.String("type", string(stripeErr.Type)),
				zap.String("code", string(stripeErr.Code)),
				zap.Int("status", stripeErr.HTTPStatusCode))
		}
		return "", fmt.Errorf("failed to create payment intent: %w", err)
	}

	g.logger.Info("Payment intent created",
		zap.String("document_id", claim.SourceDocumentID),
		zap.String("payment_intent", intent.ID),
		zap.Int64("amount_cents", cents),
		zap.String("currency", currency))

	return intent.ID, nil
}

// AmountInCents converts the claim amount to the smallest currency unit
func AmountInCents(claim *entity.StructuredClaim) (int64, error) {
	if claim == nil || claim.Amount == nil {
		return 0, ErrNoAmount
	}
	amount := *claim.Amount
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return 0, fmt.Errorf("%w: %v", ErrNoAmount, amount)
	}
	return int64(math.Round(amount * 100)), nil
}

var _ port.PaymentGateway = (*Gateway)(nil)
