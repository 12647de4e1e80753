package lark

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/claim-intake/internal/application/port"
	"github.com/garyjia/claim-intake/internal/domain/entity"
	"go.uber.org/zap"
)

// TextSender posts a text message to a Lark receiver
type TextSender interface {
	SendText(ctx context.Context, receiveIDType, receiveID, text string) (string, error)
}

// ReviewNotifier implements port.ReviewNotifier by posting a summary of
// the claim to the reviewers' chat
type ReviewNotifier struct {
	sender TextSender
	chatID string
	logger *zap.Logger
}

// NewReviewNotifier creates a notifier posting to chatID
func NewReviewNotifier(sender TextSender, chatID string, logger *zap.Logger) *ReviewNotifier {
	return &ReviewNotifier{sender: sender, chatID: chatID, logger: logger}
}

// NotifyReview posts the review request for a routed claim
func (n *ReviewNotifier) NotifyReview(ctx context.Context, outcome *entity.ClaimOutcome) error {
	if outcome == nil || outcome.Decision == nil {
		return fmt.Errorf("outcome has no routing decision")
	}

	messageID, err := n.sender.SendText(ctx, ReceiveIDChat, n.chatID, ReviewMessage(outcome))
	if err != nil {
		return fmt.Errorf("failed to notify reviewers: %w", err)
	}

	n.logger.Info("Reviewers notified",
		zap.String("run_id", outcome.RunID),
		zap.String("action", string(outcome.Decision.Action)),
		zap.String("message_id", messageID))
	return nil
}

// ReviewMessage renders the reviewer message for an outcome
func ReviewMessage(outcome *entity.ClaimOutcome) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Claim needs review: %s\n", outcome.Decision.Action)
	fmt.Fprintf(&b, "Run: %s\n", outcome.RunID)
	if d := outcome.Document; d != nil {
		fmt.Fprintf(&b, "Document: %s (%s)\n", d.Filename, d.Category)
	}
	if c := outcome.Claim; c != nil {
		if c.ClaimantName != "" {
			fmt.Fprintf(&b, "Claimant: %s\n", c.ClaimantName)
		}
		if c.PolicyID != "" {
			fmt.Fprintf(&b, "Policy: %s\n", c.PolicyID)
		}
		if c.Amount != nil {
			fmt.Fprintf(&b, "Amount: %.2f %s\n", *c.Amount, c.Currency)
		}
	}
	if v := outcome.Validation; v != nil {
		fmt.Fprintf(&b, "Risk score: %.2f (threshold %.2f)\n", v.RiskScore, v.FraudThreshold)
		for _, f := range v.Flags {
			fmt.Fprintf(&b, "Flag: %s: %s\n", f.RuleID, f.Reason)
		}
	}
	fmt.Fprintf(&b, "Reason: %s", outcome.Decision.Rationale)

	return b.String()
}

var _ port.ReviewNotifier = (*ReviewNotifier)(nil)
