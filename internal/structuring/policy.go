package structuring

import (
	"fmt"

	"github.com/garyjia/claim-intake/internal/domain/entity"
)

// RetryPolicy bounds how often the extractor is re-invoked and for which
// failure reasons.
type RetryPolicy struct {
	MaxAttempts      int
	RetryableReasons []entity.StructuringReason
}

// DefaultRetryPolicy retries schema mismatches only. maxRetries counts
// re-invocations after the first attempt.
func DefaultRetryPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      maxRetries + 1,
		RetryableReasons: []entity.StructuringReason{entity.StructuringSchemaMismatch},
	}
}

// Validate checks the policy allows at least one attempt
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return entity.NewConfigurationError("pipeline.max_structuring_retries", "must allow at least one attempt, got %d", p.MaxAttempts)
	}
	for _, r := range p.RetryableReasons {
		if r == entity.StructuringEngineError || r == entity.StructuringLowConfidence {
			return entity.NewConfigurationError("pipeline.max_structuring_retries", "%s is never retried", r)
		}
	}
	return nil
}

// Retryable reports whether a failure with the given reason may be retried
func (p RetryPolicy) Retryable(reason entity.StructuringReason) bool {
	for _, r := range p.RetryableReasons {
		if r == reason {
			return true
		}
	}
	return false
}

// ShouldRetry reports whether another attempt follows the given one
func (p RetryPolicy) ShouldRetry(reason entity.StructuringReason, attempt int) bool {
	return attempt < p.MaxAttempts && p.Retryable(reason)
}

func (p RetryPolicy) String() string {
	return fmt.Sprintf("RetryPolicy{MaxAttempts: %d, Retryable: %v}", p.MaxAttempts, p.RetryableReasons)
}
