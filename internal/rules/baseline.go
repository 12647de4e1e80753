package rules

import (
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/garyjia/claim-intake/internal/domain/entity"
	"github.com/garyjia/claim-intake/pkg/utils"
	"github.com/go-playground/validator/v10"
)

// Options holds the thresholds the baseline rules read
type Options struct {
	MaxClaimAmount         float64
	ManualReviewThreshold  float64
	ReviewFlagRatio        float64
	IncidentRetentionYears int
	// Now is the clock used for date rules; nil means time.Now.
	Now func() time.Time
}

var (
	policyIDRegex = regexp.MustCompile(`^[A-Z0-9\-]+$`)
	vinRegex      = regexp.MustCompile(`^[A-HJ-NPR-Z0-9]{17}$`)

	codes = validator.New()
)

const (
	minNameRunes     = 2
	maxNameRunes     = 100
	minPolicyIDLen   = 5
	maxPolicyIDLen   = 50
	estimateMaxDrift = 0.5
	roundAmountFloor = 5000
)

// MissingFieldID is the identifier of the presence rule for a field
func MissingFieldID(field string) string {
	return "MISSING_FIELD(" + field + ")"
}

// Baseline returns the standard rule set in evaluation order
func Baseline(opts Options) []Rule {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return []Rule{
		{ID: MissingFieldID(entity.FieldClaimantName), Check: func(c *entity.StructuredClaim) Outcome {
			if strings.TrimSpace(c.ClaimantName) == "" {
				return Fail("claimant name is missing")
			}
			return Pass()
		}},
		{ID: MissingFieldID(entity.FieldAmount), Check: func(c *entity.StructuredClaim) Outcome {
			if c.Amount == nil {
				return Fail("claim amount is missing")
			}
			return Pass()
		}},
		{ID: MissingFieldID(entity.FieldIncidentDate), Check: func(c *entity.StructuredClaim) Outcome {
			if c.IncidentDate == nil {
				return Fail("incident date is missing")
			}
			return Pass()
		}},
		{ID: "AMOUNT_BOUNDS", Check: amountBounds(opts)},
		{ID: "INCIDENT_DATE_RANGE", Check: incidentDateRange(opts.IncidentRetentionYears, now)},
		{ID: "POLICY_ID_FORMAT", Check: policyIDFormat},
		{ID: "CLAIMANT_EMAIL_FORMAT", Check: func(c *entity.StructuredClaim) Outcome {
			if c.ClaimantEmail == "" {
				return Pass()
			}
			if err := utils.ValidateEmail(c.ClaimantEmail); err != nil {
				return Fail("%v", err)
			}
			return Pass()
		}},
		{ID: "CLAIMANT_PHONE_FORMAT", Check: func(c *entity.StructuredClaim) Outcome {
			if c.ClaimantPhone == "" {
				return Pass()
			}
			if err := utils.ValidatePhone(c.ClaimantPhone); err != nil {
				return Fail("%v", err)
			}
			return Pass()
		}},
		{ID: "CLAIMANT_NAME_LENGTH", Check: claimantNameLength},
		{ID: "VEHICLE_VIN_FORMAT", Check: vinFormat},
		{ID: "ESTIMATE_CONSISTENCY", Check: estimateConsistency},
		{ID: "POLICY_HOLDER_MATCH", Check: policyHolderMatch},
		{ID: "ROUND_AMOUNT", Check: roundAmount},
		{ID: "CURRENCY_CODE", Check: currencyCode},
	}
}

func amountBounds(opts Options) func(*entity.StructuredClaim) Outcome {
	flagAt := opts.ReviewFlagRatio * opts.ManualReviewThreshold
	return func(c *entity.StructuredClaim) Outcome {
		if c.Amount == nil {
			return Pass()
		}
		amount := *c.Amount
		switch {
		case math.IsNaN(amount) || amount < 0:
			return Fail("amount %.2f is not a non-negative number", amount)
		case amount > opts.MaxClaimAmount:
			return Fail("amount %.2f exceeds maximum %.2f", amount, opts.MaxClaimAmount)
		case flagAt > 0 && amount >= flagAt:
			return Flag("amount %.2f is near or above the manual review ceiling %.2f", amount, opts.ManualReviewThreshold)
		}
		return Pass()
	}
}

func incidentDateRange(years int, now func() time.Time) func(*entity.StructuredClaim) Outcome {
	return func(c *entity.StructuredClaim) Outcome {
		if c.IncidentDate == nil {
			return Pass()
		}
		today := truncateDay(now())
		incident := truncateDay(*c.IncidentDate)

		if incident.After(today) {
			return Fail("incident date %s is in the future", incident.Format("2006-01-02"))
		}
		if oldest := today.AddDate(-years, 0, 0); incident.Before(oldest) {
			return Fail("incident date %s is older than %d years", incident.Format("2006-01-02"), years)
		}
		return Pass()
	}
}

func policyIDFormat(c *entity.StructuredClaim) Outcome {
	id := c.PolicyID
	if id == "" {
		return Pass()
	}
	switch {
	case len(id) < minPolicyIDLen:
		return Fail("policy id %q is shorter than %d characters", id, minPolicyIDLen)
	case len(id) > maxPolicyIDLen:
		return Fail("policy id is longer than %d characters", maxPolicyIDLen)
	case !policyIDRegex.MatchString(strings.ToUpper(id)):
		return Fail("policy id %q may only contain letters, digits and hyphens", id)
	}
	return Pass()
}

func claimantNameLength(c *entity.StructuredClaim) Outcome {
	if c.ClaimantName == "" {
		return Pass()
	}
	n := utf8.RuneCountInString(c.ClaimantName)
	switch {
	case n < minNameRunes:
		return Fail("claimant name is too short")
	case n > maxNameRunes:
		return Fail("claimant name is longer than %d characters", maxNameRunes)
	}
	return Pass()
}

func vinFormat(c *entity.StructuredClaim) Outcome {
	vin := strings.ToUpper(c.VehicleVIN)
	if vin == "" {
		return Pass()
	}
	if !vinRegex.MatchString(vin) {
		return Fail("VIN %q must be 17 characters without I, O or Q", vin)
	}
	if !vinChecksumValid(vin) {
		return Flag("VIN %s check digit does not match", vin)
	}
	return Pass()
}

func estimateConsistency(c *entity.StructuredClaim) Outcome {
	if c.Amount == nil || c.EstimatedDamage == nil {
		return Pass()
	}
	claimed, estimate := *c.Amount, *c.EstimatedDamage
	larger := math.Max(claimed, estimate)
	if larger <= 0 {
		return Pass()
	}
	if drift := math.Abs(estimate-claimed) / larger; drift > estimateMaxDrift {
		return Flag("claimed amount %.2f differs from estimated damage %.2f by %.0f%%", claimed, estimate, drift*100)
	}
	return Pass()
}

func policyHolderMatch(c *entity.StructuredClaim) Outcome {
	if c.ClaimantName == "" || c.PolicyHolderName == "" {
		return Pass()
	}
	if !strings.EqualFold(strings.Join(strings.Fields(c.ClaimantName), " "), strings.Join(strings.Fields(c.PolicyHolderName), " ")) {
		return Flag("claimant %q differs from policy holder %q", c.ClaimantName, c.PolicyHolderName)
	}
	return Pass()
}

func roundAmount(c *entity.StructuredClaim) Outcome {
	if c.Amount == nil {
		return Pass()
	}
	if a := *c.Amount; a >= roundAmountFloor && math.Mod(a, 1000) == 0 {
		return Flag("amount %.0f is a round number", a)
	}
	return Pass()
}

var (
	vinTransliteration = map[rune]int{
		'A': 1, 'B': 2, 'C': 3, 'D': 4, 'E': 5, 'F': 6, 'G': 7, 'H': 8,
		'J': 1, 'K': 2, 'L': 3, 'M': 4, 'N': 5, 'P': 7, 'R': 9,
		'S': 2, 'T': 3, 'U': 4, 'V': 5, 'W': 6, 'X': 7, 'Y': 8, 'Z': 9,
	}
	vinWeights = [17]int{8, 7, 6, 5, 4, 3, 2, 10, 0, 9, 8, 7, 6, 5, 4, 3, 2}
)

// vinChecksumValid verifies the ISO 3779 check digit at position 9
func vinChecksumValid(vin string) bool {
	sum := 0
	for i, r := range vin {
		v, ok := vinTransliteration[r]
		if !ok {
			v = int(r - '0')
		}
		sum += v * vinWeights[i]
	}
	check := byte('0' + sum%11)
	if sum%11 == 10 {
		check = 'X'
	}
	return vin[8] == check
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func currencyCode(c *entity.StructuredClaim) Outcome {
	if c.Currency == "" {
		return Pass()
	}
	if err := codes.Var(c.Currency, "iso4217"); err != nil {
		return Fail("currency %q is not an ISO 4217 code", c.Currency)
	}
	return Pass()
}
