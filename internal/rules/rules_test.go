package rules

import (
	"testing"
	"time"

	"github.com/garyjia/claim-intake/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func testOptions() Options {
	return Options{
		MaxClaimAmount:         100000,
		ManualReviewThreshold:  50000,
		ReviewFlagRatio:        0.9,
		IncidentRetentionYears: 5,
		Now:                    func() time.Time { return fixedNow },
	}
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(Baseline(testOptions()), zap.NewNop())
	require.NoError(t, err)
	return e
}

func ptr[T any](v T) *T {
	return &v
}

func validClaim() *entity.StructuredClaim {
	return &entity.StructuredClaim{
		ClaimantName:  "J. Doe",
		ClaimantEmail: "j.doe@example.com",
		ClaimantPhone: "(555) 123-4567",
		PolicyID:      "POL-1",
		IncidentDate:  ptr(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)),
		Amount:        ptr(800.0),
	}
}

func failedIDs(r *Report) []string {
	ids := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		ids = append(ids, f.RuleID)
	}
	return ids
}

func flagIDs(r *Report) []string {
	ids := make([]string, 0, len(r.Flags))
	for _, f := range r.Flags {
		ids = append(ids, f.RuleID)
	}
	return ids
}

func TestEngine_ValidClaimPassesEverything(t *testing.T) {
	e := newEngine(t)
	report := e.Evaluate(validClaim())

	assert.Empty(t, report.Failed)
	assert.Empty(t, report.Flags)
	assert.Equal(t, e.RuleIDs(), report.Passed)
}

func TestEngine_RequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *entity.StructuredClaim)
		want   string
	}{
		{"claimant name", func(c *entity.StructuredClaim) { c.ClaimantName = "  " }, "MISSING_FIELD(claimant_name)"},
		{"amount", func(c *entity.StructuredClaim) { c.Amount = nil }, "MISSING_FIELD(amount)"},
		{"incident date", func(c *entity.StructuredClaim) { c.IncidentDate = nil }, "MISSING_FIELD(incident_date)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validClaim()
			tt.mutate(c)

			report := newEngine(t).Evaluate(c)
			assert.Contains(t, failedIDs(report), tt.want)
		})
	}
}

func TestEngine_EvaluatesAllRulesAfterFailure(t *testing.T) {
	c := &entity.StructuredClaim{
		ClaimantEmail: "broken",
		PolicyID:      "P!",
		VehicleVIN:    "SHORT",
		Currency:      "XX",
	}

	report := newEngine(t).Evaluate(c)

	assert.ElementsMatch(t, []string{
		"MISSING_FIELD(claimant_name)",
		"MISSING_FIELD(amount)",
		"MISSING_FIELD(incident_date)",
		"POLICY_ID_FORMAT",
		"CLAIMANT_EMAIL_FORMAT",
		"VEHICLE_VIN_FORMAT",
		"CURRENCY_CODE",
	}, failedIDs(report))
	assert.Equal(t, len(newEngine(t).RuleIDs()), len(report.Passed)+len(report.Failed))
}

func TestAmountBounds(t *testing.T) {
	tests := []struct {
		name     string
		amount   float64
		wantFail bool
		wantFlag bool
	}{
		{"small", 800, false, false},
		{"just below flag line", 44999.99, false, false},
		{"at flag line", 45000, false, true},
		{"above manual review", 75000, false, true},
		{"at maximum", 100000, false, true},
		{"above maximum", 100000.01, true, false},
		{"zero", 0, false, false},
	}

	check := amountBounds(testOptions())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := check(&entity.StructuredClaim{Amount: ptr(tt.amount)})
			assert.Equal(t, tt.wantFail, out.Verdict == VerdictFail, out.Reason)
			assert.Equal(t, tt.wantFlag, out.Verdict == VerdictFlag, out.Reason)
		})
	}
}

func TestIncidentDateRange(t *testing.T) {
	tests := []struct {
		name     string
		date     time.Time
		wantFail bool
	}{
		{"today", time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), false},
		{"tomorrow", time.Date(2024, 6, 16, 0, 0, 0, 0, time.UTC), true},
		{"exactly five years", time.Date(2019, 6, 15, 0, 0, 0, 0, time.UTC), false},
		{"five years and a day", time.Date(2019, 6, 14, 0, 0, 0, 0, time.UTC), true},
	}

	check := incidentDateRange(5, func() time.Time { return fixedNow })
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := check(&entity.StructuredClaim{IncidentDate: ptr(tt.date)})
			assert.Equal(t, tt.wantFail, out.Verdict == VerdictFail, out.Reason)
		})
	}
}

func TestFormatRules(t *testing.T) {
	tests := []struct {
		name    string
		check   func(*entity.StructuredClaim) Outcome
		claim   entity.StructuredClaim
		verdict Verdict
	}{
		{"policy ok", policyIDFormat, entity.StructuredClaim{PolicyID: "POL-12345"}, VerdictPass},
		{"policy absent", policyIDFormat, entity.StructuredClaim{}, VerdictPass},
		{"policy short", policyIDFormat, entity.StructuredClaim{PolicyID: "P-1"}, VerdictFail},
		{"policy symbols", policyIDFormat, entity.StructuredClaim{PolicyID: "POL_123/4"}, VerdictFail},
		{"name ok", claimantNameLength, entity.StructuredClaim{ClaimantName: "Jo"}, VerdictPass},
		{"name one rune", claimantNameLength, entity.StructuredClaim{ClaimantName: "J"}, VerdictFail},
		{"vin valid", vinFormat, entity.StructuredClaim{VehicleVIN: "1HGCM82633A004352"}, VerdictPass},
		{"vin bad check digit", vinFormat, entity.StructuredClaim{VehicleVIN: "1HGCM82643A004352"}, VerdictFlag},
		{"vin with O", vinFormat, entity.StructuredClaim{VehicleVIN: "1HGCM82633O004352"}, VerdictFail},
		{"estimate close", estimateConsistency, entity.StructuredClaim{Amount: ptr(1000.0), EstimatedDamage: ptr(900.0)}, VerdictPass},
		{"estimate far", estimateConsistency, entity.StructuredClaim{Amount: ptr(5000.0), EstimatedDamage: ptr(1000.0)}, VerdictFlag},
		{"holder same", policyHolderMatch, entity.StructuredClaim{ClaimantName: "jane  roe", PolicyHolderName: "Jane Roe"}, VerdictPass},
		{"holder differs", policyHolderMatch, entity.StructuredClaim{ClaimantName: "Jane Roe", PolicyHolderName: "John Roe"}, VerdictFlag},
		{"round amount", roundAmount, entity.StructuredClaim{Amount: ptr(20000.0)}, VerdictFlag},
		{"small round amount", roundAmount, entity.StructuredClaim{Amount: ptr(1000.0)}, VerdictPass},
		{"currency absent", currencyCode, entity.StructuredClaim{}, VerdictPass},
		{"currency ok", currencyCode, entity.StructuredClaim{Currency: "EUR"}, VerdictPass},
		{"currency word", currencyCode, entity.StructuredClaim{Currency: "DOLLARS"}, VerdictFail},
		{"currency unknown", currencyCode, entity.StructuredClaim{Currency: "ZZZ"}, VerdictFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.check(&tt.claim)
			assert.Equal(t, tt.verdict, out.Verdict, "reason: %s", out.Reason)
		})
	}
}

func TestEngine_FlagsDoNotFail(t *testing.T) {
	c := validClaim()
	c.Amount = ptr(60000.0)

	report := newEngine(t).Evaluate(c)

	assert.Empty(t, report.Failed)
	assert.Contains(t, flagIDs(report), "AMOUNT_BOUNDS")
	assert.Contains(t, flagIDs(report), "ROUND_AMOUNT")
	assert.Contains(t, report.Passed, "AMOUNT_BOUNDS")
}

func TestNewEngine_RejectsBadRuleSets(t *testing.T) {
	check := func(*entity.StructuredClaim) Outcome { return Pass() }

	_, err := NewEngine([]Rule{{ID: "A", Check: check}, {ID: "A", Check: check}}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewEngine([]Rule{{ID: "", Check: check}}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewEngine([]Rule{{ID: "B"}}, zap.NewNop())
	assert.Error(t, err)
}

func TestEngine_Pure(t *testing.T) {
	e := newEngine(t)
	c := validClaim()

	first := e.Evaluate(c)
	second := e.Evaluate(c)

	assert.Equal(t, first, second)
	assert.Equal(t, validClaim(), c, "evaluation must not mutate the claim")
}
