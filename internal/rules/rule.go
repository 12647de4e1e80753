package rules

import (
	"fmt"

	"github.com/garyjia/claim-intake/internal/domain/entity"
	"go.uber.org/zap"
)

// Verdict is the kind of result a rule produces
type Verdict int

const (
	VerdictPass Verdict = iota
	VerdictFail
	VerdictFlag
)

func (v Verdict) String() string {
	switch v {
	case VerdictPass:
		return "PASS"
	case VerdictFail:
		return "FAIL"
	case VerdictFlag:
		return "FLAG"
	default:
		return fmt.Sprintf("Verdict(%d)", int(v))
	}
}

// Outcome is the result of one rule against one claim
type Outcome struct {
	Verdict Verdict
	Reason  string
}

// Pass is the outcome of a satisfied or inapplicable rule
func Pass() Outcome {
	return Outcome{Verdict: VerdictPass}
}

// Fail is a hard violation that invalidates the claim
func Fail(format string, args ...interface{}) Outcome {
	return Outcome{Verdict: VerdictFail, Reason: fmt.Sprintf(format, args...)}
}

// Flag is a non-blocking observation; the rule still counts as passed
func Flag(format string, args ...interface{}) Outcome {
	return Outcome{Verdict: VerdictFlag, Reason: fmt.Sprintf(format, args...)}
}

// Rule is a named pure check over a claim record
type Rule struct {
	ID    string
	Check func(claim *entity.StructuredClaim) Outcome
}

// Report collects the outcome of every rule for one claim
type Report struct {
	Passed []string
	Failed []entity.RuleFailure
	Flags  []entity.RuleFlag
}

// Engine evaluates an ordered, immutable list of rules
type Engine struct {
	rules  []Rule
	logger *zap.Logger
}

// NewEngine creates an engine over the given rules. Rule IDs must be unique
// and every rule needs a check.
func NewEngine(rules []Rule, logger *zap.Logger) (*Engine, error) {
	seen := make(map[string]bool, len(rules))
	for i, r := range rules {
		if r.ID == "" {
			return nil, fmt.Errorf("rule at position %d has no ID", i)
		}
		if r.Check == nil {
			return nil, fmt.Errorf("rule %s has no check", r.ID)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("duplicate rule ID %s", r.ID)
		}
		seen[r.ID] = true
	}

	return &Engine{
		rules:  append([]Rule(nil), rules...),
		logger: logger,
	}, nil
}

// RuleIDs returns the rule identifiers in evaluation order
func (e *Engine) RuleIDs() []string {
	ids := make([]string, len(e.rules))
	for i, r := range e.rules {
		ids[i] = r.ID
	}
	return ids
}

// Evaluate runs every rule, never stopping at the first failure
func (e *Engine) Evaluate(claim *entity.StructuredClaim) *Report {
	report := &Report{
		Passed: make([]string, 0, len(e.rules)),
		Failed: []entity.RuleFailure{},
	}

	for _, r := range e.rules {
		out := r.Check(claim)
		switch out.Verdict {
		case VerdictFail:
			report.Failed = append(report.Failed, entity.RuleFailure{RuleID: r.ID, Reason: out.Reason})
		case VerdictFlag:
			report.Passed = append(report.Passed, r.ID)
			report.Flags = append(report.Flags, entity.RuleFlag{RuleID: r.ID, Reason: out.Reason})
		default:
			report.Passed = append(report.Passed, r.ID)
		}
	}

	if len(report.Failed) > 0 {
		e.logger.Debug("Rule failures",
			zap.String("document_id", claim.SourceDocumentID),
			zap.Int("failed", len(report.Failed)),
			zap.Int("flags", len(report.Flags)))
	}

	return report
}
