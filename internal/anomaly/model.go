package anomaly

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Feature names understood by the scorer
const (
	FeatureLogAmount        = "log_amount"
	FeatureClaimantAge      = "claimant_age"
	FeaturePolicyTenureDays = "policy_tenure_days"
)

var requiredFeatures = []string{FeatureLogAmount, FeatureClaimantAge, FeaturePolicyTenureDays}

//go:embed default_model.json
var defaultModelJSON []byte

// FeatureParams standardises and weights one numeric feature
type FeatureParams struct {
	Name    string  `json:"name"`
	Mean    float64 `json:"mean"`
	Std     float64 `json:"std"`
	Weight  float64 `json:"weight"`
	Default float64 `json:"default"`
}

// Model is a pre-fit logistic risk model
type Model struct {
	Version             string             `json:"version"`
	Intercept           float64            `json:"intercept"`
	Features            []FeatureParams    `json:"features"`
	IncidentTypes       map[string]float64 `json:"incident_types"`
	DefaultIncidentType string             `json:"default_incident_type"`
}

// DefaultModel returns the built-in model parameters
func DefaultModel() (*Model, error) {
	return ParseModel(defaultModelJSON)
}

// LoadModel reads model parameters from a JSON file
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	return ParseModel(data)
}

// ParseModel decodes and validates model parameters
func ParseModel(data []byte) (*Model, error) {
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the parameters are usable and keep the score
// non-decreasing in the claim amount.
func (m *Model) Validate() error {
	if !finite(m.Intercept) {
		return fmt.Errorf("%w: intercept is not finite", ErrInvalidModel)
	}

	seen := make(map[string]bool, len(m.Features))
	for _, f := range m.Features {
		if seen[f.Name] {
			return fmt.Errorf("%w: duplicate feature %s", ErrInvalidModel, f.Name)
		}
		seen[f.Name] = true

		if !finite(f.Mean) || !finite(f.Weight) || !finite(f.Default) {
			return fmt.Errorf("%w: feature %s has non-finite parameters", ErrInvalidModel, f.Name)
		}
		if !finite(f.Std) || f.Std <= 0 {
			return fmt.Errorf("%w: feature %s std must be positive, got %v", ErrInvalidModel, f.Name, f.Std)
		}
		if f.Name == FeatureLogAmount && f.Weight < 0 {
			return fmt.Errorf("%w: %s weight must be non-negative, got %v", ErrInvalidModel, f.Name, f.Weight)
		}
	}

	for _, name := range requiredFeatures {
		if !seen[name] {
			return fmt.Errorf("%w: missing feature %s", ErrInvalidModel, name)
		}
	}
	if len(m.Features) != len(requiredFeatures) {
		return fmt.Errorf("%w: expected %d features, got %d", ErrInvalidModel, len(requiredFeatures), len(m.Features))
	}

	for t, w := range m.IncidentTypes {
		if !finite(w) {
			return fmt.Errorf("%w: incident type %s weight is not finite", ErrInvalidModel, t)
		}
	}
	if _, ok := m.IncidentTypes[m.DefaultIncidentType]; !ok {
		return fmt.Errorf("%w: default incident type %q has no weight", ErrInvalidModel, m.DefaultIncidentType)
	}

	return nil
}

func (m *Model) clone() *Model {
	cp := *m
	cp.Features = append([]FeatureParams(nil), m.Features...)
	cp.IncidentTypes = make(map[string]float64, len(m.IncidentTypes))
	for k, v := range m.IncidentTypes {
		cp.IncidentTypes[k] = v
	}
	return &cp
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
