package anomaly

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/garyjia/claim-intake/internal/application/port"
	"github.com/garyjia/claim-intake/internal/domain/entity"
	"go.uber.org/zap"
)

// ErrInvalidModel is returned for unusable model parameters
var ErrInvalidModel = errors.New("invalid anomaly model")

// Scorer computes a risk score from a fixed model. It holds a private copy
// of the parameters and is safe for concurrent use.
type Scorer struct {
	model  *Model
	logger *zap.Logger
}

// NewScorer validates the model and creates a scorer over a copy of it
func NewScorer(model *Model, logger *zap.Logger) (*Scorer, error) {
	if model == nil {
		return nil, ErrInvalidModel
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}

	logger.Info("Anomaly model loaded",
		zap.String("version", model.Version),
		zap.Int("features", len(model.Features)),
		zap.Int("incident_types", len(model.IncidentTypes)))

	return &Scorer{model: model.clone(), logger: logger}, nil
}

// Version returns the model version string
func (s *Scorer) Version() string {
	return s.model.Version
}

// Score returns the risk score in [0,1]
func (s *Scorer) Score(ctx context.Context, claim *entity.StructuredClaim) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	raw := Features(claim)

	z := s.model.Intercept
	for _, f := range s.model.Features {
		x, ok := raw[f.Name]
		if !ok || !finite(x) {
			x = f.Default
		}
		z += f.Weight * (x - f.Mean) / f.Std
	}
	z += s.incidentWeight(claim.IncidentType)

	score := 1 / (1 + math.Exp(-z))
	if math.IsNaN(score) {
		return 0, errors.New("risk score is not a number")
	}
	return math.Max(0, math.Min(1, score)), nil
}

func (s *Scorer) incidentWeight(incidentType string) float64 {
	if w, ok := s.model.IncidentTypes[strings.ToLower(incidentType)]; ok {
		return w
	}
	return s.model.IncidentTypes[s.model.DefaultIncidentType]
}

// Features extracts the raw numeric features present on a claim. Absent
// features are left out so the scorer imputes them.
func Features(claim *entity.StructuredClaim) map[string]float64 {
	out := make(map[string]float64, len(requiredFeatures))

	if claim.Amount != nil && *claim.Amount >= 0 {
		out[FeatureLogAmount] = math.Log1p(*claim.Amount)
	}
	if claim.ClaimantAge != nil {
		out[FeatureClaimantAge] = float64(*claim.ClaimantAge)
	}
	if claim.IncidentDate != nil && claim.PolicyStartDate != nil {
		out[FeaturePolicyTenureDays] = claim.IncidentDate.Sub(*claim.PolicyStartDate).Hours() / 24
	}

	return out
}

var _ port.RiskScorer = (*Scorer)(nil)
