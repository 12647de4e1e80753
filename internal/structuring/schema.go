package structuring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/garyjia/claim-intake/internal/application/port"
	"github.com/garyjia/claim-intake/internal/domain/entity"
	"github.com/garyjia/claim-intake/pkg/utils"
	"github.com/go-playground/validator/v10"
)

const dateLayout = "2006-01-02"

// claimSchema is the wire shape a candidate must decode into. Only types,
// layouts and ranges are enforced here; required fields and content formats
// (e-mail, phone, currency code) are rule failures downstream.
type claimSchema struct {
	ClaimantName    string `json:"claimant_name" validate:"max=200"`
	ClaimantEmail   string `json:"claimant_email" validate:"max=254"`
	ClaimantPhone   string `json:"claimant_phone" validate:"max=40"`
	ClaimantAddress string `json:"claimant_address" validate:"max=500"`
	ClaimantAge     *int   `json:"claimant_age" validate:"omitempty,gte=0,lte=130"`

	PolicyID         string `json:"policy_id" validate:"max=64"`
	PolicyHolderName string `json:"policy_holder_name" validate:"max=200"`
	PolicyStartDate  string `json:"policy_start_date" validate:"omitempty,datetime=2006-01-02"`

	IncidentDate        string `json:"incident_date" validate:"omitempty,datetime=2006-01-02"`
	IncidentLocation    string `json:"incident_location" validate:"max=500"`
	IncidentDescription string `json:"incident_description" validate:"max=5000"`
	IncidentType        string `json:"incident_type" validate:"max=64"`

	Amount          *float64 `json:"amount" validate:"omitempty,gte=0"`
	EstimatedDamage *float64 `json:"estimated_damage" validate:"omitempty,gte=0"`
	Currency        string   `json:"currency" validate:"max=16"`

	PoliceReportNumber string `json:"police_report_number" validate:"max=64"`
	VehicleVIN         string `json:"vehicle_vin" validate:"max=32"`

	Confidence      *float64           `json:"confidence" validate:"omitempty,gte=0,lte=1"`
	FieldConfidence map[string]float64 `json:"field_confidence" validate:"omitempty,dive,gte=0,lte=1"`
}

var knownIncidentTypes = map[string]bool{
	entity.IncidentCollision: true,
	entity.IncidentTheft:     true,
	entity.IncidentFire:      true,
	entity.IncidentFlood:     true,
	entity.IncidentVandalism: true,
	entity.IncidentInjury:    true,
	entity.IncidentOther:     true,
}

// SchemaDecoder turns candidate payloads into validated claim records
type SchemaDecoder struct {
	validate *validator.Validate
}

// NewSchemaDecoder creates a decoder with the claim schema rules registered
func NewSchemaDecoder() *SchemaDecoder {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &SchemaDecoder{validate: v}
}

// Decode parses and validates one candidate. Any shape problem is returned
// as a *SchemaError.
func (d *SchemaDecoder) Decode(payload []byte, capabilityConfidence float64, capabilityFields map[string]float64) (*entity.StructuredClaim, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, &SchemaError{Problems: []string{"empty payload"}}
	}

	var raw claimSchema
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if err := dec.Decode(&raw); err != nil {
		return nil, &SchemaError{Problems: []string{describeDecodeError(err)}}
	}
	if dec.More() {
		return nil, &SchemaError{Problems: []string{"trailing data after claim object"}}
	}

	raw.Currency = strings.ToUpper(strings.TrimSpace(raw.Currency))
	raw.ClaimantEmail = strings.TrimSpace(raw.ClaimantEmail)

	if err := d.validate.Struct(&raw); err != nil {
		return nil, schemaErrorFrom(err)
	}

	confidence, err := overallConfidence(capabilityConfidence, raw.Confidence)
	if err != nil {
		return nil, &SchemaError{Problems: []string{err.Error()}}
	}

	claim := &entity.StructuredClaim{
		ClaimantName:        clean(raw.ClaimantName),
		ClaimantEmail:       raw.ClaimantEmail,
		ClaimantPhone:       clean(raw.ClaimantPhone),
		ClaimantAddress:     clean(raw.ClaimantAddress),
		ClaimantAge:         raw.ClaimantAge,
		PolicyID:            strings.ToUpper(clean(raw.PolicyID)),
		PolicyHolderName:    clean(raw.PolicyHolderName),
		IncidentLocation:    clean(raw.IncidentLocation),
		IncidentDescription: clean(raw.IncidentDescription),
		IncidentType:        incidentType(raw.IncidentType),
		Amount:              raw.Amount,
		EstimatedDamage:     raw.EstimatedDamage,
		Currency:            raw.Currency,
		PoliceReportNumber:  clean(raw.PoliceReportNumber),
		VehicleVIN:          strings.ToUpper(strings.ReplaceAll(clean(raw.VehicleVIN), " ", "")),
		Confidence:          confidence,
	}

	// Layouts were checked by the validator above.
	if raw.IncidentDate != "" {
		ts, _ := time.Parse(dateLayout, raw.IncidentDate)
		claim.IncidentDate = &ts
	}
	if raw.PolicyStartDate != "" {
		ts, _ := time.Parse(dateLayout, raw.PolicyStartDate)
		claim.PolicyStartDate = &ts
	}

	claim.FieldConfidence = fieldConfidence(confidence, capabilityFields, raw.FieldConfidence)
	for field, c := range claim.FieldConfidence {
		if math.IsNaN(c) || c < 0 || c > 1 {
			return nil, &SchemaError{Problems: []string{fmt.Sprintf("field_confidence.%s out of range: %v", field, c)}}
		}
	}

	return claim, nil
}

// SchemaError lists every way a candidate failed the schema
type SchemaError struct {
	Problems []string
}

func (e *SchemaError) Error() string {
	return "schema mismatch: " + strings.Join(e.Problems, "; ")
}

func (e *SchemaError) Unwrap() error {
	return port.ErrSchemaMismatch
}

func schemaErrorFrom(err error) *SchemaError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &SchemaError{Problems: []string{err.Error()}}
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			problems = append(problems, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			problems = append(problems, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return &SchemaError{Problems: problems}
}

func describeDecodeError(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Sprintf("%s must be %s, got %s", typeErr.Field, typeErr.Type, typeErr.Value)
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return fmt.Sprintf("invalid JSON at offset %d: %v", syntaxErr.Offset, syntaxErr)
	}
	return err.Error()
}

// overallConfidence prefers the capability's own score and falls back to
// the confidence embedded in the payload. No score at all counts as zero.
func overallConfidence(capability float64, payload *float64) (float64, error) {
	switch {
	case math.IsNaN(capability) || capability < 0 || capability > 1:
		return 0, fmt.Errorf("confidence out of range: %v", capability)
	case capability > 0:
		return capability, nil
	case payload != nil:
		return *payload, nil
	default:
		return 0, nil
	}
}

// fieldConfidence fills a confidence for every schema field. Missing
// entries take the overall confidence.
func fieldConfidence(overall float64, sources ...map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(entity.ClaimFields))
	for _, field := range entity.ClaimFields {
		out[field] = overall
		for _, src := range sources {
			if c, ok := src[field]; ok {
				out[field] = c
				break
			}
		}
	}
	return out
}

func incidentType(s string) string {
	t := strings.ToLower(strings.TrimSpace(s))
	if t == "" {
		return ""
	}
	if knownIncidentTypes[t] {
		return t
	}
	return entity.IncidentOther
}

func clean(s string) string {
	return strings.TrimSpace(utils.SanitizeString(s))
}
