package entity

import "time"

// Field names used for per-field confidence and rule identifiers
const (
	FieldClaimantName        = "claimant_name"
	FieldClaimantEmail       = "claimant_email"
	FieldClaimantPhone       = "claimant_phone"
	FieldClaimantAddress     = "claimant_address"
	FieldClaimantAge         = "claimant_age"
	FieldPolicyID            = "policy_id"
	FieldPolicyHolderName    = "policy_holder_name"
	FieldPolicyStartDate     = "policy_start_date"
	FieldIncidentDate        = "incident_date"
	FieldIncidentLocation    = "incident_location"
	FieldIncidentDescription = "incident_description"
	FieldIncidentType        = "incident_type"
	FieldAmount              = "amount"
	FieldEstimatedDamage     = "estimated_damage"
	FieldCurrency            = "currency"
	FieldPoliceReportNumber  = "police_report_number"
	FieldVehicleVIN          = "vehicle_vin"
)

// ClaimFields lists every structured field in schema order
var ClaimFields = []string{
	FieldClaimantName,
	FieldClaimantEmail,
	FieldClaimantPhone,
	FieldClaimantAddress,
	FieldClaimantAge,
	FieldPolicyID,
	FieldPolicyHolderName,
	FieldPolicyStartDate,
	FieldIncidentDate,
	FieldIncidentLocation,
	FieldIncidentDescription,
	FieldIncidentType,
	FieldAmount,
	FieldEstimatedDamage,
	FieldCurrency,
	FieldPoliceReportNumber,
	FieldVehicleVIN,
}

// Incident types known to the anomaly model
const (
	IncidentCollision = "collision"
	IncidentTheft     = "theft"
	IncidentFire      = "fire"
	IncidentFlood     = "flood"
	IncidentVandalism = "vandalism"
	IncidentInjury    = "injury"
	IncidentOther     = "other"
)

// StructuredClaim is the canonical claim record produced from extracted text
type StructuredClaim struct {
	ClaimantName    string `json:"claimant_name"`
	ClaimantEmail   string `json:"claimant_email,omitempty"`
	ClaimantPhone   string `json:"claimant_phone,omitempty"`
	ClaimantAddress string `json:"claimant_address,omitempty"`
	ClaimantAge     *int   `json:"claimant_age,omitempty"`

	PolicyID         string     `json:"policy_id,omitempty"`
	PolicyHolderName string     `json:"policy_holder_name,omitempty"`
	PolicyStartDate  *time.Time `json:"policy_start_date,omitempty"`

	IncidentDate        *time.Time `json:"incident_date,omitempty"`
	IncidentLocation    string     `json:"incident_location,omitempty"`
	IncidentDescription string     `json:"incident_description,omitempty"`
	IncidentType        string     `json:"incident_type,omitempty"`

	Amount          *float64 `json:"amount,omitempty"`
	EstimatedDamage *float64 `json:"estimated_damage,omitempty"`
	Currency        string   `json:"currency,omitempty"`

	PoliceReportNumber string `json:"police_report_number,omitempty"`
	VehicleVIN         string `json:"vehicle_vin,omitempty"`

	FieldConfidence  map[string]float64 `json:"field_confidence"`
	Confidence       float64            `json:"confidence"`
	SourceDocumentID string             `json:"source_document_id"`

	Source *ExtractedText `json:"-"`
}

// AmountValue returns the declared amount, or zero when absent
func (c *StructuredClaim) AmountValue() float64 {
	if c.Amount == nil {
		return 0
	}
	return *c.Amount
}

// Document walks the provenance chain back to the source document
func (c *StructuredClaim) Document() *ClaimDocument {
	if c.Source == nil {
		return nil
	}
	return c.Source.Source
}
