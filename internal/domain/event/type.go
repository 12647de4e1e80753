package event

// Type identifies the type of pipeline event
type Type string

const (
	TypeClaimReceived       Type = "claim.received"
	TypeTextExtracted       Type = "claim.text_extracted"
	TypeClaimStructured     Type = "claim.structured"
	TypeStructuringRetried  Type = "claim.structuring_retried"
	TypeClaimValidated      Type = "claim.validated"
	TypeClaimRouted         Type = "claim.routed"
	TypeSettlementSubmitted Type = "claim.settlement_submitted"
	TypeClaimFailed         Type = "claim.failed"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeClaimReceived,
		TypeTextExtracted,
		TypeClaimStructured,
		TypeStructuringRetried,
		TypeClaimValidated,
		TypeClaimRouted,
		TypeSettlementSubmitted,
		TypeClaimFailed:
		return true
	default:
		return false
	}
}
