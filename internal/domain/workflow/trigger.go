package workflow

// Trigger is a stage completion that moves a run forward
type Trigger string

const (
	TriggerTextExtracted Trigger = "TEXT_EXTRACTED"
	TriggerStructured    Trigger = "STRUCTURED"
	TriggerValidated     Trigger = "VALIDATED"
	TriggerRouted        Trigger = "ROUTED"
	TriggerFail          Trigger = "FAIL"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
