// Package controlplane fetches Assignments and applies the credential
// header they carry to outbound requests, standing in for the
// out-of-scope REST control plane described in the wire interfaces.
package controlplane

// Assignment is the control-plane-issued tuple directing a worker which
// families to emit, at what rate, and where.
type Assignment struct {
	WorkerID       string   `json:"worker_id"`
	FamilyIDs      []string `json:"family_id"`
	Multiplier     float64  `json:"multiplier"`
	BurstFactor    float64  `json:"burst_factor"`
	SchemaDrift    float64  `json:"schema_drift"`
	ErrorInjection float64  `json:"error_injection"`
	Endpoints      []string `json:"endpoints"`
	AuthCredential string   `json:"auth_credential,omitempty"`
}

// Equal reports whether two Assignments are equal by the value-equality
// rule the worker uses to decide whether to reconfigure: family list,
// multiplier, and burst factor.
func (a Assignment) Equal(other Assignment) bool {
	if a.Multiplier != other.Multiplier || a.BurstFactor != other.BurstFactor {
		return false
	}
	if len(a.FamilyIDs) != len(other.FamilyIDs) {
		return false
	}
	seen := make(map[string]bool, len(a.FamilyIDs))
	for _, id := range a.FamilyIDs {
		seen[id] = true
	}
	for _, id := range other.FamilyIDs {
		if !seen[id] {
			return false
		}
	}
	return true
}
