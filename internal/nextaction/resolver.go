// Package nextaction derives the recommended next step for a case from its
// incident category and current status.
package nextaction

import "github.com/nayasahai/recovery/internal/incident"

// Status is the user-reported progress of a case
type Status string

const (
	StatusNotReported        Status = "Not Reported"
	StatusReportedToHelpline Status = "Reported to 1930"
	StatusReportedOnPortal   Status = "Reported on Portal"
	StatusFIRFiled           Status = "FIR Filed"
	StatusBankReviewing      Status = "Bank Reviewing"
	StatusFrozen             Status = "Frozen"
	StatusRecovered          Status = "Recovered"
	StatusClosed             Status = "Closed"
)

// Statuses lists every known status in dropdown order
func Statuses() []Status {
	return []Status{
		StatusNotReported,
		StatusReportedToHelpline,
		StatusReportedOnPortal,
		StatusFIRFiled,
		StatusBankReviewing,
		StatusFrozen,
		StatusRecovered,
		StatusClosed,
	}
}

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	for _, known := range Statuses() {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no further action is expected for s
func (s Status) Terminal() bool {
	return s == StatusRecovered || s == StatusClosed
}

type rules struct {
	byStatus map[Status]string
	fallback string
}

func (r rules) lookup(status Status) string {
	if action, ok := r.byStatus[status]; ok {
		return action
	}
	return r.fallback
}

var (
	financialFraudRules = rules{
		byStatus: map[Status]string{
			StatusNotReported:        "Call 1930 immediately (Golden Hour).",
			StatusReportedToHelpline: "File complaint on National Cyber Crime Portal.",
			StatusReportedOnPortal:   "Visit local police station and file FIR (Zero FIR allowed).",
			StatusFIRFiled:           "Follow up with bank nodal officer within 7 days.",
			StatusBankReviewing:      "Escalate to RBI Ombudsman after 30 days if unresolved.",
			StatusRecovered:          "Confirm closure and collect written bank confirmation.",
		},
		fallback: "Monitor status and maintain evidence logs.",
	}

	consumerDisputeRules = rules{
		byStatus: map[Status]string{
			StatusNotReported:      "Send written complaint to seller.",
			StatusReportedOnPortal: "Call National Consumer Helpline (1915).",
			StatusFIRFiled:         "File case via e-Jagriti.",
		},
		fallback: "Follow up with mediation if no response in 15 days.",
	}

	defaultRules = rules{
		byStatus: map[Status]string{
			StatusNotReported:      "Gather all screenshots and evidence immediately.",
			StatusReportedOnPortal: "Note acknowledgement number and wait for IO assignment.",
			StatusFIRFiled:         "Check investigation status with the local Cyber Cell.",
		},
		fallback: "Continue monitoring official portals for updates.",
	}

	table = map[incident.Category]rules{
		incident.CategoryFinancialFraud:  financialFraudRules,
		incident.CategoryConsumerDispute: consumerDisputeRules,
	}
)

// Resolve returns the recommended next action for a case. It is total:
// unknown categories use the generic rules and unknown statuses use the
// category's fallback, so the result is never empty.
func Resolve(category incident.Category, status Status) string {
	r, ok := table[category]
	if !ok {
		r = defaultRules
	}
	return r.lookup(status)
}

// ForIncident resolves the next action for a catalog entry
func ForIncident(def *incident.Definition, status Status) string {
	if def == nil {
		return defaultRules.lookup(status)
	}
	return Resolve(def.Category, status)
}
