// Package advisory turns untrusted oracle guidance into a payload that is
// safe to show: exactly three steps that never cross-wire civil and
// criminal reporting channels, or a fixed fallback when they would.
package advisory

import (
	"context"
	"fmt"
	"strings"
)

// StepCount is the number of steps every payload carries:
// what to do now, what to do if blocked, where to escalate.
const StepCount = 3

// Source records where a payload came from
type Source string

const (
	SourceOracle   Source = "oracle"
	SourceFallback Source = "fallback"
)

// Payload is a short summary followed by three ordered steps
type Payload struct {
	Summary string   `json:"summary"`
	Steps   []string `json:"steps"`
	Source  Source   `json:"source,omitempty"`
}

const fallbackSummary = "We are here to help you navigate this difficult situation. Your safety and rights are protected by law."

var fallbackSteps = [StepCount]string{
	"Preserve all evidence (screenshots, bank records) immediately.",
	"If blocked by local authorities, file a complaint on the official central portal.",
	"Escalate to the relevant Nodal Officer or Ombudsman if the issue persists.",
}

// Fallback returns the deterministic payload used whenever oracle output
// cannot be trusted. Each call returns a fresh copy.
func Fallback() Payload {
	steps := make([]string, StepCount)
	copy(steps, fallbackSteps[:])
	return Payload{
		Summary: fallbackSummary,
		Steps:   steps,
		Source:  SourceFallback,
	}
}

// ImmediateAction returns the first step
func (p Payload) ImmediateAction() string { return p.step(0) }

// IfBlockedAction returns the second step
func (p Payload) IfBlockedAction() string { return p.step(1) }

// EscalationAction returns the third step
func (p Payload) EscalationAction() string { return p.step(2) }

func (p Payload) step(i int) string {
	if i < len(p.Steps) {
		return p.Steps[i]
	}
	return ""
}

// Request is the input handed to the oracle. Either Description or the
// structured case fields are set.
type Request struct {
	Description        string  `json:"description,omitempty"`
	IncidentTitle      string  `json:"incident_title,omitempty"`
	Category           string  `json:"category,omitempty"`
	Status             string  `json:"status,omitempty"`
	ComplaintReference string  `json:"complaint_reference,omitempty"`
	PortalUsed         string  `json:"portal_used,omitempty"`
	LossAmount         float64 `json:"loss_amount,omitempty"`
}

// Situation renders the request as the free-text situation line sent to
// the oracle.
func (r Request) Situation() string {
	if r.IncidentTitle == "" {
		return strings.TrimSpace(r.Description)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Case: %s", r.IncidentTitle)
	if r.Category != "" {
		fmt.Fprintf(&b, " (%s)", r.Category)
	}
	if r.Status != "" {
		fmt.Fprintf(&b, ". Status: %s", r.Status)
	}
	if r.ComplaintReference != "" {
		fmt.Fprintf(&b, ". Complaint reference: %s", r.ComplaintReference)
	}
	if r.PortalUsed != "" {
		fmt.Fprintf(&b, ". Reported via: %s", r.PortalUsed)
	}
	if r.LossAmount > 0 {
		fmt.Fprintf(&b, ". Amount lost: INR %.2f", r.LossAmount)
	}
	if d := strings.TrimSpace(r.Description); d != "" {
		fmt.Fprintf(&b, ". Details: %s", d)
	}
	return b.String()
}

// Oracle produces candidate guidance. Implementations may be slow, fail or
// return nonsense; callers never trust the result without Reconcile.
type Oracle interface {
	Generate(ctx context.Context, req Request) (*Payload, error)
}

// OracleFunc adapts a function to the Oracle interface
type OracleFunc func(ctx context.Context, req Request) (*Payload, error)

// Generate calls f
func (f OracleFunc) Generate(ctx context.Context, req Request) (*Payload, error) {
	return f(ctx, req)
}
