package advisory

import (
	"regexp"
	"strings"

	"github.com/nayasahai/recovery/internal/incident"
)

// Reason explains why a candidate was replaced by the fallback
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonOracleFailure    Reason = "oracle_failure"
	ReasonSchemaMismatch   Reason = "schema_mismatch"
	ReasonRoutingViolation Reason = "routing_violation"
)

// Result is the reconciled payload plus the decision that produced it
type Result struct {
	Payload  Payload `json:"payload"`
	Accepted bool    `json:"accepted"`
	Reason   Reason  `json:"reason,omitempty"`
	// Violation is the offending phrase for routing violations
	Violation string `json:"violation,omitempty"`
}

type channelTerm struct {
	label   string
	pattern *regexp.Regexp
}

func term(label, expr string) channelTerm {
	return channelTerm{label: label, pattern: regexp.MustCompile(expr)}
}

// Criminal-only channels. Never valid for a civil dispute.
var criminalTerms = []channelTerm{
	term("police", `(?i)\bpolice\b`),
	term("FIR", `(?i)\bfirs?\b`),
	term("1930", `\b1930\b`),
	term("cyber cell", `(?i)\bcyber[\s-]?cells?\b`),
	term("cybercrime", `(?i)\bcyber[\s-]?crimes?\b`),
	term("SP", `\bSP\b`),
}

// Civil-only channels. Never valid for a criminal or fraud case.
var civilTerms = []channelTerm{
	term("1915", `\b1915\b`),
	term("national consumer helpline", `(?i)\bnational\s+consumer\s+helpline\b`),
	term("NCH", `(?i)\bnch\b`),
	term("mediation", `(?i)\bmediation\b`),
	term("e-Daakhil", `(?i)\be-?daakhil\b`),
	term("e-Jagriti", `(?i)\be-?jagriti\b`),
	term("consumer commission", `(?i)\bconsumer\s+(commission|court|forum)s?\b`),
}

// Reconcile decides whether candidate can be shown for category. It never
// merges: the candidate is either accepted unchanged or replaced in full by
// the fallback.
func Reconcile(candidate *Payload, oracleErr error, category incident.Category) Result {
	if oracleErr != nil || candidate == nil {
		return reject(ReasonOracleFailure, "")
	}

	if !wellFormed(candidate) {
		return reject(ReasonSchemaMismatch, "")
	}

	if violation := routingViolation(candidate.Steps, category); violation != "" {
		return reject(ReasonRoutingViolation, violation)
	}

	return Result{Payload: *candidate, Accepted: true}
}

func reject(reason Reason, violation string) Result {
	return Result{
		Payload:   Fallback(),
		Reason:    reason,
		Violation: violation,
	}
}

func wellFormed(p *Payload) bool {
	if strings.TrimSpace(p.Summary) == "" {
		return false
	}
	if len(p.Steps) != StepCount {
		return false
	}
	for _, s := range p.Steps {
		if strings.TrimSpace(s) == "" {
			return false
		}
	}
	return true
}

// routingViolation returns the first forbidden channel mentioned in steps,
// or "" when none is. Without a known category there is no path to guard;
// free text requests leave the choice between the civil and criminal path
// to the oracle.
func routingViolation(steps []string, category incident.Category) string {
	if !category.Valid() {
		return ""
	}

	forbidden := civilTerms
	if category.IsCivil() {
		forbidden = criminalTerms
	}

	for _, step := range steps {
		for _, t := range forbidden {
			if t.pattern.MatchString(step) {
				return t.label
			}
		}
	}
	return ""
}
