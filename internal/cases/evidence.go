package cases

import (
	"fmt"
	"regexp"

	"github.com/nayasahai/recovery/internal/incident"
)

// EvidenceFolder groups uploaded evidence in a case package
type EvidenceFolder string

const (
	FolderChats     EvidenceFolder = "chats"
	FolderFinancial EvidenceFolder = "financial"
	FolderEmails    EvidenceFolder = "emails"
	FolderIdentity  EvidenceFolder = "identity"
	FolderMisc      EvidenceFolder = "misc"
)

// EvidenceFolders lists the folders in package order
func EvidenceFolders() []EvidenceFolder {
	return []EvidenceFolder{FolderChats, FolderFinancial, FolderEmails, FolderIdentity, FolderMisc}
}

var (
	utrPattern   = regexp.MustCompile(`[A-Z0-9]{12,}`)
	phonePattern = regexp.MustCompile(`\+?\d{10,12}`)
)

// Identifiers are reference numbers found in free text
type Identifiers struct {
	UTRs   []string `json:"utrs"`
	Phones []string `json:"phones"`
}

// ExtractIdentifiers finds transaction references (UTR/RRN) and phone
// numbers in text. Results are deduplicated and keep first-seen order.
func ExtractIdentifiers(text string) Identifiers {
	return Identifiers{
		UTRs:   unique(utrPattern.FindAllString(text, -1)),
		Phones: unique(phonePattern.FindAllString(text, -1)),
	}
}

func unique(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// normalizeEvidence checks items against the incident checklist and
// returns them deduplicated in checklist order.
func normalizeEvidence(def *incident.Definition, items []string) (StringList, error) {
	wanted := make(map[string]struct{}, len(items))
	for _, item := range items {
		if !def.HasChecklistItem(item) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidEvidence, item)
		}
		wanted[item] = struct{}{}
	}

	out := make(StringList, 0, len(wanted))
	for _, entry := range def.PreparedChecklist {
		if _, ok := wanted[entry]; ok {
			out = append(out, entry)
		}
	}
	return out, nil
}

// EvidenceCoverage is the share of the checklist already selected, in [0, 1]
func EvidenceCoverage(def *incident.Definition, rec *CaseRecord) float64 {
	if len(def.PreparedChecklist) == 0 {
		return 1
	}
	n := 0
	for _, item := range rec.SelectedEvidence {
		if def.HasChecklistItem(item) {
			n++
		}
	}
	return float64(n) / float64(len(def.PreparedChecklist))
}
