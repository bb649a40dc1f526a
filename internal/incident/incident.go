package incident

import (
	"errors"
	"sort"
)

// ErrNotFound is returned when an incident id is absent from the catalog
var ErrNotFound = errors.New("incident not found")

// Category groups incidents that share the same reporting channel
type Category string

const (
	CategoryFinancialFraud   Category = "Financial Fraud"
	CategoryConsumerDispute  Category = "Consumer Dispute"
	CategoryIdentityTheft    Category = "Identity Theft"
	CategoryOnlineHarassment Category = "Online Harassment"
	CategoryWomenSafety      Category = "Women Safety & Rights"
	CategoryCybercrime       Category = "Cybercrime"
	CategoryMatrimonyScam    Category = "Matrimony Scam"
)

// Categories lists every known category in display order
func Categories() []Category {
	return []Category{
		CategoryFinancialFraud,
		CategoryConsumerDispute,
		CategoryIdentityTheft,
		CategoryOnlineHarassment,
		CategoryWomenSafety,
		CategoryCybercrime,
		CategoryMatrimonyScam,
	}
}

// Valid reports whether c is one of the known categories
func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// IsCivil reports whether incidents in c are resolved through consumer
// mediation rather than criminal reporting.
func (c Category) IsCivil() bool {
	return c == CategoryConsumerDispute
}

// ActionType classifies an immediate action
type ActionType string

const (
	ActionTypeImmediate ActionType = "immediate"
	ActionTypeFiling    ActionType = "filing"
	ActionTypeFollowup  ActionType = "followup"
)

// Action is one prescribed step for an incident
type Action struct {
	ID          string     `json:"id" yaml:"id"`
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description" yaml:"description"`
	Link        string     `json:"link,omitempty" yaml:"link"`
	LinkText    string     `json:"link_text,omitempty" yaml:"link_text"`
	IsEmergency bool       `json:"is_emergency" yaml:"is_emergency"`
	Type        ActionType `json:"type" yaml:"type"`
}

// Portal is an official reporting destination
type Portal struct {
	Name        string `json:"name" yaml:"name"`
	URL         string `json:"url" yaml:"url"`
	Description string `json:"description" yaml:"description"`
}

// SectorOption is a sector-specific alternative route (regulator, ombudsman)
type SectorOption struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	Link        string `json:"link,omitempty" yaml:"link"`
	LinkText    string `json:"link_text,omitempty" yaml:"link_text"`
}

// EscalationStep is one rung of the escalation ladder
type EscalationStep struct {
	Level     int    `json:"level" yaml:"level"`
	Authority string `json:"authority" yaml:"authority"`
	Condition string `json:"condition" yaml:"condition"`
	Contact   string `json:"contact,omitempty" yaml:"contact"`
	Link      string `json:"link,omitempty" yaml:"link"`
	LinkText  string `json:"link_text,omitempty" yaml:"link_text"`
}

// Definition describes one incident path: what to do now, where to report,
// what evidence to prepare and whom to escalate to.
type Definition struct {
	ID                           string           `json:"id" yaml:"id"`
	Category                     Category         `json:"category" yaml:"category"`
	Title                        string           `json:"title" yaml:"title"`
	Summary                      string           `json:"summary" yaml:"summary"`
	ImmediateActions             []Action         `json:"immediate_actions" yaml:"immediate_actions"`
	ProtectionProtocol           []string         `json:"protection_protocol" yaml:"protection_protocol"`
	OfficialPortal               Portal           `json:"official_portal" yaml:"official_portal"`
	AdditionalPortals            []Portal         `json:"additional_portals" yaml:"additional_portals"`
	SectorOptions                []SectorOption   `json:"sector_options" yaml:"sector_options"`
	FIRSteps                     []string         `json:"fir_steps" yaml:"fir_steps"`
	PreparedChecklist            []string         `json:"prepared_checklist" yaml:"prepared_checklist"`
	EscalationLadder             []EscalationStep `json:"escalation_ladder" yaml:"escalation_ladder"`
	SecondaryExploitationWarning string           `json:"secondary_exploitation_warning" yaml:"secondary_exploitation_warning"`
}

// SortedEscalation returns the escalation ladder ordered by level for
// display. Steps sharing a level keep their catalog order. An empty ladder
// yields an empty, non-nil slice.
func (d *Definition) SortedEscalation() []EscalationStep {
	steps := make([]EscalationStep, len(d.EscalationLadder))
	copy(steps, d.EscalationLadder)
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].Level < steps[j].Level
	})
	return steps
}

// HasChecklistItem reports whether item is part of the prepared checklist
func (d *Definition) HasChecklistItem(item string) bool {
	for _, entry := range d.PreparedChecklist {
		if entry == item {
			return true
		}
	}
	return false
}

// EmergencyActions returns the actions flagged as emergencies
func (d *Definition) EmergencyActions() []Action {
	var actions []Action
	for _, a := range d.ImmediateActions {
		if a.IsEmergency {
			actions = append(actions, a)
		}
	}
	return actions
}
