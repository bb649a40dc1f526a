package cases

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nayasahai/recovery/internal/advisory"
	"github.com/nayasahai/recovery/internal/nextaction"
)

var (
	// ErrNotFound is returned when a case does not exist for the caller
	ErrNotFound = errors.New("case not found")
	// ErrNoSession is returned when an operation is attempted without an owner
	ErrNoSession = errors.New("session has no owner")
	// ErrInvalidAmount is returned for negative loss amounts
	ErrInvalidAmount = errors.New("loss amount must not be negative")
	// ErrInvalidStatus is returned for statuses outside the known set
	ErrInvalidStatus = errors.New("unknown case status")
	// ErrInvalidEvidence is returned when an evidence item is not on the incident checklist
	ErrInvalidEvidence = errors.New("evidence item not on incident checklist")
)

// StoreError wraps a record store failure. Callers may retry; the manager
// never does.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("record store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Retryable reports that the failed operation may be attempted again
func (e *StoreError) Retryable() bool {
	return true
}

// Plan is the caller's subscription tier
type Plan string

const (
	PlanFree    Plan = "free"
	PlanToolkit Plan = "toolkit"
)

// Session identifies the caller of a case operation. It is built per
// request from the bearer token and passed explicitly.
type Session struct {
	OwnerID string
	Plan    Plan
}

// HasToolkit reports whether the session may use paid recovery features
func (s Session) HasToolkit() bool {
	return s.Plan == PlanToolkit
}

func (s Session) validate() error {
	if s.OwnerID == "" {
		return ErrNoSession
	}
	return nil
}

// CaseRecord is one user-reported incident being tracked to resolution
type CaseRecord struct {
	ID                 string            `json:"id" gorm:"primarykey"`
	OwnerID            string            `json:"owner_id" gorm:"column:user_id;not null;index"`
	IncidentID         string            `json:"incident_id" gorm:"not null"`
	Status             nextaction.Status `json:"status" gorm:"not null"`
	ComplaintReference string            `json:"complaint_reference" gorm:"column:complaint_id"`
	LossAmount         float64           `json:"loss_amount" gorm:"column:amount;not null;default:0"`
	PortalUsed         string            `json:"portal_used" gorm:"column:portal"`
	NextAction         string            `json:"next_action" gorm:"not null"`
	SelectedEvidence   StringList        `json:"selected_evidence" gorm:"type:jsonb"`
	AIInsight          *Insight          `json:"ai_insight,omitempty" gorm:"column:ai_insight;type:jsonb"`
	CreatedAt          time.Time         `json:"created_at" gorm:"index"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// TableName maps CaseRecord onto the recovery_cases table
func (CaseRecord) TableName() string {
	return "recovery_cases"
}

// Open reports whether the case still expects user action
func (c *CaseRecord) Open() bool {
	return !c.Status.Terminal()
}

// Insight is the last advisory payload attached to a case
type Insight struct {
	advisory.Payload
	AttachedAt time.Time `json:"attached_at"`
}

// Value implements driver.Valuer for jsonb storage
func (i Insight) Value() (driver.Value, error) {
	return json.Marshal(i)
}

// Scan implements sql.Scanner for jsonb storage
func (i *Insight) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, i)
	case string:
		return json.Unmarshal([]byte(v), i)
	default:
		return fmt.Errorf("cannot scan %T into Insight", value)
	}
}

// StringList is a jsonb-encoded list of strings
type StringList []string

// Value implements driver.Valuer
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

// Scan implements sql.Scanner
func (l *StringList) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, (*[]string)(l))
	case string:
		return json.Unmarshal([]byte(v), (*[]string)(l))
	default:
		return fmt.Errorf("cannot scan %T into StringList", value)
	}
}

// CreateInput carries the user-supplied fields of a new case
type CreateInput struct {
	IncidentID         string            `json:"incident_id" binding:"required"`
	Status             nextaction.Status `json:"status"`
	ComplaintReference string            `json:"complaint_reference"`
	LossAmount         float64           `json:"loss_amount"`
	PortalUsed         string            `json:"portal_used"`
}

// DetailsInput carries optional edits to a case's free-form fields
type DetailsInput struct {
	ComplaintReference *string  `json:"complaint_reference"`
	LossAmount         *float64 `json:"loss_amount"`
	PortalUsed         *string  `json:"portal_used"`
}

// Summary is derived from a user's cases
type Summary struct {
	TotalCases    int                       `json:"total_cases"`
	OpenCases     int                       `json:"open_cases"`
	TotalLoss     float64                   `json:"total_loss"`
	RecoveredLoss float64                   `json:"recovered_loss"`
	ByStatus      map[nextaction.Status]int `json:"by_status"`
}

// Summarize derives totals from records
func Summarize(records []CaseRecord) *Summary {
	s := &Summary{ByStatus: make(map[nextaction.Status]int)}
	for i := range records {
		rec := &records[i]
		s.TotalCases++
		s.TotalLoss += rec.LossAmount
		s.ByStatus[rec.Status]++
		if rec.Open() {
			s.OpenCases++
		}
		if rec.Status == nextaction.StatusRecovered {
			s.RecoveredLoss += rec.LossAmount
		}
	}
	return s
}
