package cases

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nayasahai/recovery/internal/advisory"
	"github.com/nayasahai/recovery/internal/incident"
	"github.com/nayasahai/recovery/internal/metrics"
	"github.com/nayasahai/recovery/internal/nextaction"
)

// Notifier is told about case changes after they are stored
type Notifier interface {
	CaseUpdated(ownerID string, rec *CaseRecord)
	CaseDeleted(ownerID, caseID string)
}

// Manager runs the case lifecycle on top of a Store. It keeps NextAction
// in step with Status and never retries failed store calls.
type Manager struct {
	store    Store
	catalog  *incident.Catalog
	notifier Notifier
	logger   *zap.Logger
	metrics  *metrics.Collector
	now      func() time.Time
}

// NewManager creates a case manager
func NewManager(store Store, catalog *incident.Catalog, logger *zap.Logger, collector *metrics.Collector) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:   store,
		catalog: catalog,
		logger:  logger,
		metrics: collector,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetNotifier registers n to receive change events
func (m *Manager) SetNotifier(n Notifier) {
	m.notifier = n
}

// Create logs a new case for the session owner
func (m *Manager) Create(ctx context.Context, sess Session, in CreateInput) (rec *CaseRecord, err error) {
	defer func() { m.record("create", err) }()

	if err := sess.validate(); err != nil {
		return nil, err
	}
	if in.LossAmount < 0 {
		return nil, ErrInvalidAmount
	}
	status := in.Status
	if status == "" {
		status = nextaction.StatusNotReported
	}
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	def, err := m.catalog.FindByID(in.IncidentID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	rec = &CaseRecord{
		ID:                 uuid.New().String(),
		OwnerID:            sess.OwnerID,
		IncidentID:         def.ID,
		Status:             status,
		ComplaintReference: in.ComplaintReference,
		LossAmount:         in.LossAmount,
		PortalUsed:         in.PortalUsed,
		NextAction:         nextaction.Resolve(def.Category, status),
		SelectedEvidence:   StringList{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := m.store.Create(ctx, rec); err != nil {
		return nil, m.storeError("create", err)
	}

	m.logger.Info("Case created",
		zap.String("case_id", rec.ID),
		zap.String("incident_id", rec.IncidentID),
		zap.String("status", string(rec.Status)))
	m.notifyUpdated(rec)
	return rec, nil
}

// Get returns one of the session owner's cases
func (m *Manager) Get(ctx context.Context, sess Session, id string) (*CaseRecord, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	rec, err := m.store.Get(ctx, sess.OwnerID, id)
	if err != nil {
		return nil, m.storeError("get", err)
	}
	return rec, nil
}

// List returns the session owner's cases, newest first
func (m *Manager) List(ctx context.Context, sess Session) ([]CaseRecord, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	records, err := m.store.List(ctx, sess.OwnerID)
	if err != nil {
		return nil, m.storeError("list", err)
	}
	return records, nil
}

// UpdateStatus moves a case to status and recomputes its next action.
// Any status may follow any other.
func (m *Manager) UpdateStatus(ctx context.Context, sess Session, id string, status nextaction.Status) (*CaseRecord, error) {
	if !status.Valid() {
		m.record("update_status", ErrInvalidStatus)
		return nil, ErrInvalidStatus
	}

	rec, err := m.mutate(ctx, sess, id, "update_status", func(rec *CaseRecord) error {
		rec.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("Case status updated",
		zap.String("case_id", rec.ID),
		zap.String("status", string(rec.Status)),
		zap.String("next_action", rec.NextAction))
	return rec, nil
}

// UpdateDetails edits the complaint reference, loss amount or portal
func (m *Manager) UpdateDetails(ctx context.Context, sess Session, id string, in DetailsInput) (*CaseRecord, error) {
	if in.LossAmount != nil && *in.LossAmount < 0 {
		m.record("update_details", ErrInvalidAmount)
		return nil, ErrInvalidAmount
	}

	return m.mutate(ctx, sess, id, "update_details", func(rec *CaseRecord) error {
		if in.ComplaintReference != nil {
			rec.ComplaintReference = *in.ComplaintReference
		}
		if in.LossAmount != nil {
			rec.LossAmount = *in.LossAmount
		}
		if in.PortalUsed != nil {
			rec.PortalUsed = *in.PortalUsed
		}
		return nil
	})
}

// AttachAdvisory stores an already reconciled payload on the case. The
// payload is not validated again.
func (m *Manager) AttachAdvisory(ctx context.Context, sess Session, id string, payload advisory.Payload) (*CaseRecord, error) {
	return m.mutate(ctx, sess, id, "attach_advisory", func(rec *CaseRecord) error {
		rec.AIInsight = &Insight{Payload: payload, AttachedAt: m.now()}
		return nil
	})
}

// SelectEvidence replaces the case's selected evidence. Items must come
// from the incident's prepared checklist.
func (m *Manager) SelectEvidence(ctx context.Context, sess Session, id string, items []string) (*CaseRecord, error) {
	return m.mutate(ctx, sess, id, "select_evidence", func(rec *CaseRecord) error {
		def, err := m.catalog.FindByID(rec.IncidentID)
		if err != nil {
			return err
		}
		selected, err := normalizeEvidence(def, items)
		if err != nil {
			return err
		}
		rec.SelectedEvidence = selected
		return nil
	})
}

// Delete removes one of the session owner's cases
func (m *Manager) Delete(ctx context.Context, sess Session, id string) (err error) {
	defer func() { m.record("delete", err) }()

	if err := sess.validate(); err != nil {
		return err
	}
	if err := m.store.Delete(ctx, sess.OwnerID, id); err != nil {
		return m.storeError("delete", err)
	}

	m.logger.Info("Case deleted", zap.String("case_id", id))
	if m.notifier != nil {
		m.notifier.CaseDeleted(sess.OwnerID, id)
	}
	return nil
}

// Summary derives totals over the session owner's cases
func (m *Manager) Summary(ctx context.Context, sess Session) (*Summary, error) {
	records, err := m.List(ctx, sess)
	if err != nil {
		return nil, err
	}
	return Summarize(records), nil
}

// AdvisoryRequest builds the oracle request for a case
func (m *Manager) AdvisoryRequest(rec *CaseRecord) (advisory.Request, incident.Category) {
	req := advisory.Request{
		Status:             string(rec.Status),
		ComplaintReference: rec.ComplaintReference,
		PortalUsed:         rec.PortalUsed,
		LossAmount:         rec.LossAmount,
		IncidentTitle:      rec.IncidentID,
	}
	def, err := m.catalog.FindByID(rec.IncidentID)
	if err != nil {
		return req, ""
	}
	req.IncidentTitle = def.Title
	req.Category = string(def.Category)
	return req, def.Category
}

// mutate loads a case, applies fn, refreshes derived fields and stores it
func (m *Manager) mutate(ctx context.Context, sess Session, id, op string, fn func(rec *CaseRecord) error) (rec *CaseRecord, err error) {
	defer func() { m.record(op, err) }()

	if err := sess.validate(); err != nil {
		return nil, err
	}

	rec, err = m.store.Get(ctx, sess.OwnerID, id)
	if err != nil {
		return nil, m.storeError("get", err)
	}

	if err := fn(rec); err != nil {
		return nil, err
	}

	rec.NextAction = m.resolve(rec)
	rec.UpdatedAt = m.now()

	if err := m.store.Update(ctx, rec); err != nil {
		return nil, m.storeError("update", err)
	}

	m.notifyUpdated(rec)
	return rec, nil
}

// resolve computes the next action for rec. Cases whose incident left the
// catalog fall back to the generic rules.
func (m *Manager) resolve(rec *CaseRecord) string {
	category, err := m.catalog.CategoryOf(rec.IncidentID)
	if err != nil {
		m.logger.Warn("Case references unknown incident",
			zap.String("case_id", rec.ID),
			zap.String("incident_id", rec.IncidentID))
	}
	return nextaction.Resolve(category, rec.Status)
}

func (m *Manager) storeError(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	var se *StoreError
	if errors.As(err, &se) {
		return se
	}

	m.logger.Error("Record store failure", zap.String("operation", op), zap.Error(err))
	if m.metrics != nil {
		m.metrics.RecordStoreError(op)
	}
	return &StoreError{Op: op, Err: err}
}

func (m *Manager) notifyUpdated(rec *CaseRecord) {
	if m.notifier != nil {
		m.notifier.CaseUpdated(rec.OwnerID, rec)
	}
}

func (m *Manager) record(op string, err error) {
	if m.metrics != nil {
		m.metrics.RecordCaseOperation(op, err)
	}
}
