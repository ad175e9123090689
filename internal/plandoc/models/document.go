package models

import (
	"encoding/json"
	"time"

	id "carebridge/pkg/domain"
	dErrors "carebridge/pkg/domain-errors"
)

// DocumentKind is the closed set of clinical plan document families. One
// generic versioning engine serves every kind; kind-specific structure lives
// in the content payload.
type DocumentKind string

const (
	KindCarePlan       DocumentKind = "care_plan"
	KindRiskAssessment DocumentKind = "risk_assessment"
)

// ParseKind validates a document kind from transport input.
func ParseKind(s string) (DocumentKind, error) {
	switch DocumentKind(s) {
	case KindCarePlan, KindRiskAssessment:
		return DocumentKind(s), nil
	default:
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown document kind %q", s)
	}
}

// Status is the lifecycle state of one document version.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// PlanDocument is one version of a clinical plan document.
//
// Invariants (enforced by the store under one lock/transaction):
//   - At most one version per (participant, kind) has Status=published
//   - VersionNumber is strictly increasing per (participant, kind), never reused
//   - At most one open draft exists per (participant, kind)
//
// A version is mutable only while draft. It terminates either by being
// discarded (deleted) or published and eventually archived by a successor.
type PlanDocument struct {
	ID            id.PlanDocumentID `json:"id"`
	ParticipantID id.ParticipantID  `json:"participant_id"`
	Kind          DocumentKind      `json:"kind"`
	VersionNumber int               `json:"version_number"`
	Status        Status            `json:"status"`
	Content       json.RawMessage   `json:"content"`
	RevisionNote  string            `json:"revision_note,omitempty"`
	ApprovedBy    string            `json:"approved_by,omitempty"`
	PublishedAt   *time.Time        `json:"published_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// NewDraft constructs an unsaved draft. The store assigns VersionNumber when
// it persists the draft so allocation and the draft-conflict check share one
// critical section.
func NewDraft(participantID id.ParticipantID, kind DocumentKind, content json.RawMessage, revisionNote string, now time.Time) (*PlanDocument, error) {
	if participantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "participant id is required")
	}
	if len(content) == 0 {
		content = json.RawMessage(`{}`)
	}
	if !json.Valid(content) {
		return nil, dErrors.New(dErrors.CodeValidation, "content must be valid JSON")
	}
	return &PlanDocument{
		ID:            id.NewPlanDocumentID(),
		ParticipantID: participantID,
		Kind:          kind,
		Status:        StatusDraft,
		Content:       content,
		RevisionNote:  revisionNote,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (d *PlanDocument) IsDraft() bool     { return d.Status == StatusDraft }
func (d *PlanDocument) IsPublished() bool { return d.Status == StatusPublished }

// CanUpdate checks the version is still mutable.
func (d *PlanDocument) CanUpdate() error {
	if !d.IsDraft() {
		return dErrors.New(dErrors.CodeInvalidState, "only drafts can be updated").
			WithEntity(d.ID.String(), string(d.Status))
	}
	return nil
}

// ApplyUpdate replaces the draft content. Call CanUpdate first.
func (d *PlanDocument) ApplyUpdate(content json.RawMessage, revisionNote string, now time.Time) {
	d.Content = content
	if revisionNote != "" {
		d.RevisionNote = revisionNote
	}
	d.UpdatedAt = now
}

// CanPublish checks the version is a publishable draft.
func (d *PlanDocument) CanPublish() error {
	if !d.IsDraft() {
		return dErrors.New(dErrors.CodeInvalidState, "only drafts can be published").
			WithEntity(d.ID.String(), string(d.Status))
	}
	return nil
}

// ApplyPublish stamps approval metadata and marks the version current.
func (d *PlanDocument) ApplyPublish(approver string, now time.Time) {
	d.Status = StatusPublished
	d.ApprovedBy = approver
	d.PublishedAt = &now
	d.UpdatedAt = now
}

// ApplyArchive retires a previously published version.
func (d *PlanDocument) ApplyArchive(now time.Time) {
	d.Status = StatusArchived
	d.UpdatedAt = now
}

// CanDiscard checks the version can be deleted.
func (d *PlanDocument) CanDiscard() error {
	if !d.IsDraft() {
		return dErrors.New(dErrors.CodeInvalidState, "only drafts can be discarded").
			WithEntity(d.ID.String(), string(d.Status))
	}
	return nil
}
