package models

import (
	"time"

	id "carebridge/pkg/domain"
	dErrors "carebridge/pkg/domain-errors"
)

// Status is the manager review state. pending is the only non-terminal
// state; a rejected review can be superseded by opening a new pending one.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ManagerReview is the human approval record required, alongside the
// readiness gate, before a participant can be converted to onboarded.
// At most one non-rejected review exists per participant.
type ManagerReview struct {
	ID            id.ReviewID      `json:"id"`
	ParticipantID id.ParticipantID `json:"participant_id"`
	Status        Status           `json:"status"`
	Reviewer      string           `json:"reviewer,omitempty"`
	Comments      string           `json:"comments,omitempty"`
	DecidedAt     *time.Time       `json:"decided_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// NewPending opens a fresh review cycle.
func NewPending(participantID id.ParticipantID, now time.Time) *ManagerReview {
	return &ManagerReview{
		ID:            id.NewReviewID(),
		ParticipantID: participantID,
		Status:        StatusPending,
		CreatedAt:     now,
	}
}

func (r *ManagerReview) IsApproved() bool { return r.Status == StatusApproved }

// CanDecide checks the review is still pending. Deciding an already-decided
// review is handled by the service (idempotent same-outcome, conflict
// otherwise).
func (r *ManagerReview) CanDecide() error {
	if r.Status != StatusPending {
		return dErrors.New(dErrors.CodeInvalidState, "review is already decided").
			WithEntity(r.ID.String(), string(r.Status))
	}
	return nil
}

// ApplyDecision records the outcome. Call CanDecide first.
func (r *ManagerReview) ApplyDecision(status Status, reviewer, comments string, now time.Time) {
	r.Status = status
	r.Reviewer = reviewer
	r.Comments = comments
	r.DecidedAt = &now
}
