package models

import (
	"time"

	"github.com/asaskevich/govalidator"

	id "carebridge/pkg/domain"
	dErrors "carebridge/pkg/domain-errors"
)

// Status is the referral's lifecycle state. A referral is consumed exactly
// once: accepting it creates the prospective participant and moves the
// referral to converted, which is terminal.
type Status string

const (
	StatusOpen      Status = "open"
	StatusConverted Status = "converted"
)

// Referral is an inbound request for care services, submitted before any
// participant record exists.
type Referral struct {
	ID            id.ReferralID     `json:"id"`
	FirstName     string            `json:"first_name"`
	LastName      string            `json:"last_name"`
	Email         string            `json:"email,omitempty"`
	Phone         string            `json:"phone,omitempty"`
	Notes         string            `json:"notes,omitempty"`
	Status        Status            `json:"status"`
	ParticipantID *id.ParticipantID `json:"participant_id,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	ConvertedAt   *time.Time        `json:"converted_at,omitempty"`
}

// New constructs an open referral.
func New(firstName, lastName, email, phone, notes string, now time.Time) (*Referral, error) {
	if firstName == "" || lastName == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "first and last name are required")
	}
	if email != "" && !govalidator.IsEmail(email) {
		return nil, dErrors.Newf(dErrors.CodeValidation, "invalid email address %q", email)
	}
	return &Referral{
		ID:        id.NewReferralID(),
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		Phone:     phone,
		Notes:     notes,
		Status:    StatusOpen,
		CreatedAt: now,
	}, nil
}

// CanAccept checks the referral has not been consumed.
func (r *Referral) CanAccept() error {
	if r.Status != StatusOpen {
		return dErrors.New(dErrors.CodeInvalidState, "referral has already been converted").
			WithEntity(r.ID.String(), string(r.Status))
	}
	return nil
}

// ApplyAccept links the created participant and closes the referral. Call
// CanAccept first.
func (r *Referral) ApplyAccept(participantID id.ParticipantID, now time.Time) {
	r.Status = StatusConverted
	r.ParticipantID = &participantID
	r.ConvertedAt = &now
}
