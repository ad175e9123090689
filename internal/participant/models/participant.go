package models

import (
	"time"

	id "carebridge/pkg/domain"
	dErrors "carebridge/pkg/domain-errors"
)

// Status is the participant's position in the service lifecycle.
type Status string

const (
	// StatusProspective covers the whole pre-onboarding phase: referral
	// accepted, plans drafted, review in flight.
	StatusProspective Status = "prospective"
	// StatusOnboarded means the conversion transaction committed. Terminal
	// for the onboarding flow; conversion never runs again.
	StatusOnboarded Status = "onboarded"
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
)

// Participant is a person receiving (or about to receive) care services.
type Participant struct {
	ID         id.ParticipantID `json:"id"`
	ReferralID *id.ReferralID   `json:"referral_id,omitempty"`
	FirstName  string           `json:"first_name"`
	LastName   string           `json:"last_name"`
	Status     Status           `json:"status"`

	// Conversion metadata, stamped once when the participant onboards.
	ScheduledStart     *time.Time `json:"scheduled_start,omitempty"`
	OnboardedAt        *time.Time `json:"onboarded_at,omitempty"`
	ConversionManager  string     `json:"conversion_manager,omitempty"`
	ConversionTitle    string     `json:"conversion_title,omitempty"`
	ConversionComments string     `json:"conversion_comments,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewProspective constructs a participant entering the pre-onboarding phase.
func NewProspective(firstName, lastName string, referralID *id.ReferralID, now time.Time) (*Participant, error) {
	if firstName == "" || lastName == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "first and last name are required")
	}
	return &Participant{
		ID:         id.NewParticipantID(),
		ReferralID: referralID,
		FirstName:  firstName,
		LastName:   lastName,
		Status:     StatusProspective,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (p *Participant) FullName() string { return p.FirstName + " " + p.LastName }

func (p *Participant) IsProspective() bool { return p.Status == StatusProspective }

// CanConvert checks the participant is still eligible for the conversion
// transaction. Anything past prospective has already been onboarded.
func (p *Participant) CanConvert() error {
	if p.Status != StatusProspective {
		return dErrors.New(dErrors.CodeAlreadyOnboarded, "participant has already been onboarded").
			WithEntity(p.ID.String(), string(p.Status))
	}
	return nil
}

// ConversionDetails is the metadata recorded by the conversion transaction.
type ConversionDetails struct {
	Manager        string
	Title          string
	Comments       string
	ScheduledStart *time.Time
}

// ApplyConversion marks the participant onboarded. Call CanConvert first.
func (p *Participant) ApplyConversion(details ConversionDetails, now time.Time) {
	p.Status = StatusOnboarded
	p.OnboardedAt = &now
	p.ConversionManager = details.Manager
	p.ConversionTitle = details.Title
	p.ConversionComments = details.Comments
	p.ScheduledStart = details.ScheduledStart
	p.UpdatedAt = now
}

// CanActivate checks the participant can begin receiving services.
func (p *Participant) CanActivate() error {
	switch p.Status {
	case StatusOnboarded, StatusInactive:
		return nil
	default:
		return dErrors.New(dErrors.CodeInvalidState, "only onboarded or inactive participants can be activated").
			WithEntity(p.ID.String(), string(p.Status))
	}
}

func (p *Participant) ApplyActivate(now time.Time) {
	p.Status = StatusActive
	p.UpdatedAt = now
}

// CanDeactivate checks the participant is currently receiving services.
func (p *Participant) CanDeactivate() error {
	if p.Status != StatusActive {
		return dErrors.New(dErrors.CodeInvalidState, "only active participants can be deactivated").
			WithEntity(p.ID.String(), string(p.Status))
	}
	return nil
}

func (p *Participant) ApplyDeactivate(now time.Time) {
	p.Status = StatusInactive
	p.UpdatedAt = now
}
