package models

import (
	"time"

	"github.com/asaskevich/govalidator"

	id "carebridge/pkg/domain"
	dErrors "carebridge/pkg/domain-errors"
)

// Status is the envelope's position in the signing state machine.
//
//	created → sent → viewed → signed
//
// Status only moves forward, with two exceptions: cancel reaches cancelled
// from any non-terminal state, and resend re-enters sent from sent or
// viewed. signed, expired and cancelled are terminal.
type Status string

const (
	StatusCreated   Status = "created"
	StatusSent      Status = "sent"
	StatusViewed    Status = "viewed"
	StatusSigned    Status = "signed"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Signer identifies the person asked to sign.
type Signer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

// Envelope bundles documents for one signer. DocumentIDs is an immutable
// snapshot taken at creation; later edits to the documents do not affect an
// open envelope.
type Envelope struct {
	ID            id.EnvelopeID       `json:"id"`
	ParticipantID id.ParticipantID    `json:"participant_id"`
	DocumentIDs   []id.PlanDocumentID `json:"document_ids"`
	Signer        Signer              `json:"signer"`
	Status        Status              `json:"status"`
	Token         string              `json:"-"`
	TypedName     string              `json:"typed_name,omitempty"`
	ExpiresAt     time.Time           `json:"expires_at"`
	CompletedAt   *time.Time          `json:"completed_at,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// New constructs an envelope in created. Send happens immediately after
// persistence, as a separate transition.
func New(participantID id.ParticipantID, documentIDs []id.PlanDocumentID, signer Signer, now time.Time) (*Envelope, error) {
	if participantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "participant id is required")
	}
	if len(documentIDs) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one document is required")
	}
	if signer.Name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "signer name is required")
	}
	if !govalidator.IsEmail(signer.Email) {
		return nil, dErrors.Newf(dErrors.CodeValidation, "invalid signer email %q", signer.Email)
	}

	snapshot := make([]id.PlanDocumentID, len(documentIDs))
	copy(snapshot, documentIDs)
	return &Envelope{
		ID:            id.NewEnvelopeID(),
		ParticipantID: participantID,
		DocumentIDs:   snapshot,
		Signer:        signer,
		Status:        StatusCreated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// IsTerminal reports whether the envelope has reached a final state.
func (e *Envelope) IsTerminal() bool {
	switch e.Status {
	case StatusSigned, StatusExpired, StatusCancelled:
		return true
	default:
		return false
	}
}

// Lapsed reports whether the envelope is past its deadline while still
// awaiting signature. The expired transition itself is applied lazily by the
// store's guarded update.
func (e *Envelope) Lapsed(now time.Time) bool {
	switch e.Status {
	case StatusSent, StatusViewed:
		return now.After(e.ExpiresAt)
	default:
		return false
	}
}

// ApplySend issues the signing token and opens the signing window.
func (e *Envelope) ApplySend(token string, expiresAt time.Time, now time.Time) {
	e.Status = StatusSent
	e.Token = token
	e.ExpiresAt = expiresAt
	e.UpdatedAt = now
}

// CanResend checks a fresh token can be issued.
func (e *Envelope) CanResend() error {
	switch e.Status {
	case StatusSent, StatusViewed:
		return nil
	default:
		return dErrors.New(dErrors.CodeInvalidState, "only awaiting-signature envelopes can be resent").
			WithEntity(e.ID.String(), string(e.Status))
	}
}

// ApplyResend rotates the token and extends the deadline, re-entering sent.
// The prior token stops resolving.
func (e *Envelope) ApplyResend(token string, expiresAt time.Time, now time.Time) {
	e.Status = StatusSent
	e.Token = token
	e.ExpiresAt = expiresAt
	e.UpdatedAt = now
}

// CanCancel checks cancellation is possible. Cancelling an already-cancelled
// envelope is handled as a no-op by the caller.
func (e *Envelope) CanCancel() error {
	if e.IsTerminal() {
		return dErrors.New(dErrors.CodeInvalidState, "envelope is in a terminal state").
			WithEntity(e.ID.String(), string(e.Status))
	}
	return nil
}

func (e *Envelope) ApplyCancel(now time.Time) {
	e.Status = StatusCancelled
	e.UpdatedAt = now
}

// CanView checks the signer-opens-link transition.
func (e *Envelope) CanView() error {
	switch e.Status {
	case StatusSent, StatusViewed:
		return nil
	default:
		return dErrors.New(dErrors.CodeInvalidState, "envelope is not awaiting signature").
			WithEntity(e.ID.String(), string(e.Status))
	}
}

// ApplyView records the first open. Repeat opens stay viewed.
func (e *Envelope) ApplyView(now time.Time) {
	if e.Status == StatusSent {
		e.Status = StatusViewed
	}
	e.UpdatedAt = now
}

// CanAccept checks the envelope can still be signed.
func (e *Envelope) CanAccept() error {
	switch e.Status {
	case StatusSent, StatusViewed:
		return nil
	case StatusExpired:
		return dErrors.New(dErrors.CodeExpired, "envelope has expired").
			WithEntity(e.ID.String(), string(e.Status))
	default:
		return dErrors.New(dErrors.CodeConflict, "envelope has already been completed or cancelled").
			WithEntity(e.ID.String(), string(e.Status))
	}
}

// ApplySign records the signature evidence and freezes the envelope.
func (e *Envelope) ApplySign(typedName string, now time.Time) {
	e.Status = StatusSigned
	e.TypedName = typedName
	e.CompletedAt = &now
	e.UpdatedAt = now
}

// ApplyExpire marks the envelope expired. Stores apply this through a
// guarded conditional update so concurrent readers expire it at most once.
func (e *Envelope) ApplyExpire(now time.Time) {
	e.Status = StatusExpired
	e.UpdatedAt = now
}
