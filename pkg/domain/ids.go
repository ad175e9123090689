// Package domain defines the strongly typed identifiers shared across
// carebridge. Wrapping uuid.UUID keeps a participant ID from being passed
// where an envelope ID is expected.
package domain

import "github.com/google/uuid"

type (
	ReferralID     uuid.UUID
	ParticipantID  uuid.UUID
	PlanDocumentID uuid.UUID
	ReviewID       uuid.UUID
	EnvelopeID     uuid.UUID
	ArtifactID     uuid.UUID
)

func NewReferralID() ReferralID         { return ReferralID(uuid.New()) }
func NewParticipantID() ParticipantID   { return ParticipantID(uuid.New()) }
func NewPlanDocumentID() PlanDocumentID { return PlanDocumentID(uuid.New()) }
func NewReviewID() ReviewID             { return ReviewID(uuid.New()) }
func NewEnvelopeID() EnvelopeID         { return EnvelopeID(uuid.New()) }
func NewArtifactID() ArtifactID         { return ArtifactID(uuid.New()) }

func (id ReferralID) String() string     { return uuid.UUID(id).String() }
func (id ParticipantID) String() string  { return uuid.UUID(id).String() }
func (id PlanDocumentID) String() string { return uuid.UUID(id).String() }
func (id ReviewID) String() string       { return uuid.UUID(id).String() }
func (id EnvelopeID) String() string     { return uuid.UUID(id).String() }
func (id ArtifactID) String() string     { return uuid.UUID(id).String() }

func (id ReferralID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id ParticipantID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id PlanDocumentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ReviewID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id EnvelopeID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }

// ParseParticipantID parses the textual form used in URLs.
func ParseParticipantID(s string) (ParticipantID, error) {
	u, err := uuid.Parse(s)
	return ParticipantID(u), err
}

func ParsePlanDocumentID(s string) (PlanDocumentID, error) {
	u, err := uuid.Parse(s)
	return PlanDocumentID(u), err
}

func ParseReferralID(s string) (ReferralID, error) {
	u, err := uuid.Parse(s)
	return ReferralID(u), err
}

func ParseEnvelopeID(s string) (EnvelopeID, error) {
	u, err := uuid.Parse(s)
	return EnvelopeID(u), err
}

// MarshalText makes the ID types log and serialize as canonical UUID strings.
func (id ParticipantID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id ReferralID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id PlanDocumentID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id ReviewID) MarshalText() ([]byte, error)       { return []byte(id.String()), nil }
func (id EnvelopeID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id ArtifactID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }

func (id *ParticipantID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = ParticipantID(u)
	return nil
}

func (id *ReferralID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = ReferralID(u)
	return nil
}

func (id *PlanDocumentID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = PlanDocumentID(u)
	return nil
}

func (id *ReviewID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = ReviewID(u)
	return nil
}

func (id *EnvelopeID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = EnvelopeID(u)
	return nil
}

func (id *ArtifactID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = ArtifactID(u)
	return nil
}
