// Package lifecycle carries participant lifecycle events to the notification
// collaborator. Events are emitted after the owning transaction commits;
// delivery failure never rolls back a committed state change.
package lifecycle

import (
	"time"

	id "carebridge/pkg/domain"
)

// EventKind enumerates the lifecycle transitions worth notifying on.
type EventKind string

const (
	EventReferralAccepted     EventKind = "referral.accepted"
	EventPlanDocPublished     EventKind = "plan_document.published"
	EventReviewApproved       EventKind = "review.approved"
	EventReviewRejected       EventKind = "review.rejected"
	EventParticipantOnboarded EventKind = "participant.onboarded"
	EventEnvelopeSent         EventKind = "envelope.sent"
	EventEnvelopeViewed       EventKind = "envelope.viewed"
	EventEnvelopeSigned       EventKind = "envelope.signed"
	EventEnvelopeCancelled    EventKind = "envelope.cancelled"
	EventEnvelopeExpired      EventKind = "envelope.expired"
)

// Event is one observed lifecycle transition.
type Event struct {
	Kind          EventKind         `json:"kind"`
	ParticipantID id.ParticipantID  `json:"participant_id"`
	EnvelopeID    id.EnvelopeID     `json:"envelope_id,omitempty"`
	Actor         string            `json:"actor,omitempty"`
	At            time.Time         `json:"at"`
	Detail        map[string]string `json:"detail,omitempty"`
}
