// Package quote is the quotation collaborator. Quote preparation happens in
// an external system; the readiness gate only needs the latest quotation for
// a participant, if one exists.
package quote

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	id "carebridge/pkg/domain"
)

// Quotation is a priced service offer for a prospective participant.
type Quotation struct {
	ID            uuid.UUID        `json:"id"`
	ParticipantID id.ParticipantID `json:"participant_id"`
	AmountCents   int64            `json:"amount_cents"`
	Currency      string           `json:"currency"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Source is the collaborator contract consumed by the gate.
type Source interface {
	Latest(ctx context.Context, participantID id.ParticipantID) (*Quotation, error)
}

// Memory is the reference Source used in development and tests.
type Memory struct {
	mu     sync.RWMutex
	latest map[id.ParticipantID]*Quotation
}

// NewMemory constructs an empty in-memory quotation source.
func NewMemory() *Memory {
	return &Memory{latest: make(map[id.ParticipantID]*Quotation)}
}

// Set records the latest quotation for a participant.
func (m *Memory) Set(_ context.Context, q *Quotation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *q
	m.latest[q.ParticipantID] = &copied
}

// Latest returns the participant's newest quotation, or nil when none
// exists. Absence is a normal answer, not an error.
func (m *Memory) Latest(_ context.Context, participantID id.ParticipantID) (*Quotation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.latest[participantID]
	if !ok {
		return nil, nil
	}
	copied := *q
	return &copied, nil
}
