package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"carebridge/internal/envelope/models"
	id "carebridge/pkg/domain"
	"carebridge/pkg/platform/sentinel"
)

// InMemory stores envelopes behind one mutex with a token index kept in
// lockstep. A rotated token leaves the index immediately, so it never
// resolves again.
type InMemory struct {
	mu        sync.RWMutex
	envelopes map[id.EnvelopeID]*models.Envelope
	byToken   map[string]id.EnvelopeID
}

// NewInMemory constructs an empty in-memory envelope store.
func NewInMemory() *InMemory {
	return &InMemory{
		envelopes: make(map[id.EnvelopeID]*models.Envelope),
		byToken:   make(map[string]id.EnvelopeID),
	}
}

func (s *InMemory) Create(_ context.Context, env *models.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := cloneEnvelope(env)
	s.envelopes[env.ID] = copied
	if env.Token != "" {
		s.byToken[env.Token] = env.ID
	}
	return nil
}

func (s *InMemory) FindByID(_ context.Context, envelopeID id.EnvelopeID) (*models.Envelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	env, ok := s.envelopes[envelopeID]
	if !ok {
		return nil, fmt.Errorf("envelope %s: %w", envelopeID, sentinel.ErrNotFound)
	}
	return cloneEnvelope(env), nil
}

// FindByToken resolves a current token. Rotated tokens are gone from the
// index and fail with ErrNotFound.
func (s *InMemory) FindByToken(_ context.Context, token string) (*models.Envelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	envelopeID, ok := s.byToken[token]
	if !ok {
		return nil, fmt.Errorf("signing token: %w", sentinel.ErrNotFound)
	}
	return cloneEnvelope(s.envelopes[envelopeID]), nil
}

func (s *InMemory) ListByParticipant(_ context.Context, participantID id.ParticipantID) ([]*models.Envelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Envelope
	for _, env := range s.envelopes {
		if env.ParticipantID == participantID {
			out = append(out, cloneEnvelope(env))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Execute runs validate then mutate while holding the store lock, keeping
// the token index consistent when mutate rotates the token.
func (s *InMemory) Execute(_ context.Context, envelopeID id.EnvelopeID,
	validate func(*models.Envelope) error,
	mutate func(*models.Envelope),
) (*models.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, ok := s.envelopes[envelopeID]
	if !ok {
		return nil, fmt.Errorf("envelope %s: %w", envelopeID, sentinel.ErrNotFound)
	}
	if err := validate(env); err != nil {
		return nil, err
	}

	oldToken := env.Token
	mutate(env)
	if env.Token != oldToken {
		delete(s.byToken, oldToken)
		if env.Token != "" {
			s.byToken[env.Token] = env.ID
		}
	}
	return cloneEnvelope(env), nil
}

// ExpireIfLapsed applies the sent/viewed→expired transition when the
// deadline has passed. The check and the write share the lock, so of any
// number of concurrent callers exactly one observes applied=true.
func (s *InMemory) ExpireIfLapsed(_ context.Context, envelopeID id.EnvelopeID, now time.Time) (*models.Envelope, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, ok := s.envelopes[envelopeID]
	if !ok {
		return nil, false, fmt.Errorf("envelope %s: %w", envelopeID, sentinel.ErrNotFound)
	}
	if !env.Lapsed(now) {
		return cloneEnvelope(env), false, nil
	}
	env.ApplyExpire(now)
	return cloneEnvelope(env), true, nil
}

func cloneEnvelope(env *models.Envelope) *models.Envelope {
	copied := *env
	copied.DocumentIDs = make([]id.PlanDocumentID, len(env.DocumentIDs))
	copy(copied.DocumentIDs, env.DocumentIDs)
	return &copied
}
