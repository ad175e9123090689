package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"carebridge/internal/participant/models"
	id "carebridge/pkg/domain"
	"carebridge/pkg/platform/sentinel"
)

// InMemory keeps participants behind one mutex. Execute runs its callbacks
// while holding the write lock so conversion precondition re-checks and the
// status flip are a single critical section.
type InMemory struct {
	mu           sync.RWMutex
	participants map[id.ParticipantID]*models.Participant
}

// NewInMemory constructs an empty in-memory participant store.
func NewInMemory() *InMemory {
	return &InMemory{participants: make(map[id.ParticipantID]*models.Participant)}
}

// Create persists a new participant.
func (s *InMemory) Create(_ context.Context, p *models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[p.ID]; ok {
		return fmt.Errorf("participant %s: %w", p.ID, sentinel.ErrConflict)
	}
	copied := *p
	s.participants[p.ID] = &copied
	return nil
}

// FindByID returns one participant.
func (s *InMemory) FindByID(_ context.Context, participantID id.ParticipantID) (*models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[participantID]
	if !ok {
		return nil, fmt.Errorf("participant %s: %w", participantID, sentinel.ErrNotFound)
	}
	copied := *p
	return &copied, nil
}

// List returns all participants ordered by creation time.
func (s *InMemory) List(_ context.Context) ([]*models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		copied := *p
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Execute runs validate then mutate on the participant while holding the
// store lock. validate receives a copy; mutate receives the stored record,
// so its changes are the commit.
func (s *InMemory) Execute(ctx context.Context, participantID id.ParticipantID,
	validate func(context.Context, *models.Participant) error,
	mutate func(*models.Participant),
) (*models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[participantID]
	if !ok {
		return nil, fmt.Errorf("participant %s: %w", participantID, sentinel.ErrNotFound)
	}
	snapshot := *p
	if err := validate(ctx, &snapshot); err != nil {
		return nil, err
	}
	mutate(p)

	copied := *p
	return &copied, nil
}
