package store

import (
	"context"
	"fmt"
	"sync"

	"carebridge/internal/review/models"
	id "carebridge/pkg/domain"
	"carebridge/pkg/platform/sentinel"
)

// InMemory stores manager reviews keyed by participant. Only the active
// (non-rejected) review is reachable; superseded reviews are kept for
// history.
type InMemory struct {
	mu      sync.RWMutex
	active  map[id.ParticipantID]*models.ManagerReview
	history []*models.ManagerReview
}

// NewInMemory constructs an empty in-memory review store.
func NewInMemory() *InMemory {
	return &InMemory{active: make(map[id.ParticipantID]*models.ManagerReview)}
}

// Create opens a review cycle. Fails with ErrConflict if a non-rejected
// review already exists for the participant.
func (s *InMemory) Create(_ context.Context, review *models.ManagerReview) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.active[review.ParticipantID]; ok {
		return fmt.Errorf("active review %s exists: %w", existing.ID, sentinel.ErrConflict)
	}
	copied := *review
	s.active[review.ParticipantID] = &copied
	return nil
}

// FindActive returns the participant's current review cycle.
func (s *InMemory) FindActive(_ context.Context, participantID id.ParticipantID) (*models.ManagerReview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	review, ok := s.active[participantID]
	if !ok {
		return nil, fmt.Errorf("review for participant %s: %w", participantID, sentinel.ErrNotFound)
	}
	copied := *review
	return &copied, nil
}

// Execute runs validate then mutate on the active review while holding the
// store lock.
func (s *InMemory) Execute(_ context.Context, participantID id.ParticipantID,
	validate func(*models.ManagerReview) error,
	mutate func(*models.ManagerReview),
) (*models.ManagerReview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	review, ok := s.active[participantID]
	if !ok {
		return nil, fmt.Errorf("review for participant %s: %w", participantID, sentinel.ErrNotFound)
	}
	if err := validate(review); err != nil {
		return nil, err
	}
	mutate(review)

	// A rejected review leaves the active slot so a new cycle can open.
	if review.Status == models.StatusRejected {
		s.history = append(s.history, review)
		delete(s.active, participantID)
	}

	copied := *review
	return &copied, nil
}
