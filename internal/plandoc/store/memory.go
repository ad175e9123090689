package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"carebridge/internal/plandoc/models"
	id "carebridge/pkg/domain"
	"carebridge/pkg/platform/sentinel"
)

// Error contract: store methods return sentinel errors (optionally wrapped)
// for factual states; services translate them into coded domain errors.
//
// InMemory keeps every document version in one map guarded by a single
// mutex. Version allocation, the draft-conflict check, and the publish swap
// each run entirely inside the lock, which is what makes the invariants hold
// under concurrent callers.
type InMemory struct {
	mu   sync.RWMutex
	docs map[id.PlanDocumentID]*models.PlanDocument
}

// NewInMemory constructs an empty in-memory plan document store.
func NewInMemory() *InMemory {
	return &InMemory{docs: make(map[id.PlanDocumentID]*models.PlanDocument)}
}

// CreateDraft assigns the next version number for the (participant, kind)
// family and persists the draft. Fails with ErrDraftExists if the family
// already has an open draft.
func (s *InMemory) CreateDraft(_ context.Context, doc *models.PlanDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	maxVersion := 0
	for _, existing := range s.docs {
		if existing.ParticipantID != doc.ParticipantID || existing.Kind != doc.Kind {
			continue
		}
		if existing.Status == models.StatusDraft {
			return fmt.Errorf("open draft %s: %w", existing.ID, sentinel.ErrDraftExists)
		}
		if existing.VersionNumber > maxVersion {
			maxVersion = existing.VersionNumber
		}
	}
	doc.VersionNumber = maxVersion + 1

	copied := *doc
	s.docs[doc.ID] = &copied
	return nil
}

// FindByID returns a copy of the version.
func (s *InMemory) FindByID(_ context.Context, docID id.PlanDocumentID) (*models.PlanDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[docID]
	if !ok {
		return nil, fmt.Errorf("plan document %s: %w", docID, sentinel.ErrNotFound)
	}
	copied := *doc
	return &copied, nil
}

// Execute runs validate then mutate on the version while holding the store
// lock, so a concurrent publish or discard cannot land between check and
// write. Returns the mutated copy.
func (s *InMemory) Execute(_ context.Context, docID id.PlanDocumentID,
	validate func(*models.PlanDocument) error,
	mutate func(*models.PlanDocument),
) (*models.PlanDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[docID]
	if !ok {
		return nil, fmt.Errorf("plan document %s: %w", docID, sentinel.ErrNotFound)
	}
	if err := validate(doc); err != nil {
		return nil, err
	}
	mutate(doc)
	copied := *doc
	return &copied, nil
}

// Publish atomically archives the family's current published version (if
// any) and marks the target draft published. Both writes happen under one
// lock; the loser of a publish race observes the winner's committed state.
func (s *InMemory) Publish(_ context.Context, docID id.PlanDocumentID, approver string, now time.Time) (*models.PlanDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[docID]
	if !ok {
		return nil, fmt.Errorf("plan document %s: %w", docID, sentinel.ErrNotFound)
	}
	if err := doc.CanPublish(); err != nil {
		return nil, fmt.Errorf("publish %s: %w", docID, sentinel.ErrInvalidState)
	}

	for _, existing := range s.docs {
		if existing.ParticipantID == doc.ParticipantID &&
			existing.Kind == doc.Kind &&
			existing.Status == models.StatusPublished {
			existing.ApplyArchive(now)
		}
	}
	doc.ApplyPublish(approver, now)

	copied := *doc
	return &copied, nil
}

// DeleteDraft removes an open draft.
func (s *InMemory) DeleteDraft(_ context.Context, docID id.PlanDocumentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[docID]
	if !ok {
		return fmt.Errorf("plan document %s: %w", docID, sentinel.ErrNotFound)
	}
	if !doc.IsDraft() {
		return fmt.Errorf("discard %s in status %s: %w", docID, doc.Status, sentinel.ErrInvalidState)
	}
	delete(s.docs, docID)
	return nil
}

// GetCurrent returns the published version for the family, or ErrNotFound.
func (s *InMemory) GetCurrent(_ context.Context, participantID id.ParticipantID, kind models.DocumentKind) (*models.PlanDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, doc := range s.docs {
		if doc.ParticipantID == participantID && doc.Kind == kind && doc.Status == models.StatusPublished {
			copied := *doc
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("current %s for participant %s: %w", kind, participantID, sentinel.ErrNotFound)
}

// HasAny reports whether any version (draft or otherwise) exists for the
// family. The readiness gate uses this for the existence predicate.
func (s *InMemory) HasAny(_ context.Context, participantID id.ParticipantID, kind models.DocumentKind) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, doc := range s.docs {
		if doc.ParticipantID == participantID && doc.Kind == kind {
			return true, nil
		}
	}
	return false, nil
}

// ListVersions returns the family's versions ordered by version number.
func (s *InMemory) ListVersions(_ context.Context, participantID id.ParticipantID, kind models.DocumentKind) ([]*models.PlanDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.PlanDocument
	for _, doc := range s.docs {
		if doc.ParticipantID == participantID && doc.Kind == kind {
			copied := *doc
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber < out[j].VersionNumber })
	return out, nil
}
