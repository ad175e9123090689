package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	participantmodels "carebridge/internal/participant/models"
	"carebridge/internal/referral/models"
	id "carebridge/pkg/domain"
	"carebridge/pkg/platform/sentinel"
)

// ParticipantWriter persists the participant created when a referral is
// accepted.
type ParticipantWriter interface {
	Create(ctx context.Context, p *participantmodels.Participant) error
}

// InMemory stores referrals behind one mutex. Accept holds the lock across
// the status check, the participant insert, and the referral update, so a
// referral converts at most once.
type InMemory struct {
	mu           sync.Mutex
	referrals    map[id.ReferralID]*models.Referral
	participants ParticipantWriter
}

// NewInMemory constructs an in-memory referral store writing created
// participants through the given writer.
func NewInMemory(participants ParticipantWriter) *InMemory {
	return &InMemory{
		referrals:    make(map[id.ReferralID]*models.Referral),
		participants: participants,
	}
}

func (s *InMemory) Create(_ context.Context, r *models.Referral) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *r
	s.referrals[r.ID] = &copied
	return nil
}

func (s *InMemory) FindByID(_ context.Context, referralID id.ReferralID) (*models.Referral, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.referrals[referralID]
	if !ok {
		return nil, fmt.Errorf("referral %s: %w", referralID, sentinel.ErrNotFound)
	}
	copied := *r
	return &copied, nil
}

func (s *InMemory) List(_ context.Context) ([]*models.Referral, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Referral, 0, len(s.referrals))
	for _, r := range s.referrals {
		copied := *r
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Accept consumes the referral: build produces the participant from the
// locked referral, the participant is persisted, and the referral is marked
// converted, all in one critical section.
func (s *InMemory) Accept(ctx context.Context, referralID id.ReferralID,
	build func(*models.Referral) (*participantmodels.Participant, error),
) (*models.Referral, *participantmodels.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.referrals[referralID]
	if !ok {
		return nil, nil, fmt.Errorf("referral %s: %w", referralID, sentinel.ErrNotFound)
	}

	p, err := build(r)
	if err != nil {
		return nil, nil, err
	}
	if err := s.participants.Create(ctx, p); err != nil {
		return nil, nil, fmt.Errorf("create participant from referral: %w", err)
	}
	r.ApplyAccept(p.ID, p.CreatedAt)

	copied := *r
	return &copied, p, nil
}
