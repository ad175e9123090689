package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"carebridge/internal/envelope/models"
	id "carebridge/pkg/domain"
	"carebridge/pkg/platform/sentinel"
)

type InMemoryEnvelopeStoreSuite struct {
	suite.Suite
	store *InMemory
	now   time.Time
}

func TestInMemoryEnvelopeStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryEnvelopeStoreSuite))
}

func (s *InMemoryEnvelopeStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.now = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
}

func (s *InMemoryEnvelopeStoreSuite) sent(token string, ttl time.Duration) *models.Envelope {
	env, err := models.New(id.NewParticipantID(), []id.PlanDocumentID{id.NewPlanDocumentID()},
		models.Signer{Name: "Riley Chen", Email: "riley@example.com"}, s.now)
	s.Require().NoError(err)
	env.ApplySend(token, s.now.Add(ttl), s.now)
	s.Require().NoError(s.store.Create(context.Background(), env))
	return env
}

func (s *InMemoryEnvelopeStoreSuite) TestTokenIndexFollowsRotation() {
	ctx := context.Background()
	env := s.sent("sig_original", 24*time.Hour)

	found, err := s.store.FindByToken(ctx, "sig_original")
	s.Require().NoError(err)
	s.Equal(env.ID, found.ID)

	_, err = s.store.Execute(ctx, env.ID,
		func(e *models.Envelope) error { return e.CanResend() },
		func(e *models.Envelope) { e.ApplyResend("sig_rotated", s.now.Add(48*time.Hour), s.now) },
	)
	s.Require().NoError(err)

	s.Run("old token no longer resolves", func() {
		_, err := s.store.FindByToken(ctx, "sig_original")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("new token resolves", func() {
		found, err := s.store.FindByToken(ctx, "sig_rotated")
		s.Require().NoError(err)
		s.Equal(env.ID, found.ID)
	})
}

// The guarded expiry write applies exactly once under concurrent readers.
func (s *InMemoryEnvelopeStoreSuite) TestExpireIfLapsedAppliesOnce() {
	ctx := context.Background()
	env := s.sent("sig_lapsing", time.Hour)
	later := s.now.Add(2 * time.Hour)

	var wg sync.WaitGroup
	applied := make([]bool, 10)
	for i := range applied {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, wasApplied, err := s.store.ExpireIfLapsed(ctx, env.ID, later)
			s.NoError(err)
			applied[i] = wasApplied
		}()
	}
	wg.Wait()

	count := 0
	for _, a := range applied {
		if a {
			count++
		}
	}
	s.Equal(1, count)

	final, err := s.store.FindByID(ctx, env.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusExpired, final.Status)
}

func (s *InMemoryEnvelopeStoreSuite) TestExpireIfLapsedIgnoresFreshAndTerminal() {
	ctx := context.Background()

	s.Run("fresh envelope is untouched", func() {
		env := s.sent("sig_fresh", 24*time.Hour)
		got, applied, err := s.store.ExpireIfLapsed(ctx, env.ID, s.now.Add(time.Hour))
		s.Require().NoError(err)
		s.False(applied)
		s.Equal(models.StatusSent, got.Status)
	})

	s.Run("signed envelope never expires", func() {
		env := s.sent("sig_signed", time.Hour)
		_, err := s.store.Execute(ctx, env.ID,
			func(e *models.Envelope) error { return e.CanAccept() },
			func(e *models.Envelope) { e.ApplySign("Riley Chen", s.now) },
		)
		s.Require().NoError(err)

		got, applied, err := s.store.ExpireIfLapsed(ctx, env.ID, s.now.Add(48*time.Hour))
		s.Require().NoError(err)
		s.False(applied)
		s.Equal(models.StatusSigned, got.Status)
	})
}

func (s *InMemoryEnvelopeStoreSuite) TestDocumentSnapshotIsCopied() {
	ctx := context.Background()
	docID := id.NewPlanDocumentID()
	env, err := models.New(id.NewParticipantID(), []id.PlanDocumentID{docID},
		models.Signer{Name: "Riley Chen", Email: "riley@example.com"}, s.now)
	s.Require().NoError(err)
	env.ApplySend("sig_snapshot", s.now.Add(time.Hour), s.now)
	s.Require().NoError(s.store.Create(ctx, env))

	// Mutating the caller's slice must not reach the stored snapshot.
	env.DocumentIDs[0] = id.NewPlanDocumentID()

	stored, err := s.store.FindByID(ctx, env.ID)
	s.Require().NoError(err)
	s.Equal(docID, stored.DocumentIDs[0])
}
