package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"carebridge/internal/envelope/models"
	"carebridge/internal/envelope/store"
	"carebridge/internal/lifecycle"
	id "carebridge/pkg/domain"
	dErrors "carebridge/pkg/domain-errors"
	"carebridge/pkg/requestcontext"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []lifecycle.Event
}

func (p *recordingPublisher) Emit(_ context.Context, event lifecycle.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) count(kind lifecycle.EventKind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

type recordingNotifier struct {
	requests []*models.Envelope
}

func (n *recordingNotifier) SigningRequested(_ context.Context, env *models.Envelope) error {
	n.requests = append(n.requests, env)
	return nil
}

type EnvelopeServiceSuite struct {
	suite.Suite
	service  *Service
	events   *recordingPublisher
	notifier *recordingNotifier
	pid      id.ParticipantID
	docs     []id.PlanDocumentID
	signer   models.Signer
	now      time.Time
	ctx      context.Context
}

func TestEnvelopeServiceSuite(t *testing.T) {
	suite.Run(t, new(EnvelopeServiceSuite))
}

func (s *EnvelopeServiceSuite) SetupTest() {
	s.events = &recordingPublisher{}
	s.notifier = &recordingNotifier{}
	s.service = New(store.NewInMemory(),
		WithEventPublisher(s.events),
		WithNotifier(s.notifier),
	)
	s.pid = id.NewParticipantID()
	s.docs = []id.PlanDocumentID{id.NewPlanDocumentID(), id.NewPlanDocumentID()}
	s.signer = models.Signer{Name: "Jane Doe", Email: "jane@example.com", Role: "participant"}
	s.now = time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)

	ctx := requestcontext.WithTime(context.Background(), s.now)
	s.ctx = requestcontext.WithActor(ctx, requestcontext.ActorInfo{
		Name: "Dana Field",
		Role: requestcontext.RoleServiceManager,
	})
}

// daysLater shifts the request clock forward to simulate elapsed time.
func (s *EnvelopeServiceSuite) daysLater(days int) context.Context {
	return requestcontext.WithTime(context.Background(), s.now.AddDate(0, 0, days))
}

func (s *EnvelopeServiceSuite) create(ttlDays int) *models.Envelope {
	env, err := s.service.Create(s.ctx, s.pid, s.docs, s.signer, ttlDays)
	s.Require().NoError(err)
	return env
}

func (s *EnvelopeServiceSuite) TestCreate() {
	env := s.create(0)

	s.Run("envelope goes straight to sent with a token", func() {
		s.Equal(models.StatusSent, env.Status)
		s.NotEmpty(env.Token)
		s.Len(env.DocumentIDs, 2)
	})

	s.Run("default signing window is fourteen days", func() {
		s.Equal(s.now.AddDate(0, 0, 14), env.ExpiresAt)
	})

	s.Run("signer is notified once", func() {
		s.Require().Len(s.notifier.requests, 1)
		s.Equal(env.ID, s.notifier.requests[0].ID)
	})

	s.Run("requires at least one document", func() {
		_, err := s.service.Create(s.ctx, s.pid, nil, s.signer, 0)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// After resend the previous token stops resolving forever while the new one
// resolves the same envelope.
func (s *EnvelopeServiceSuite) TestResendRotatesToken() {
	env := s.create(0)
	oldToken := env.Token

	resent, err := s.service.Resend(s.ctx, env.ID)
	s.Require().NoError(err)
	s.NotEqual(oldToken, resent.Token)

	s.Run("old token resolves not found", func() {
		_, err := s.service.PublicGet(s.ctx, oldToken)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("new token resolves the envelope", func() {
		got, err := s.service.PublicGet(s.ctx, resent.Token)
		s.Require().NoError(err)
		s.Equal(env.ID, got.ID)
	})

	s.Run("resend re-notifies the signer", func() {
		s.Len(s.notifier.requests, 2)
	})
}

func (s *EnvelopeServiceSuite) TestViewTransition() {
	env := s.create(0)

	first, err := s.service.PublicGet(s.ctx, env.Token)
	s.Require().NoError(err)
	s.Equal(models.StatusViewed, first.Status)

	s.Run("repeat opens stay viewed", func() {
		again, err := s.service.PublicGet(s.ctx, env.Token)
		s.Require().NoError(err)
		s.Equal(models.StatusViewed, again.Status)
	})

	s.Equal(1, s.events.count(lifecycle.EventEnvelopeViewed))
}

func (s *EnvelopeServiceSuite) TestAccept() {
	env := s.create(0)

	signed, err := s.service.Accept(s.ctx, env.Token, "Jane Doe")
	s.Require().NoError(err)
	s.Equal(models.StatusSigned, signed.Status)
	s.Equal("Jane Doe", signed.TypedName)
	s.Require().NotNil(signed.CompletedAt)

	s.Run("second accept fails conflict and leaves the snapshot alone", func() {
		_, err := s.service.Accept(s.ctx, env.Token, "Jane Doe")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		got, err := s.service.Get(s.ctx, env.ID)
		s.Require().NoError(err)
		s.Equal(s.docs, got.DocumentIDs)
		s.Equal(signed.CompletedAt, got.CompletedAt)
	})

	s.Run("typed name is required", func() {
		other := s.create(0)
		_, err := s.service.Accept(s.ctx, other.Token, "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Equal(1, s.events.count(lifecycle.EventEnvelopeSigned))
}

// An envelope with a one-day window, opened two simulated days later, reports
// expired without any background sweeper.
func (s *EnvelopeServiceSuite) TestLazyExpiry() {
	env := s.create(1)
	later := s.daysLater(2)

	got, err := s.service.PublicGet(later, env.Token)
	s.Require().NoError(err)
	s.Equal(models.StatusExpired, got.Status)

	s.Run("expiry event fires once across repeated reads", func() {
		_, err := s.service.PublicGet(later, env.Token)
		s.Require().NoError(err)
		s.Equal(1, s.events.count(lifecycle.EventEnvelopeExpired))
	})

	s.Run("accept on expired fails expired", func() {
		_, err := s.service.Accept(later, env.Token, "Jane Doe")
		s.True(dErrors.HasCode(err, dErrors.CodeExpired))
	})

	s.Run("expired envelope cannot be resent", func() {
		_, err := s.service.Resend(later, env.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *EnvelopeServiceSuite) TestCancel() {
	env := s.create(0)

	cancelled, err := s.service.Cancel(s.ctx, env.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCancelled, cancelled.Status)

	s.Run("cancel is idempotent", func() {
		again, err := s.service.Cancel(s.ctx, env.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusCancelled, again.Status)
		s.Equal(1, s.events.count(lifecycle.EventEnvelopeCancelled))
	})

	s.Run("accept on cancelled fails conflict", func() {
		_, err := s.service.Accept(s.ctx, env.Token, "Jane Doe")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("cancelled envelope cannot be resent", func() {
		_, err := s.service.Resend(s.ctx, env.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *EnvelopeServiceSuite) TestConfiguredDefaultTTL() {
	svc := New(store.NewInMemory(), WithDefaultTTLDays(30))
	env, err := svc.Create(s.ctx, s.pid, s.docs, s.signer, 0)
	s.Require().NoError(err)
	s.Equal(s.now.AddDate(0, 0, 30), env.ExpiresAt)
}

func (s *EnvelopeServiceSuite) TestUnknownToken() {
	_, err := s.service.PublicGet(s.ctx, "sig_does_not_exist")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *EnvelopeServiceSuite) TestListByParticipant() {
	s.create(0)
	s.create(0)

	envs, err := s.service.ListByParticipant(s.ctx, s.pid)
	s.Require().NoError(err)
	s.Len(envs, 2)

	other, err := s.service.ListByParticipant(s.ctx, id.NewParticipantID())
	s.Require().NoError(err)
	s.Empty(other)
}
