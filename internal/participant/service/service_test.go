package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"carebridge/internal/docgen"
	"carebridge/internal/gate"
	"carebridge/internal/lifecycle"
	"carebridge/internal/participant/models"
	"carebridge/internal/participant/store"
	plandocmodels "carebridge/internal/plandoc/models"
	plandocstore "carebridge/internal/plandoc/store"
	"carebridge/internal/quote"
	reviewservice "carebridge/internal/review/service"
	reviewstore "carebridge/internal/review/store"
	id "carebridge/pkg/domain"
	dErrors "carebridge/pkg/domain-errors"
	"carebridge/pkg/requestcontext"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []lifecycle.Event
}

func (p *capturingPublisher) Emit(_ context.Context, event lifecycle.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) kinds() []lifecycle.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]lifecycle.EventKind, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Kind)
	}
	return out
}

// ConversionSuite exercises the conversion transaction against real
// collaborators: the review workflow and the readiness gate over in-memory
// stores.
type ConversionSuite struct {
	suite.Suite
	service *Service
	reviews *reviewservice.Service
	docs    *plandocstore.InMemory
	quotes  *quote.Memory
	events  *capturingPublisher
	pid     id.ParticipantID
	manager context.Context
	staff   context.Context
	now     time.Time
}

func TestConversionSuite(t *testing.T) {
	suite.Run(t, new(ConversionSuite))
}

func (s *ConversionSuite) SetupTest() {
	s.docs = plandocstore.NewInMemory()
	s.quotes = quote.NewMemory()
	s.events = &capturingPublisher{}
	s.reviews = reviewservice.New(reviewstore.NewInMemory())
	gateEval := gate.New(s.docs, s.quotes, docgen.NewMemory())

	participants := store.NewInMemory()
	s.service = New(participants, s.reviews, gateEval, WithEventPublisher(s.events))

	s.now = time.Date(2026, 3, 3, 11, 0, 0, 0, time.UTC)
	base := requestcontext.WithTime(context.Background(), s.now)
	s.manager = requestcontext.WithActor(base, requestcontext.ActorInfo{
		Name: "Dana Field",
		Role: requestcontext.RoleServiceManager,
	})
	s.staff = requestcontext.WithActor(base, requestcontext.ActorInfo{
		Name: "Sam Ortiz",
		Role: requestcontext.RoleCoordinator,
	})

	p, err := s.service.Create(s.manager, "Riley", "Chen")
	s.Require().NoError(err)
	s.pid = p.ID
}

func (s *ConversionSuite) satisfyGate() {
	doc, err := plandocmodels.NewDraft(s.pid, plandocmodels.KindCarePlan, json.RawMessage(`{}`), "", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.docs.CreateDraft(context.Background(), doc))
	_, err = s.docs.Publish(context.Background(), doc.ID, "Dana Field", s.now)
	s.Require().NoError(err)

	risk, err := plandocmodels.NewDraft(s.pid, plandocmodels.KindRiskAssessment, json.RawMessage(`{}`), "", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.docs.CreateDraft(context.Background(), risk))

	s.quotes.Set(context.Background(), &quote.Quotation{
		ID:            uuid.New(),
		ParticipantID: s.pid,
		AmountCents:   98000,
		Currency:      "AUD",
		CreatedAt:     s.now,
	})
}

func (s *ConversionSuite) approveReview() {
	_, err := s.reviews.Open(s.manager, s.pid)
	s.Require().NoError(err)
	_, err = s.reviews.Approve(s.manager, s.pid, "ready")
	s.Require().NoError(err)
}

func (s *ConversionSuite) details() models.ConversionDetails {
	return models.ConversionDetails{Title: "Service Manager", Comments: "welcome aboard"}
}

// Conversion succeeds iff the gate passes AND the review is approved; all
// four combinations are exercised.
func (s *ConversionSuite) TestGatingLaw() {
	cases := []struct {
		name        string
		gateOK      bool
		reviewOK    bool
		wantSuccess bool
	}{
		{"gate passes, review approved", true, true, true},
		{"gate passes, review missing", true, false, false},
		{"gate blocked, review approved", false, true, false},
		{"gate blocked, review missing", false, false, false},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.SetupTest()
			if tc.gateOK {
				s.satisfyGate()
			}
			if tc.reviewOK {
				s.approveReview()
			}

			p, err := s.service.ConvertToOnboarded(s.manager, s.pid, s.details())
			if tc.wantSuccess {
				s.Require().NoError(err)
				s.Equal(models.StatusOnboarded, p.Status)
				return
			}
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
		})
	}
}

func (s *ConversionSuite) TestConvertRequiresCapability() {
	s.satisfyGate()
	s.approveReview()

	_, err := s.service.ConvertToOnboarded(s.staff, s.pid, s.details())
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *ConversionSuite) TestSecondConversionFailsAlreadyOnboarded() {
	s.satisfyGate()
	s.approveReview()

	p, err := s.service.ConvertToOnboarded(s.manager, s.pid, s.details())
	s.Require().NoError(err)
	s.Require().NotNil(p.OnboardedAt)
	s.Equal("Dana Field", p.ConversionManager)

	_, err = s.service.ConvertToOnboarded(s.manager, s.pid, s.details())
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyOnboarded))
}

func (s *ConversionSuite) TestGateFailureCarriesBlockingIssues() {
	s.approveReview()

	_, err := s.service.ConvertToOnboarded(s.manager, s.pid, s.details())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	s.Contains(err.Error(), "Care plan must be finalised")
}

// Two concurrent conversions end with exactly one winner; the loser sees
// AlreadyOnboarded, never a second onboarded event.
func (s *ConversionSuite) TestConcurrentConversion() {
	s.satisfyGate()
	s.approveReview()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.service.ConvertToOnboarded(s.manager, s.pid, s.details())
		}()
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			s.True(dErrors.HasCode(err, dErrors.CodeAlreadyOnboarded))
		}
	}
	s.Equal(1, wins)

	onboarded := 0
	for _, kind := range s.events.kinds() {
		if kind == lifecycle.EventParticipantOnboarded {
			onboarded++
		}
	}
	s.Equal(1, onboarded)
}

func (s *ConversionSuite) TestActivateDeactivate() {
	s.satisfyGate()
	s.approveReview()
	_, err := s.service.ConvertToOnboarded(s.manager, s.pid, s.details())
	s.Require().NoError(err)

	s.Run("prospective participant cannot activate", func() {
		other, err := s.service.Create(s.manager, "Ari", "Patel")
		s.Require().NoError(err)
		_, err = s.service.Activate(s.manager, other.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("onboarded activates and deactivates", func() {
		p, err := s.service.Activate(s.manager, s.pid)
		s.Require().NoError(err)
		s.Equal(models.StatusActive, p.Status)

		p, err = s.service.Deactivate(s.manager, s.pid)
		s.Require().NoError(err)
		s.Equal(models.StatusInactive, p.Status)
	})

	s.Run("inactive can re-activate", func() {
		p, err := s.service.Activate(s.manager, s.pid)
		s.Require().NoError(err)
		s.Equal(models.StatusActive, p.Status)
	})
}

func (s *ConversionSuite) TestReadinessRequiresExistingParticipant() {
	_, err := s.service.Readiness(s.manager, id.NewParticipantID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
