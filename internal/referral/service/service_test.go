package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	participantmodels "carebridge/internal/participant/models"
	participantstore "carebridge/internal/participant/store"
	"carebridge/internal/referral/models"
	"carebridge/internal/referral/store"
	id "carebridge/pkg/domain"
	dErrors "carebridge/pkg/domain-errors"
	"carebridge/pkg/requestcontext"
)

type ReferralServiceSuite struct {
	suite.Suite
	service      *Service
	participants *participantstore.InMemory
	manager      context.Context
	staff        context.Context
	now          time.Time
}

func TestReferralServiceSuite(t *testing.T) {
	suite.Run(t, new(ReferralServiceSuite))
}

func (s *ReferralServiceSuite) SetupTest() {
	s.participants = participantstore.NewInMemory()
	s.service = New(store.NewInMemory(s.participants))

	s.now = time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	base := requestcontext.WithTime(context.Background(), s.now)
	s.manager = requestcontext.WithActor(base, requestcontext.ActorInfo{
		Name: "Dana Field",
		Role: requestcontext.RoleServiceManager,
	})
	s.staff = requestcontext.WithActor(base, requestcontext.ActorInfo{
		Name: "Sam Ortiz",
		Role: requestcontext.RoleCoordinator,
	})
}

func (s *ReferralServiceSuite) submit() *models.Referral {
	r, err := s.service.Submit(s.manager, "Riley", "Chen", "riley@example.com", "0400000000", "hospital discharge")
	s.Require().NoError(err)
	return r
}

func (s *ReferralServiceSuite) TestSubmit() {
	s.Run("records an open referral", func() {
		r := s.submit()
		s.Equal(models.StatusOpen, r.Status)
		s.Equal(s.now, r.CreatedAt)
	})

	s.Run("rejects a malformed email", func() {
		_, err := s.service.Submit(s.manager, "Riley", "Chen", "not-an-email", "", "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("requires both names", func() {
		_, err := s.service.Submit(s.manager, "", "Chen", "riley@example.com", "", "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// Accepting creates the prospective participant and consumes the referral in
// one step.
func (s *ReferralServiceSuite) TestAccept() {
	r := s.submit()

	accepted, p, err := s.service.Accept(s.manager, r.ID)
	s.Require().NoError(err)

	s.Run("referral is consumed", func() {
		s.Equal(models.StatusConverted, accepted.Status)
		s.Require().NotNil(accepted.ParticipantID)
		s.Equal(p.ID, *accepted.ParticipantID)
	})

	s.Run("participant is prospective and linked back", func() {
		s.Equal(participantmodels.StatusProspective, p.Status)
		s.Equal("Riley", p.FirstName)
		s.Equal("Chen", p.LastName)
		s.Require().NotNil(p.ReferralID)
		s.Equal(r.ID, *p.ReferralID)

		stored, err := s.participants.FindByID(context.Background(), p.ID)
		s.Require().NoError(err)
		s.Equal(participantmodels.StatusProspective, stored.Status)
	})

	s.Run("second accept fails invalid state", func() {
		_, _, err := s.service.Accept(s.manager, r.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *ReferralServiceSuite) TestAcceptRequiresCapability() {
	r := s.submit()

	_, _, err := s.service.Accept(s.staff, r.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	got, err := s.service.Get(s.manager, r.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusOpen, got.Status)
}

func (s *ReferralServiceSuite) TestAcceptUnknownReferral() {
	_, _, err := s.service.Accept(s.manager, id.NewReferralID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

// Concurrent accepts consume the referral exactly once and create exactly one
// participant.
func (s *ReferralServiceSuite) TestConcurrentAccept() {
	r := s.submit()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, errs[i] = s.service.Accept(s.manager, r.ID)
		}()
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
		}
	}
	s.Equal(1, wins)

	all, err := s.participants.List(context.Background())
	s.Require().NoError(err)
	s.Len(all, 1)
}

func (s *ReferralServiceSuite) TestList() {
	first := s.submit()

	later := requestcontext.WithActor(
		requestcontext.WithTime(context.Background(), s.now.Add(time.Minute)),
		requestcontext.ActorInfo{Name: "Dana Field", Role: requestcontext.RoleServiceManager},
	)
	second, err := s.service.Submit(later, "Ari", "Patel", "ari@example.com", "", "")
	s.Require().NoError(err)

	out, err := s.service.List(s.manager)
	s.Require().NoError(err)
	s.Require().Len(out, 2)
	s.Equal(first.ID, out[0].ID)
	s.Equal(second.ID, out[1].ID)
}
