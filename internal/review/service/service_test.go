package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"carebridge/internal/review/models"
	"carebridge/internal/review/store"
	id "carebridge/pkg/domain"
	dErrors "carebridge/pkg/domain-errors"
	"carebridge/pkg/requestcontext"
)

type ReviewServiceSuite struct {
	suite.Suite
	service *Service
	pid     id.ParticipantID
	manager context.Context
	staff   context.Context
}

func TestReviewServiceSuite(t *testing.T) {
	suite.Run(t, new(ReviewServiceSuite))
}

func (s *ReviewServiceSuite) SetupTest() {
	s.service = New(store.NewInMemory())
	s.pid = id.NewParticipantID()

	base := requestcontext.WithTime(context.Background(), time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	s.manager = requestcontext.WithActor(base, requestcontext.ActorInfo{
		Name: "Dana Field",
		Role: requestcontext.RoleServiceManager,
	})
	s.staff = requestcontext.WithActor(base, requestcontext.ActorInfo{
		Name: "Sam Ortiz",
		Role: requestcontext.RoleCoordinator,
	})
}

func (s *ReviewServiceSuite) TestOpen() {
	s.Run("opens a pending review", func() {
		review, err := s.service.Open(s.manager, s.pid)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, review.Status)
	})

	s.Run("second open conflicts while a cycle is active", func() {
		_, err := s.service.Open(s.manager, s.pid)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *ReviewServiceSuite) TestApprove() {
	_, err := s.service.Open(s.manager, s.pid)
	s.Require().NoError(err)

	s.Run("coordinator cannot approve", func() {
		_, err := s.service.Approve(s.staff, s.pid, "looks good")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("service manager approves", func() {
		review, err := s.service.Approve(s.manager, s.pid, "plan and risks reviewed")
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, review.Status)
		s.Equal("Dana Field", review.Reviewer)
		s.NotNil(review.DecidedAt)
	})

	s.Run("re-approving is a no-op returning the existing record", func() {
		first, err := s.service.GetActive(s.manager, s.pid)
		s.Require().NoError(err)

		again, err := s.service.Approve(s.manager, s.pid, "different comments")
		s.Require().NoError(err)
		s.Equal(first.ID, again.ID)
		s.Equal(first.Comments, again.Comments)
	})

	s.Run("rejecting an approved review fails invalid state", func() {
		_, err := s.service.Reject(s.manager, s.pid, "changed my mind")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *ReviewServiceSuite) TestRejectAndSupersede() {
	_, err := s.service.Open(s.manager, s.pid)
	s.Require().NoError(err)

	rejected, err := s.service.Reject(s.manager, s.pid, "risk assessment too thin")
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, rejected.Status)

	s.Run("rejected cycle frees the active slot", func() {
		active, err := s.service.GetActive(s.manager, s.pid)
		s.Require().NoError(err)
		s.Nil(active)
	})

	s.Run("a new pending cycle can open", func() {
		review, err := s.service.Open(s.manager, s.pid)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, review.Status)
		s.NotEqual(rejected.ID, review.ID)
	})
}

func (s *ReviewServiceSuite) TestIsApproved() {
	approved, err := s.service.IsApproved(s.manager, s.pid)
	s.Require().NoError(err)
	s.False(approved)

	_, err = s.service.Open(s.manager, s.pid)
	s.Require().NoError(err)
	approved, err = s.service.IsApproved(s.manager, s.pid)
	s.Require().NoError(err)
	s.False(approved)

	_, err = s.service.Approve(s.manager, s.pid, "")
	s.Require().NoError(err)
	approved, err = s.service.IsApproved(s.manager, s.pid)
	s.Require().NoError(err)
	s.True(approved)
}

func (s *ReviewServiceSuite) TestDecideWithoutActiveReview() {
	_, err := s.service.Approve(s.manager, s.pid, "")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
