package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"carebridge/internal/lifecycle"
	"carebridge/internal/plandoc/models"
	"carebridge/internal/plandoc/store"
	id "carebridge/pkg/domain"
	dErrors "carebridge/pkg/domain-errors"
	"carebridge/pkg/requestcontext"
)

type recordingPublisher struct {
	events []lifecycle.Event
}

func (p *recordingPublisher) Emit(_ context.Context, event lifecycle.Event) error {
	p.events = append(p.events, event)
	return nil
}

type PlanDocServiceSuite struct {
	suite.Suite
	service *Service
	events  *recordingPublisher
	pid     id.ParticipantID
	ctx     context.Context
}

func TestPlanDocServiceSuite(t *testing.T) {
	suite.Run(t, new(PlanDocServiceSuite))
}

func (s *PlanDocServiceSuite) SetupTest() {
	s.events = &recordingPublisher{}
	s.service = New(store.NewInMemory(), WithEventPublisher(s.events))
	s.pid = id.NewParticipantID()

	ctx := requestcontext.WithTime(context.Background(), time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	s.ctx = requestcontext.WithActor(ctx, requestcontext.ActorInfo{
		Name: "Dana Field",
		Role: requestcontext.RoleServiceManager,
	})
}

func (s *PlanDocServiceSuite) TestDraftLifecycle() {
	content := json.RawMessage(`{"goals":["mobility"]}`)

	s.Run("create draft", func() {
		doc, err := s.service.CreateDraft(s.ctx, s.pid, models.KindCarePlan, content, "initial")
		s.Require().NoError(err)
		s.Equal(models.StatusDraft, doc.Status)
		s.Equal(1, doc.VersionNumber)
	})

	s.Run("duplicate draft fails with draft conflict", func() {
		_, err := s.service.CreateDraft(s.ctx, s.pid, models.KindCarePlan, content, "")
		s.True(dErrors.HasCode(err, dErrors.CodeDraftConflict))
	})

	s.Run("invalid content fails validation", func() {
		_, err := s.service.CreateDraft(s.ctx, s.pid, models.KindRiskAssessment, json.RawMessage(`{broken`), "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// Publish v1, then publish v2: get_current moves to v2 and v1 becomes
// archived history.
func (s *PlanDocServiceSuite) TestPublishSuccession() {
	v1, err := s.service.CreateDraft(s.ctx, s.pid, models.KindCarePlan, json.RawMessage(`{"v":1}`), "")
	s.Require().NoError(err)
	published, err := s.service.Publish(s.ctx, v1.ID)
	s.Require().NoError(err)
	s.Equal("Dana Field", published.ApprovedBy)
	s.Require().NotNil(published.PublishedAt)

	current, err := s.service.GetCurrent(s.ctx, s.pid, models.KindCarePlan)
	s.Require().NoError(err)
	s.Equal(v1.ID, current.ID)

	v2, err := s.service.CreateDraft(s.ctx, s.pid, models.KindCarePlan, json.RawMessage(`{"v":2}`), "revised goals")
	s.Require().NoError(err)
	s.Equal(2, v2.VersionNumber)
	_, err = s.service.Publish(s.ctx, v2.ID)
	s.Require().NoError(err)

	current, err = s.service.GetCurrent(s.ctx, s.pid, models.KindCarePlan)
	s.Require().NoError(err)
	s.Equal(v2.ID, current.ID)

	versions, err := s.service.ListVersions(s.ctx, s.pid, models.KindCarePlan)
	s.Require().NoError(err)
	s.Require().Len(versions, 2)
	s.Equal(models.StatusArchived, versions[0].Status)
	s.Equal(models.StatusPublished, versions[1].Status)

	s.Run("emits one published event per publish", func() {
		kinds := make([]lifecycle.EventKind, 0, len(s.events.events))
		for _, e := range s.events.events {
			kinds = append(kinds, e.Kind)
		}
		s.Equal([]lifecycle.EventKind{lifecycle.EventPlanDocPublished, lifecycle.EventPlanDocPublished}, kinds)
	})
}

func (s *PlanDocServiceSuite) TestUpdateDraft() {
	doc, err := s.service.CreateDraft(s.ctx, s.pid, models.KindCarePlan, json.RawMessage(`{}`), "")
	s.Require().NoError(err)

	s.Run("draft content is replaceable", func() {
		updated, err := s.service.UpdateDraft(s.ctx, doc.ID, json.RawMessage(`{"goals":["respite"]}`), "added respite")
		s.Require().NoError(err)
		s.JSONEq(`{"goals":["respite"]}`, string(updated.Content))
		s.Equal("added respite", updated.RevisionNote)
	})

	s.Run("published version is immutable", func() {
		_, err := s.service.Publish(s.ctx, doc.ID)
		s.Require().NoError(err)

		_, err = s.service.UpdateDraft(s.ctx, doc.ID, json.RawMessage(`{"late":true}`), "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("unknown id fails not found", func() {
		_, err := s.service.UpdateDraft(s.ctx, id.NewPlanDocumentID(), json.RawMessage(`{}`), "")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *PlanDocServiceSuite) TestDiscard() {
	doc, err := s.service.CreateDraft(s.ctx, s.pid, models.KindRiskAssessment, json.RawMessage(`{}`), "")
	s.Require().NoError(err)

	s.Run("draft can be discarded", func() {
		s.NoError(s.service.Discard(s.ctx, doc.ID))
	})

	s.Run("published version cannot be discarded", func() {
		v, err := s.service.CreateDraft(s.ctx, s.pid, models.KindRiskAssessment, json.RawMessage(`{}`), "")
		s.Require().NoError(err)
		_, err = s.service.Publish(s.ctx, v.ID)
		s.Require().NoError(err)

		err = s.service.Discard(s.ctx, v.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *PlanDocServiceSuite) TestGetCurrentWithoutPublished() {
	doc, err := s.service.GetCurrent(s.ctx, s.pid, models.KindCarePlan)
	s.NoError(err)
	s.Nil(doc)
}

func (s *PlanDocServiceSuite) TestPublishRequiresApprover() {
	doc, err := s.service.CreateDraft(s.ctx, s.pid, models.KindCarePlan, json.RawMessage(`{}`), "")
	s.Require().NoError(err)

	anon := requestcontext.WithTime(context.Background(), time.Now())
	_, err = s.service.Publish(anon, doc.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}
