package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"carebridge/internal/plandoc/models"
	id "carebridge/pkg/domain"
	"carebridge/pkg/platform/sentinel"
)

type InMemoryDocStoreSuite struct {
	suite.Suite
	store *InMemory
	pid   id.ParticipantID
	now   time.Time
}

func TestInMemoryDocStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryDocStoreSuite))
}

func (s *InMemoryDocStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.pid = id.NewParticipantID()
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

func (s *InMemoryDocStoreSuite) draft(kind models.DocumentKind) *models.PlanDocument {
	doc, err := models.NewDraft(s.pid, kind, json.RawMessage(`{"goals":[]}`), "", s.now)
	s.Require().NoError(err)
	return doc
}

func (s *InMemoryDocStoreSuite) TestCreateDraft() {
	ctx := context.Background()

	s.Run("first draft gets version 1", func() {
		doc := s.draft(models.KindCarePlan)
		s.Require().NoError(s.store.CreateDraft(ctx, doc))
		s.Equal(1, doc.VersionNumber)
	})

	s.Run("second open draft for the same family is rejected", func() {
		doc := s.draft(models.KindCarePlan)
		err := s.store.CreateDraft(ctx, doc)
		s.ErrorIs(err, sentinel.ErrDraftExists)
	})

	s.Run("other kind is an independent family", func() {
		doc := s.draft(models.KindRiskAssessment)
		s.NoError(s.store.CreateDraft(ctx, doc))
		s.Equal(1, doc.VersionNumber)
	})

	s.Run("version numbers never regress after publish", func() {
		current, err := s.store.GetCurrent(ctx, s.pid, models.KindCarePlan)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
		s.Nil(current)

		versions, err := s.store.ListVersions(ctx, s.pid, models.KindCarePlan)
		s.Require().NoError(err)
		s.Require().Len(versions, 1)

		_, err = s.store.Publish(ctx, versions[0].ID, "Dana Field", s.now)
		s.Require().NoError(err)

		next := s.draft(models.KindCarePlan)
		s.Require().NoError(s.store.CreateDraft(ctx, next))
		s.Equal(2, next.VersionNumber)
	})
}

func (s *InMemoryDocStoreSuite) TestPublish() {
	ctx := context.Background()

	v1 := s.draft(models.KindCarePlan)
	s.Require().NoError(s.store.CreateDraft(ctx, v1))
	published, err := s.store.Publish(ctx, v1.ID, "Dana Field", s.now)
	s.Require().NoError(err)
	s.Equal(models.StatusPublished, published.Status)
	s.Equal("Dana Field", published.ApprovedBy)

	s.Run("get_current returns v1", func() {
		current, err := s.store.GetCurrent(ctx, s.pid, models.KindCarePlan)
		s.Require().NoError(err)
		s.Equal(v1.ID, current.ID)
		s.Equal(1, current.VersionNumber)
	})

	s.Run("publishing v2 archives v1", func() {
		v2 := s.draft(models.KindCarePlan)
		s.Require().NoError(s.store.CreateDraft(ctx, v2))
		_, err := s.store.Publish(ctx, v2.ID, "Dana Field", s.now.Add(time.Hour))
		s.Require().NoError(err)

		current, err := s.store.GetCurrent(ctx, s.pid, models.KindCarePlan)
		s.Require().NoError(err)
		s.Equal(v2.ID, current.ID)

		old, err := s.store.FindByID(ctx, v1.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusArchived, old.Status)
	})

	s.Run("publishing a published version fails", func() {
		_, err := s.store.Publish(ctx, v1.ID, "Dana Field", s.now)
		s.Error(err)
	})

	s.Run("unknown id fails not found", func() {
		_, err := s.store.Publish(ctx, id.NewPlanDocumentID(), "Dana Field", s.now)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

// Concurrent publish attempts on two sibling drafts must end with exactly one
// published version, no matter who wins.
func (s *InMemoryDocStoreSuite) TestConcurrentPublishKeepsOnePublished() {
	ctx := context.Background()

	v1 := s.draft(models.KindCarePlan)
	s.Require().NoError(s.store.CreateDraft(ctx, v1))
	_, err := s.store.Publish(ctx, v1.ID, "Dana Field", s.now)
	s.Require().NoError(err)

	v2 := s.draft(models.KindCarePlan)
	s.Require().NoError(s.store.CreateDraft(ctx, v2))

	// v2 is the only open draft; hammer publish on it from many goroutines.
	var wg sync.WaitGroup
	successes := make(chan struct{}, 16)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.store.Publish(ctx, v2.ID, "Dana Field", s.now.Add(time.Minute)); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	wins := 0
	for range successes {
		wins++
	}
	s.Equal(1, wins)

	versions, err := s.store.ListVersions(ctx, s.pid, models.KindCarePlan)
	s.Require().NoError(err)
	publishedCount := 0
	for _, doc := range versions {
		if doc.Status == models.StatusPublished {
			publishedCount++
		}
	}
	s.Equal(1, publishedCount)
}

func (s *InMemoryDocStoreSuite) TestDeleteDraft() {
	ctx := context.Background()

	doc := s.draft(models.KindCarePlan)
	s.Require().NoError(s.store.CreateDraft(ctx, doc))

	s.Run("draft can be deleted", func() {
		s.NoError(s.store.DeleteDraft(ctx, doc.ID))
		_, err := s.store.FindByID(ctx, doc.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("published version cannot be deleted", func() {
		v := s.draft(models.KindCarePlan)
		s.Require().NoError(s.store.CreateDraft(ctx, v))
		_, err := s.store.Publish(ctx, v.ID, "Dana Field", s.now)
		s.Require().NoError(err)

		err = s.store.DeleteDraft(ctx, v.ID)
		s.Error(err)
		s.False(errors.Is(err, sentinel.ErrNotFound))
	})
}

func (s *InMemoryDocStoreSuite) TestHasAny() {
	ctx := context.Background()

	has, err := s.store.HasAny(ctx, s.pid, models.KindRiskAssessment)
	s.Require().NoError(err)
	s.False(has)

	doc := s.draft(models.KindRiskAssessment)
	s.Require().NoError(s.store.CreateDraft(ctx, doc))

	has, err = s.store.HasAny(ctx, s.pid, models.KindRiskAssessment)
	s.Require().NoError(err)
	s.True(has)
}
