package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"carebridge/internal/plandoc/models"
	"carebridge/internal/plandoc/service"
	"carebridge/internal/plandoc/store"
	id "carebridge/pkg/domain"
	"carebridge/pkg/requestcontext"
	"carebridge/pkg/testutil"
)

type PlanDocHandlerSuite struct {
	suite.Suite
	router chi.Router
	pid    id.ParticipantID
}

func TestPlanDocHandlerSuite(t *testing.T) {
	suite.Run(t, new(PlanDocHandlerSuite))
}

func (s *PlanDocHandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(store.NewInMemory(), service.WithLogger(logger))
	h := New(svc, logger)

	s.router = chi.NewRouter()
	s.router.Use(s.asServiceManager)
	h.Register(s.router)
	s.pid = id.NewParticipantID()
}

// asServiceManager stands in for the auth and request middleware the server
// mounts in front of the handlers.
func (s *PlanDocHandlerSuite) asServiceManager(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC))
		ctx = requestcontext.WithActor(ctx, requestcontext.ActorInfo{
			Name: "Dana Field",
			Role: requestcontext.RoleServiceManager,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *PlanDocHandlerSuite) createDraft(kind string) *models.PlanDocument {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/participants/"+s.pid.String()+"/plan-documents", CreateDraftRequest{
		Kind:    kind,
		Content: json.RawMessage(`{"goals":["mobility"]}`),
	})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	return testutil.UnmarshalResponse[models.PlanDocument](s.T(), rr)
}

func (s *PlanDocHandlerSuite) TestCreateDraft() {
	doc := s.createDraft("care_plan")
	s.Equal(models.StatusDraft, doc.Status)
	s.Equal(1, doc.VersionNumber)

	s.Run("unknown kind fails validation", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/participants/"+s.pid.String()+"/plan-documents", CreateDraftRequest{
			Kind:    "meal_plan",
			Content: json.RawMessage(`{}`),
		})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
		testutil.AssertErrorCode(s.T(), rr, "validation")
	})

	s.Run("duplicate draft maps to conflict", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/participants/"+s.pid.String()+"/plan-documents", CreateDraftRequest{
			Kind:    "care_plan",
			Content: json.RawMessage(`{}`),
		})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusConflict)
		testutil.AssertErrorCode(s.T(), rr, "draft_conflict")
	})

	s.Run("malformed participant id is a bad request", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/participants/not-a-uuid/plan-documents", CreateDraftRequest{
			Kind:    "care_plan",
			Content: json.RawMessage(`{}`),
		})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})
}

func (s *PlanDocHandlerSuite) TestPublishAndCurrent() {
	doc := s.createDraft("care_plan")

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodPost, "/plan-documents/"+doc.ID.String()+"/publish"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	published := testutil.UnmarshalResponse[models.PlanDocument](s.T(), rr)
	s.Equal(models.StatusPublished, published.Status)
	s.Equal("Dana Field", published.ApprovedBy)

	s.Run("current resolves the published version", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet,
			"/participants/"+s.pid.String()+"/plan-documents/current?kind=care_plan"))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		current := testutil.UnmarshalResponse[models.PlanDocument](s.T(), rr)
		s.Equal(doc.ID, current.ID)
	})

	s.Run("current for the other family is not found", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet,
			"/participants/"+s.pid.String()+"/plan-documents/current?kind=risk_assessment"))
		testutil.AssertStatus(s.T(), rr, http.StatusNotFound)
	})

	s.Run("publishing the published version again conflicts", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodPost, "/plan-documents/"+doc.ID.String()+"/publish"))
		testutil.AssertStatus(s.T(), rr, http.StatusConflict)
		testutil.AssertErrorCode(s.T(), rr, "invalid_state")
	})
}

func (s *PlanDocHandlerSuite) TestUpdateDraft() {
	doc := s.createDraft("risk_assessment")

	req := testutil.NewJSONRequest(s.T(), http.MethodPatch, "/plan-documents/"+doc.ID.String(), UpdateDraftRequest{
		Content:      json.RawMessage(`{"hazards":["transfers"]}`),
		RevisionNote: "added transfer risk",
	})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	updated := testutil.UnmarshalResponse[models.PlanDocument](s.T(), rr)
	s.JSONEq(`{"hazards":["transfers"]}`, string(updated.Content))
}

func (s *PlanDocHandlerSuite) TestDiscard() {
	doc := s.createDraft("care_plan")

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodDelete, "/plan-documents/"+doc.ID.String()))
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)

	s.Run("discarded draft is gone", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodDelete, "/plan-documents/"+doc.ID.String()))
		testutil.AssertStatus(s.T(), rr, http.StatusNotFound)
	})
}

func (s *PlanDocHandlerSuite) TestListVersions() {
	doc := s.createDraft("care_plan")
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodPost, "/plan-documents/"+doc.ID.String()+"/publish"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.createDraft("care_plan")

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet,
		"/participants/"+s.pid.String()+"/plan-documents?kind=care_plan"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	var versions []models.PlanDocument
	s.Require().NoError(json.Unmarshal(testutil.ReadBody(s.T(), rr), &versions))
	s.Require().Len(versions, 2)
	s.Equal(1, versions[0].VersionNumber)
	s.Equal(2, versions[1].VersionNumber)
}
