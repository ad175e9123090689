package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"carebridge/internal/plandoc/models"
	id "carebridge/pkg/domain"
	dErrors "carebridge/pkg/domain-errors"
	"carebridge/pkg/platform/httputil"
	"carebridge/pkg/requestcontext"
)

// Service defines the plan document operations the handler exposes.
type Service interface {
	CreateDraft(ctx context.Context, participantID id.ParticipantID, kind models.DocumentKind, content json.RawMessage, revisionNote string) (*models.PlanDocument, error)
	UpdateDraft(ctx context.Context, docID id.PlanDocumentID, content json.RawMessage, revisionNote string) (*models.PlanDocument, error)
	Publish(ctx context.Context, docID id.PlanDocumentID) (*models.PlanDocument, error)
	Discard(ctx context.Context, docID id.PlanDocumentID) error
	GetCurrent(ctx context.Context, participantID id.ParticipantID, kind models.DocumentKind) (*models.PlanDocument, error)
	ListVersions(ctx context.Context, participantID id.ParticipantID, kind models.DocumentKind) ([]*models.PlanDocument, error)
}

// Handler wires plan document endpoints to the plan document service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts plan document endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/participants/{participantID}/plan-documents", h.HandleCreateDraft)
	r.Get("/participants/{participantID}/plan-documents", h.HandleListVersions)
	r.Get("/participants/{participantID}/plan-documents/current", h.HandleGetCurrent)
	r.Patch("/plan-documents/{documentID}", h.HandleUpdateDraft)
	r.Post("/plan-documents/{documentID}/publish", h.HandlePublish)
	r.Delete("/plan-documents/{documentID}", h.HandleDiscard)
}

// CreateDraftRequest opens a new draft version.
type CreateDraftRequest struct {
	Kind         string          `json:"kind"`
	Content      json.RawMessage `json:"content"`
	RevisionNote string          `json:"revision_note"`
}

func (r CreateDraftRequest) Validate() error {
	if _, err := models.ParseKind(r.Kind); err != nil {
		return err
	}
	return nil
}

// UpdateDraftRequest replaces draft content.
type UpdateDraftRequest struct {
	Content      json.RawMessage `json:"content"`
	RevisionNote string          `json:"revision_note"`
}

// HandleCreateDraft handles POST /participants/{participantID}/plan-documents.
func (h *Handler) HandleCreateDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	participantID, err := id.ParseParticipantID(chi.URLParam(r, "participantID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid participant id"))
		return
	}
	req, ok := httputil.Decode[CreateDraftRequest](w, r)
	if !ok {
		return
	}
	kind, _ := models.ParseKind(req.Kind)

	doc, err := h.service.CreateDraft(ctx, participantID, kind, req.Content, req.RevisionNote)
	if err != nil {
		h.logger.ErrorContext(ctx, "draft creation failed",
			"request_id", requestcontext.RequestID(ctx),
			"participant_id", participantID,
			"kind", kind,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, doc)
}

// HandleUpdateDraft handles PATCH /plan-documents/{documentID}.
func (h *Handler) HandleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	docID, err := id.ParsePlanDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid document id"))
		return
	}
	req, ok := httputil.Decode[UpdateDraftRequest](w, r)
	if !ok {
		return
	}
	doc, err := h.service.UpdateDraft(r.Context(), docID, req.Content, req.RevisionNote)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

// HandlePublish handles POST /plan-documents/{documentID}/publish.
func (h *Handler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docID, err := id.ParsePlanDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid document id"))
		return
	}
	doc, err := h.service.Publish(ctx, docID)
	if err != nil {
		h.logger.ErrorContext(ctx, "publish failed",
			"request_id", requestcontext.RequestID(ctx),
			"document_id", docID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

// HandleDiscard handles DELETE /plan-documents/{documentID}.
func (h *Handler) HandleDiscard(w http.ResponseWriter, r *http.Request) {
	docID, err := id.ParsePlanDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid document id"))
		return
	}
	if err := h.service.Discard(r.Context(), docID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetCurrent handles GET /participants/{participantID}/plan-documents/current?kind=.
func (h *Handler) HandleGetCurrent(w http.ResponseWriter, r *http.Request) {
	participantID, kind, ok := h.familyParams(w, r)
	if !ok {
		return
	}
	doc, err := h.service.GetCurrent(r.Context(), participantID, kind)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if doc == nil {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeNotFound, "no published %s for participant", kind))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

// HandleListVersions handles GET /participants/{participantID}/plan-documents?kind=.
func (h *Handler) HandleListVersions(w http.ResponseWriter, r *http.Request) {
	participantID, kind, ok := h.familyParams(w, r)
	if !ok {
		return
	}
	docs, err := h.service.ListVersions(r.Context(), participantID, kind)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, docs)
}

func (h *Handler) familyParams(w http.ResponseWriter, r *http.Request) (id.ParticipantID, models.DocumentKind, bool) {
	participantID, err := id.ParseParticipantID(chi.URLParam(r, "participantID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid participant id"))
		return id.ParticipantID{}, "", false
	}
	kind, err := models.ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.ParticipantID{}, "", false
	}
	return participantID, kind, true
}
