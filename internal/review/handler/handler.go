package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"carebridge/internal/review/models"
	id "carebridge/pkg/domain"
	dErrors "carebridge/pkg/domain-errors"
	"carebridge/pkg/platform/httputil"
	"carebridge/pkg/requestcontext"
)

// Service defines the review operations the handler exposes.
type Service interface {
	Open(ctx context.Context, participantID id.ParticipantID) (*models.ManagerReview, error)
	Approve(ctx context.Context, participantID id.ParticipantID, comments string) (*models.ManagerReview, error)
	Reject(ctx context.Context, participantID id.ParticipantID, comments string) (*models.ManagerReview, error)
	GetActive(ctx context.Context, participantID id.ParticipantID) (*models.ManagerReview, error)
}

// Handler wires manager review endpoints to the review service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts review endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/participants/{participantID}/review", h.HandleOpen)
	r.Get("/participants/{participantID}/review", h.HandleGetActive)
	r.Post("/participants/{participantID}/review/approve", h.HandleApprove)
	r.Post("/participants/{participantID}/review/reject", h.HandleReject)
}

// DecisionRequest carries the reviewer's comments.
type DecisionRequest struct {
	Comments string `json:"comments"`
}

// HandleOpen handles POST /participants/{participantID}/review.
func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	participantID, ok := h.participantParam(w, r)
	if !ok {
		return
	}
	review, err := h.service.Open(r.Context(), participantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, review)
}

// HandleGetActive handles GET /participants/{participantID}/review.
func (h *Handler) HandleGetActive(w http.ResponseWriter, r *http.Request) {
	participantID, ok := h.participantParam(w, r)
	if !ok {
		return
	}
	review, err := h.service.GetActive(r.Context(), participantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if review == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no active review for participant"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, review)
}

// HandleApprove handles POST /participants/{participantID}/review/approve.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Approve)
}

// HandleReject handles POST /participants/{participantID}/review/reject.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Reject)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request,
	fn func(context.Context, id.ParticipantID, string) (*models.ManagerReview, error),
) {
	ctx := r.Context()
	participantID, ok := h.participantParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[DecisionRequest](w, r)
	if !ok {
		return
	}

	review, err := fn(ctx, participantID, req.Comments)
	if err != nil {
		h.logger.ErrorContext(ctx, "review decision failed",
			"request_id", requestcontext.RequestID(ctx),
			"participant_id", participantID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, review)
}

func (h *Handler) participantParam(w http.ResponseWriter, r *http.Request) (id.ParticipantID, bool) {
	participantID, err := id.ParseParticipantID(chi.URLParam(r, "participantID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid participant id"))
		return id.ParticipantID{}, false
	}
	return participantID, true
}
