package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi/v5"

	"carebridge/internal/envelope/models"
	id "carebridge/pkg/domain"
	dErrors "carebridge/pkg/domain-errors"
	"carebridge/pkg/platform/httputil"
	"carebridge/pkg/requestcontext"
)

// Service defines the envelope operations the authenticated surface exposes.
type Service interface {
	Create(ctx context.Context, participantID id.ParticipantID, documentIDs []id.PlanDocumentID, signer models.Signer, ttlDays int) (*models.Envelope, error)
	Resend(ctx context.Context, envelopeID id.EnvelopeID) (*models.Envelope, error)
	Cancel(ctx context.Context, envelopeID id.EnvelopeID) (*models.Envelope, error)
	Get(ctx context.Context, envelopeID id.EnvelopeID) (*models.Envelope, error)
	ListByParticipant(ctx context.Context, participantID id.ParticipantID) ([]*models.Envelope, error)
}

// Handler wires envelope endpoints to the envelope service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the authenticated envelope endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/participants/{participantID}/envelopes", h.HandleCreate)
	r.Get("/participants/{participantID}/envelopes", h.HandleList)
	r.Get("/envelopes/{envelopeID}", h.HandleGet)
	r.Post("/envelopes/{envelopeID}/resend", h.HandleResend)
	r.Post("/envelopes/{envelopeID}/cancel", h.HandleCancel)
}

// CreateRequest opens and sends an envelope.
type CreateRequest struct {
	DocumentIDs []string `json:"document_ids"`
	Signer      struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"signer"`
	TTLDays int `json:"ttl_days"`
}

func (r CreateRequest) Validate() error {
	if len(r.DocumentIDs) == 0 {
		return dErrors.New(dErrors.CodeValidation, "document_ids must not be empty")
	}
	if r.Signer.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "signer.name is required")
	}
	if !govalidator.IsEmail(r.Signer.Email) {
		return dErrors.New(dErrors.CodeValidation, "signer.email is not a valid address")
	}
	if r.TTLDays < 0 {
		return dErrors.New(dErrors.CodeValidation, "ttl_days must not be negative")
	}
	return nil
}

// SentResponse is returned by create and resend; it is the only place the
// signing token crosses the authenticated surface.
type SentResponse struct {
	Envelope     *models.Envelope `json:"envelope"`
	SigningToken string           `json:"signing_token"`
}

// HandleCreate handles POST /participants/{participantID}/envelopes.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	participantID, err := id.ParseParticipantID(chi.URLParam(r, "participantID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid participant id"))
		return
	}
	req, ok := httputil.Decode[CreateRequest](w, r)
	if !ok {
		return
	}

	documentIDs := make([]id.PlanDocumentID, 0, len(req.DocumentIDs))
	for _, raw := range req.DocumentIDs {
		docID, err := id.ParsePlanDocumentID(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.Newf(dErrors.CodeValidation, "invalid document id %q", raw))
			return
		}
		documentIDs = append(documentIDs, docID)
	}

	env, err := h.service.Create(ctx, participantID, documentIDs, models.Signer{
		Name:  req.Signer.Name,
		Email: req.Signer.Email,
		Role:  req.Signer.Role,
	}, req.TTLDays)
	if err != nil {
		h.logger.ErrorContext(ctx, "envelope creation failed",
			"request_id", requestcontext.RequestID(ctx),
			"participant_id", participantID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, SentResponse{Envelope: env, SigningToken: env.Token})
}

// HandleList handles GET /participants/{participantID}/envelopes.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	participantID, err := id.ParseParticipantID(chi.URLParam(r, "participantID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid participant id"))
		return
	}
	envelopes, err := h.service.ListByParticipant(r.Context(), participantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, envelopes)
}

// HandleGet handles GET /envelopes/{envelopeID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	envelopeID, ok := h.envelopeParam(w, r)
	if !ok {
		return
	}
	env, err := h.service.Get(r.Context(), envelopeID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, env)
}

// HandleResend handles POST /envelopes/{envelopeID}/resend.
func (h *Handler) HandleResend(w http.ResponseWriter, r *http.Request) {
	envelopeID, ok := h.envelopeParam(w, r)
	if !ok {
		return
	}
	env, err := h.service.Resend(r.Context(), envelopeID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, SentResponse{Envelope: env, SigningToken: env.Token})
}

// HandleCancel handles POST /envelopes/{envelopeID}/cancel.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	envelopeID, ok := h.envelopeParam(w, r)
	if !ok {
		return
	}
	env, err := h.service.Cancel(r.Context(), envelopeID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, env)
}

func (h *Handler) envelopeParam(w http.ResponseWriter, r *http.Request) (id.EnvelopeID, bool) {
	envelopeID, err := id.ParseEnvelopeID(chi.URLParam(r, "envelopeID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid envelope id"))
		return id.EnvelopeID{}, false
	}
	return envelopeID, true
}
