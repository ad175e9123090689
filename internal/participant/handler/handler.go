package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"carebridge/internal/gate"
	"carebridge/internal/participant/models"
	id "carebridge/pkg/domain"
	dErrors "carebridge/pkg/domain-errors"
	"carebridge/pkg/platform/httputil"
	"carebridge/pkg/requestcontext"
)

// Service defines the participant operations the handler exposes.
type Service interface {
	Create(ctx context.Context, firstName, lastName string) (*models.Participant, error)
	Get(ctx context.Context, participantID id.ParticipantID) (*models.Participant, error)
	List(ctx context.Context) ([]*models.Participant, error)
	Readiness(ctx context.Context, participantID id.ParticipantID) (*gate.Readiness, error)
	ConvertToOnboarded(ctx context.Context, participantID id.ParticipantID, details models.ConversionDetails) (*models.Participant, error)
	Activate(ctx context.Context, participantID id.ParticipantID) (*models.Participant, error)
	Deactivate(ctx context.Context, participantID id.ParticipantID) (*models.Participant, error)
}

// Handler wires participant endpoints to the participant service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts participant endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/participants", h.HandleCreate)
	r.Get("/participants", h.HandleList)
	r.Get("/participants/{participantID}", h.HandleGet)
	r.Get("/participants/{participantID}/readiness", h.HandleReadiness)
	r.Post("/participants/{participantID}/convert", h.HandleConvert)
	r.Post("/participants/{participantID}/activate", h.HandleActivate)
	r.Post("/participants/{participantID}/deactivate", h.HandleDeactivate)
}

// CreateRequest registers a prospective participant directly.
type CreateRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (r CreateRequest) Validate() error {
	if r.FirstName == "" || r.LastName == "" {
		return dErrors.New(dErrors.CodeValidation, "first_name and last_name are required")
	}
	return nil
}

// ConvertRequest carries the conversion metadata.
type ConvertRequest struct {
	Manager        string     `json:"manager"`
	Title          string     `json:"title"`
	Comments       string     `json:"comments"`
	ScheduledStart *time.Time `json:"scheduled_start"`
}

// HandleCreate handles POST /participants.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[CreateRequest](w, r)
	if !ok {
		return
	}
	p, err := h.service.Create(r.Context(), req.FirstName, req.LastName)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, p)
}

// HandleGet handles GET /participants/{participantID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	participantID, ok := h.participantParam(w, r)
	if !ok {
		return
	}
	p, err := h.service.Get(r.Context(), participantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

// HandleList handles GET /participants.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.List(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// HandleReadiness handles GET /participants/{participantID}/readiness.
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	participantID, ok := h.participantParam(w, r)
	if !ok {
		return
	}
	readiness, err := h.service.Readiness(r.Context(), participantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, readiness)
}

// HandleConvert handles POST /participants/{participantID}/convert.
func (h *Handler) HandleConvert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	participantID, ok := h.participantParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[ConvertRequest](w, r)
	if !ok {
		return
	}

	p, err := h.service.ConvertToOnboarded(ctx, participantID, models.ConversionDetails{
		Manager:        req.Manager,
		Title:          req.Title,
		Comments:       req.Comments,
		ScheduledStart: req.ScheduledStart,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "conversion failed",
			"request_id", requestcontext.RequestID(ctx),
			"participant_id", participantID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

// HandleActivate handles POST /participants/{participantID}/activate.
func (h *Handler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Activate)
}

// HandleDeactivate handles POST /participants/{participantID}/deactivate.
func (h *Handler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Deactivate)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request,
	fn func(context.Context, id.ParticipantID) (*models.Participant, error),
) {
	participantID, ok := h.participantParam(w, r)
	if !ok {
		return
	}
	p, err := fn(r.Context(), participantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) participantParam(w http.ResponseWriter, r *http.Request) (id.ParticipantID, bool) {
	participantID, err := id.ParseParticipantID(chi.URLParam(r, "participantID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid participant id"))
		return id.ParticipantID{}, false
	}
	return participantID, true
}
