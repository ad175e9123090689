package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi/v5"

	participantmodels "carebridge/internal/participant/models"
	"carebridge/internal/referral/models"
	id "carebridge/pkg/domain"
	dErrors "carebridge/pkg/domain-errors"
	"carebridge/pkg/platform/httputil"
	"carebridge/pkg/requestcontext"
)

// Service defines the referral operations the handler exposes.
type Service interface {
	Submit(ctx context.Context, firstName, lastName, email, phone, notes string) (*models.Referral, error)
	Get(ctx context.Context, referralID id.ReferralID) (*models.Referral, error)
	List(ctx context.Context) ([]*models.Referral, error)
	Accept(ctx context.Context, referralID id.ReferralID) (*models.Referral, *participantmodels.Participant, error)
}

// Handler wires referral endpoints to the referral service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts referral endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/referrals", h.HandleSubmit)
	r.Get("/referrals", h.HandleList)
	r.Get("/referrals/{referralID}", h.HandleGet)
	r.Post("/referrals/{referralID}/accept", h.HandleAccept)
}

// SubmitRequest is the intake payload.
type SubmitRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Notes     string `json:"notes"`
}

func (r SubmitRequest) Validate() error {
	if r.FirstName == "" || r.LastName == "" {
		return dErrors.New(dErrors.CodeValidation, "first_name and last_name are required")
	}
	if r.Email != "" && !govalidator.IsEmail(r.Email) {
		return dErrors.New(dErrors.CodeValidation, "email is not a valid address")
	}
	return nil
}

// AcceptResponse returns both sides of the conversion.
type AcceptResponse struct {
	Referral    *models.Referral            `json:"referral"`
	Participant *participantmodels.Participant `json:"participant"`
}

// HandleSubmit handles POST /referrals.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[SubmitRequest](w, r)
	if !ok {
		return
	}
	referral, err := h.service.Submit(ctx, req.FirstName, req.LastName, req.Email, req.Phone, req.Notes)
	if err != nil {
		h.logger.ErrorContext(ctx, "referral submit failed",
			"request_id", requestcontext.RequestID(ctx), "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, referral)
}

// HandleGet handles GET /referrals/{referralID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	referralID, err := id.ParseReferralID(chi.URLParam(r, "referralID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid referral id"))
		return
	}
	referral, err := h.service.Get(r.Context(), referralID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, referral)
}

// HandleList handles GET /referrals.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	referrals, err := h.service.List(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, referrals)
}

// HandleAccept handles POST /referrals/{referralID}/accept.
func (h *Handler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	referralID, err := id.ParseReferralID(chi.URLParam(r, "referralID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid referral id"))
		return
	}

	referral, participant, err := h.service.Accept(ctx, referralID)
	if err != nil {
		h.logger.ErrorContext(ctx, "referral accept failed",
			"request_id", requestcontext.RequestID(ctx),
			"referral_id", referralID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, AcceptResponse{Referral: referral, Participant: participant})
}
