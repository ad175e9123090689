package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"carebridge/internal/envelope/models"
	dErrors "carebridge/pkg/domain-errors"
	"carebridge/pkg/platform/httputil"
)

// PublicService is the token-gated slice of the envelope service.
type PublicService interface {
	PublicGet(ctx context.Context, token string) (*models.Envelope, error)
	Accept(ctx context.Context, token, typedName string) (*models.Envelope, error)
}

// Public serves the unauthenticated signing surface. Authorization is the
// token itself; no session or JWT is involved.
type Public struct {
	service PublicService
	logger  *slog.Logger
}

func NewPublic(service PublicService, logger *slog.Logger) *Public {
	return &Public{service: service, logger: logger}
}

// Register mounts the signing endpoints on the router.
func (h *Public) Register(r chi.Router) {
	r.Get("/sign/{token}", h.HandleGet)
	r.Post("/sign/{token}/accept", h.HandleAccept)
}

// AcceptRequest carries the signature evidence.
type AcceptRequest struct {
	TypedName string `json:"typed_name"`
}

func (r AcceptRequest) Validate() error {
	if r.TypedName == "" {
		return dErrors.New(dErrors.CodeValidation, "typed_name is required")
	}
	return nil
}

// HandleGet handles GET /sign/{token}. The read applies lazy expiry and the
// first open moves a sent envelope to viewed.
func (h *Public) HandleGet(w http.ResponseWriter, r *http.Request) {
	env, err := h.service.PublicGet(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, env)
}

// HandleAccept handles POST /sign/{token}/accept.
func (h *Public) HandleAccept(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[AcceptRequest](w, r)
	if !ok {
		return
	}

	env, err := h.service.Accept(ctx, chi.URLParam(r, "token"), req.TypedName)
	if err != nil {
		h.logger.WarnContext(ctx, "signature accept failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, env)
}
