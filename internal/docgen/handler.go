package docgen

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	id "carebridge/pkg/domain"
	dErrors "carebridge/pkg/domain-errors"
	"carebridge/pkg/platform/httputil"
)

// Handler exposes document generation on the authenticated surface.
type Handler struct {
	generator Generator
	logger    *slog.Logger
}

func NewHandler(generator Generator, logger *slog.Logger) *Handler {
	return &Handler{generator: generator, logger: logger}
}

// Register mounts generation endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/participants/{participantID}/documents/generate", h.HandleGenerate)
}

// GenerateRequest names the templates to render.
type GenerateRequest struct {
	TemplateIDs []string `json:"template_ids"`
}

func (r GenerateRequest) Validate() error {
	if len(r.TemplateIDs) == 0 {
		return dErrors.New(dErrors.CodeValidation, "template_ids must not be empty")
	}
	return nil
}

// HandleGenerate handles POST /participants/{participantID}/documents/generate.
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	participantID, err := id.ParseParticipantID(chi.URLParam(r, "participantID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid participant id"))
		return
	}
	req, ok := httputil.Decode[GenerateRequest](w, r)
	if !ok {
		return
	}

	artifacts, err := h.generator.BulkGenerate(ctx, req.TemplateIDs, participantID)
	if err != nil {
		h.logger.ErrorContext(ctx, "document generation failed",
			"participant_id", participantID, "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "document generation failed"))
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, artifacts)
}
