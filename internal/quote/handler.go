package quote

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	id "carebridge/pkg/domain"
	dErrors "carebridge/pkg/domain-errors"
	"carebridge/pkg/platform/httputil"
	"carebridge/pkg/requestcontext"
)

// Handler exposes quotation reads and the seed operation used until the
// external quoting system is connected.
type Handler struct {
	quotes *Memory
	logger *slog.Logger
}

func NewHandler(quotes *Memory, logger *slog.Logger) *Handler {
	return &Handler{quotes: quotes, logger: logger}
}

// Register mounts quotation endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/participants/{participantID}/quotations", h.HandleSet)
	r.Get("/participants/{participantID}/quotations/latest", h.HandleLatest)
}

// SetRequest records a quotation.
type SetRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

func (r SetRequest) Validate() error {
	if r.AmountCents <= 0 {
		return dErrors.New(dErrors.CodeValidation, "amount_cents must be positive")
	}
	return nil
}

// HandleSet handles POST /participants/{participantID}/quotations.
func (h *Handler) HandleSet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	participantID, err := id.ParseParticipantID(chi.URLParam(r, "participantID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid participant id"))
		return
	}
	req, ok := httputil.Decode[SetRequest](w, r)
	if !ok {
		return
	}

	currency := req.Currency
	if currency == "" {
		currency = "AUD"
	}
	q := &Quotation{
		ID:            uuid.New(),
		ParticipantID: participantID,
		AmountCents:   req.AmountCents,
		Currency:      currency,
		CreatedAt:     requestcontext.Now(ctx),
	}
	h.quotes.Set(ctx, q)
	httputil.WriteJSON(w, http.StatusCreated, q)
}

// HandleLatest handles GET /participants/{participantID}/quotations/latest.
func (h *Handler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	participantID, err := id.ParseParticipantID(chi.URLParam(r, "participantID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid participant id"))
		return
	}
	q, err := h.quotes.Latest(r.Context(), participantID)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load quotation"))
		return
	}
	if q == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no quotation for participant"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, q)
}
