// Package notify is the notification collaborator for signing requests.
// Delivery transport (email, SMS) lives outside this service; the reference
// implementation logs the signing link so operators can follow it in
// development.
package notify

import (
	"context"
	"log/slog"
	"strings"

	"carebridge/internal/envelope/models"
)

// Log writes signing requests to the structured log.
type Log struct {
	baseURL string
	logger  *slog.Logger
}

// NewLog constructs a logging notifier. baseURL is the public origin signing
// links are built against.
func NewLog(baseURL string, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{baseURL: strings.TrimRight(baseURL, "/"), logger: logger}
}

// SigningRequested logs the signing link for the envelope's signer.
func (l *Log) SigningRequested(ctx context.Context, env *models.Envelope) error {
	l.logger.InfoContext(ctx, "signing requested",
		"envelope_id", env.ID,
		"signer_email", env.Signer.Email,
		"signing_url", l.baseURL+"/sign/"+env.Token,
		"expires_at", env.ExpiresAt,
	)
	return nil
}
