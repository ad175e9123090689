package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"carebridge/internal/envelope/models"
	"carebridge/internal/idgen"
	"carebridge/internal/lifecycle"
	"carebridge/internal/platform/metrics"
	id "carebridge/pkg/domain"
	dErrors "carebridge/pkg/domain-errors"
	"carebridge/pkg/platform/sentinel"
	"carebridge/pkg/requestcontext"
)

// DefaultTTLDays is the signing window applied when the caller does not
// choose one.
const DefaultTTLDays = 14

// Store is the persistence contract for signature envelopes.
type Store interface {
	Create(ctx context.Context, env *models.Envelope) error
	FindByID(ctx context.Context, envelopeID id.EnvelopeID) (*models.Envelope, error)
	FindByToken(ctx context.Context, token string) (*models.Envelope, error)
	ListByParticipant(ctx context.Context, participantID id.ParticipantID) ([]*models.Envelope, error)
	Execute(ctx context.Context, envelopeID id.EnvelopeID, validate func(*models.Envelope) error, mutate func(*models.Envelope)) (*models.Envelope, error)
	ExpireIfLapsed(ctx context.Context, envelopeID id.EnvelopeID, now time.Time) (*models.Envelope, bool, error)
}

// TokenIndex is an optional cache in front of the store's token lookup.
type TokenIndex interface {
	Put(ctx context.Context, token string, envelopeID id.EnvelopeID, expiresAt time.Time) error
	Lookup(ctx context.Context, token string) (id.EnvelopeID, bool, error)
	Invalidate(ctx context.Context, token string) error
}

// Notifier delivers signing requests to the signer. Fire-and-forget: a
// delivery failure never affects the envelope's committed state.
type Notifier interface {
	SigningRequested(ctx context.Context, env *models.Envelope) error
}

// EventPublisher emits lifecycle events after committed transitions.
type EventPublisher interface {
	Emit(ctx context.Context, event lifecycle.Event) error
}

// Service runs the envelope state machine. Expiry is lazy: nothing sweeps
// deadlines in the background; the expired transition applies on the next
// read or write that observes a lapsed envelope, guarded so it commits at
// most once.
type Service struct {
	envelopes  Store
	index      TokenIndex
	notifier   Notifier
	logger     *slog.Logger
	events     EventPublisher
	metrics    *metrics.Metrics
	defaultTTL int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithTokenIndex(index TokenIndex) Option {
	return func(s *Service) { s.index = index }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithEventPublisher(events EventPublisher) Option {
	return func(s *Service) { s.events = events }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithDefaultTTLDays overrides the signing window used when the caller does
// not choose one.
func WithDefaultTTLDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.defaultTTL = days
		}
	}
}

func New(envelopes Store, opts ...Option) *Service {
	s := &Service{envelopes: envelopes, logger: slog.Default(), defaultTTL: DefaultTTLDays}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens an envelope and immediately sends it: the document snapshot
// is frozen, a signing token is issued, and the signer is notified.
func (s *Service) Create(ctx context.Context, participantID id.ParticipantID, documentIDs []id.PlanDocumentID, signer models.Signer, ttlDays int) (*models.Envelope, error) {
	if ttlDays <= 0 {
		ttlDays = s.defaultTTL
	}
	now := requestcontext.Now(ctx)

	env, err := models.New(participantID, documentIDs, signer, now)
	if err != nil {
		return nil, err
	}
	token, err := idgen.SigningToken()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate signing token")
	}
	env.ApplySend(token, now.AddDate(0, 0, ttlDays), now)

	if err := s.envelopes.Create(ctx, env); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create envelope")
	}
	s.indexPut(ctx, env)
	s.notify(ctx, env)

	s.logger.InfoContext(ctx, "envelope sent",
		"envelope_id", env.ID,
		"participant_id", env.ParticipantID,
		"signer_email", env.Signer.Email,
		"expires_at", env.ExpiresAt,
	)
	if s.metrics != nil {
		s.metrics.EnvelopesCreated.Inc()
	}
	s.emit(ctx, lifecycle.Event{
		Kind:          lifecycle.EventEnvelopeSent,
		ParticipantID: env.ParticipantID,
		EnvelopeID:    env.ID,
		Actor:         requestcontext.Actor(ctx).Name,
		At:            now,
	})
	return env, nil
}

// Resend rotates the signing token and extends the deadline. The previous
// token stops resolving. Terminal envelopes cannot be resent.
func (s *Service) Resend(ctx context.Context, envelopeID id.EnvelopeID) (*models.Envelope, error) {
	now := requestcontext.Now(ctx)
	if _, err := s.applyLazyExpiry(ctx, envelopeID, now); err != nil {
		return nil, err
	}

	token, err := idgen.SigningToken()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate signing token")
	}

	var oldToken string
	env, err := s.envelopes.Execute(ctx, envelopeID,
		func(e *models.Envelope) error {
			oldToken = e.Token
			return e.CanResend()
		},
		func(e *models.Envelope) {
			e.ApplyResend(token, now.AddDate(0, 0, s.defaultTTL), now)
		},
	)
	if err != nil {
		return nil, translateEnvelopeErr(err, envelopeID)
	}
	s.indexInvalidate(ctx, oldToken)
	s.indexPut(ctx, env)
	s.notify(ctx, env)

	s.logger.InfoContext(ctx, "envelope resent", "envelope_id", env.ID, "expires_at", env.ExpiresAt)
	s.emit(ctx, lifecycle.Event{
		Kind:          lifecycle.EventEnvelopeSent,
		ParticipantID: env.ParticipantID,
		EnvelopeID:    env.ID,
		Actor:         requestcontext.Actor(ctx).Name,
		At:            now,
		Detail:        map[string]string{"resend": "true"},
	})
	return env, nil
}

// Cancel moves a non-terminal envelope to cancelled. Cancelling an
// already-cancelled envelope is a no-op.
func (s *Service) Cancel(ctx context.Context, envelopeID id.EnvelopeID) (*models.Envelope, error) {
	now := requestcontext.Now(ctx)

	var (
		idempotent bool
		oldToken   string
	)
	env, err := s.envelopes.Execute(ctx, envelopeID,
		func(e *models.Envelope) error {
			if e.Status == models.StatusCancelled {
				idempotent = true
				return nil
			}
			oldToken = e.Token
			return e.CanCancel()
		},
		func(e *models.Envelope) {
			if idempotent {
				return
			}
			e.ApplyCancel(now)
		},
	)
	if err != nil {
		return nil, translateEnvelopeErr(err, envelopeID)
	}
	if idempotent {
		return env, nil
	}
	s.indexInvalidate(ctx, oldToken)

	s.logger.InfoContext(ctx, "envelope cancelled", "envelope_id", env.ID)
	s.emit(ctx, lifecycle.Event{
		Kind:          lifecycle.EventEnvelopeCancelled,
		ParticipantID: env.ParticipantID,
		EnvelopeID:    env.ID,
		Actor:         requestcontext.Actor(ctx).Name,
		At:            now,
	})
	return env, nil
}

// Get returns one envelope by id.
func (s *Service) Get(ctx context.Context, envelopeID id.EnvelopeID) (*models.Envelope, error) {
	env, err := s.envelopes.FindByID(ctx, envelopeID)
	if err != nil {
		return nil, translateEnvelopeErr(err, envelopeID)
	}
	return env, nil
}

// ListByParticipant returns the participant's envelopes.
func (s *Service) ListByParticipant(ctx context.Context, participantID id.ParticipantID) ([]*models.Envelope, error) {
	out, err := s.envelopes.ListByParticipant(ctx, participantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list envelopes")
	}
	return out, nil
}

// PublicGet resolves a signing token for the unauthenticated surface. A
// lapsed envelope is expired as part of this read; an awaiting envelope is
// marked viewed on first open. Rotated or unknown tokens fail NotFound.
func (s *Service) PublicGet(ctx context.Context, token string) (*models.Envelope, error) {
	env, err := s.resolveToken(ctx, token)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	env, err = s.applyLazyExpiry(ctx, env.ID, now)
	if err != nil {
		return nil, err
	}
	if env.Status != models.StatusSent {
		return env, nil
	}

	viewed, err := s.envelopes.Execute(ctx, env.ID,
		func(e *models.Envelope) error { return e.CanView() },
		func(e *models.Envelope) { e.ApplyView(now) },
	)
	if err != nil {
		// Lost a race with a concurrent transition; the resolved state is
		// still a valid answer for the signer.
		if dErrors.HasCode(err, dErrors.CodeInvalidState) {
			return env, nil
		}
		return nil, translateEnvelopeErr(err, env.ID)
	}
	s.emit(ctx, lifecycle.Event{
		Kind:          lifecycle.EventEnvelopeViewed,
		ParticipantID: viewed.ParticipantID,
		EnvelopeID:    viewed.ID,
		At:            now,
	})
	return viewed, nil
}

// Accept records the signature. Fails Conflict when the envelope was already
// signed or cancelled, and Expired when the signing window has closed; the
// document snapshot from the first successful signature is never altered.
func (s *Service) Accept(ctx context.Context, token, typedName string) (*models.Envelope, error) {
	if typedName == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "typed name is required")
	}
	env, err := s.resolveToken(ctx, token)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	env, err = s.applyLazyExpiry(ctx, env.ID, now)
	if err != nil {
		return nil, err
	}

	signed, err := s.envelopes.Execute(ctx, env.ID,
		func(e *models.Envelope) error { return e.CanAccept() },
		func(e *models.Envelope) { e.ApplySign(typedName, now) },
	)
	if err != nil {
		return nil, translateEnvelopeErr(err, env.ID)
	}
	s.indexInvalidate(ctx, token)

	s.logger.InfoContext(ctx, "envelope signed",
		"envelope_id", signed.ID,
		"participant_id", signed.ParticipantID,
	)
	if s.metrics != nil {
		s.metrics.EnvelopesSigned.Inc()
	}
	s.emit(ctx, lifecycle.Event{
		Kind:          lifecycle.EventEnvelopeSigned,
		ParticipantID: signed.ParticipantID,
		EnvelopeID:    signed.ID,
		Actor:         typedName,
		At:            now,
	})
	return signed, nil
}

// resolveToken maps a token to its envelope, consulting the index first and
// verifying the hit against the store so a stale cache entry can never
// resurrect a rotated token.
func (s *Service) resolveToken(ctx context.Context, token string) (*models.Envelope, error) {
	if token == "" {
		return nil, dErrors.New(dErrors.CodeNotFound, "unknown signing token")
	}

	if s.index != nil {
		envelopeID, ok, err := s.index.Lookup(ctx, token)
		if err != nil {
			s.logger.WarnContext(ctx, "token index lookup failed", "error", err)
		} else if ok {
			env, err := s.envelopes.FindByID(ctx, envelopeID)
			if err == nil && env.Token == token {
				return env, nil
			}
		}
	}

	env, err := s.envelopes.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "unknown signing token")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve signing token")
	}
	return env, nil
}

// applyLazyExpiry expires a lapsed envelope in place. The store's guarded
// update means the transition, and its event, happen at most once no matter
// how many callers race on the same envelope.
func (s *Service) applyLazyExpiry(ctx context.Context, envelopeID id.EnvelopeID, now time.Time) (*models.Envelope, error) {
	env, applied, err := s.envelopes.ExpireIfLapsed(ctx, envelopeID, now)
	if err != nil {
		return nil, translateEnvelopeErr(err, envelopeID)
	}
	if !applied {
		return env, nil
	}

	s.indexInvalidate(ctx, env.Token)
	s.logger.InfoContext(ctx, "envelope expired", "envelope_id", env.ID, "expired_at", env.ExpiresAt)
	if s.metrics != nil {
		s.metrics.EnvelopesExpired.Inc()
	}
	s.emit(ctx, lifecycle.Event{
		Kind:          lifecycle.EventEnvelopeExpired,
		ParticipantID: env.ParticipantID,
		EnvelopeID:    env.ID,
		At:            now,
	})
	return env, nil
}

func (s *Service) indexPut(ctx context.Context, env *models.Envelope) {
	if s.index == nil {
		return
	}
	if err := s.index.Put(ctx, env.Token, env.ID, env.ExpiresAt); err != nil {
		s.logger.WarnContext(ctx, "token index put failed", "envelope_id", env.ID, "error", err)
	}
}

func (s *Service) indexInvalidate(ctx context.Context, token string) {
	if s.index == nil || token == "" {
		return
	}
	if err := s.index.Invalidate(ctx, token); err != nil {
		s.logger.WarnContext(ctx, "token index invalidate failed", "error", err)
	}
}

func (s *Service) notify(ctx context.Context, env *models.Envelope) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SigningRequested(ctx, env); err != nil {
		s.logger.WarnContext(ctx, "signing notification failed",
			"envelope_id", env.ID, "signer_email", env.Signer.Email, "error", err)
	}
}

func (s *Service) emit(ctx context.Context, event lifecycle.Event) {
	if s.events == nil {
		return
	}
	_ = s.events.Emit(ctx, event)
}

func translateEnvelopeErr(err error, envelopeID id.EnvelopeID) error {
	var dErr *dErrors.Error
	if errors.As(err, &dErr) {
		return err
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Newf(dErrors.CodeNotFound, "envelope %s not found", envelopeID)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "envelope operation failed")
}
