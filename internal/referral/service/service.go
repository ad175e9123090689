package service

import (
	"context"
	"errors"
	"log/slog"

	"carebridge/internal/lifecycle"
	participantmodels "carebridge/internal/participant/models"
	"carebridge/internal/platform/metrics"
	"carebridge/internal/referral/models"
	id "carebridge/pkg/domain"
	dErrors "carebridge/pkg/domain-errors"
	"carebridge/pkg/platform/sentinel"
	"carebridge/pkg/requestcontext"
)

// Store is the persistence contract for referrals. Accept is transactional:
// the participant insert and the referral update commit together or not at
// all.
type Store interface {
	Create(ctx context.Context, r *models.Referral) error
	FindByID(ctx context.Context, referralID id.ReferralID) (*models.Referral, error)
	List(ctx context.Context) ([]*models.Referral, error)
	Accept(ctx context.Context, referralID id.ReferralID, build func(*models.Referral) (*participantmodels.Participant, error)) (*models.Referral, *participantmodels.Participant, error)
}

// EventPublisher emits lifecycle events after committed transitions.
type EventPublisher interface {
	Emit(ctx context.Context, event lifecycle.Event) error
}

// Service handles referral intake and conversion into prospective
// participants.
type Service struct {
	referrals Store
	logger    *slog.Logger
	events    EventPublisher
	metrics   *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithEventPublisher(events EventPublisher) Option {
	return func(s *Service) { s.events = events }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(referrals Store, opts ...Option) *Service {
	s := &Service{referrals: referrals, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit records an inbound referral.
func (s *Service) Submit(ctx context.Context, firstName, lastName, email, phone, notes string) (*models.Referral, error) {
	r, err := models.New(firstName, lastName, email, phone, notes, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.referrals.Create(ctx, r); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to submit referral")
	}
	s.logger.InfoContext(ctx, "referral submitted", "referral_id", r.ID)
	return r, nil
}

// Get returns one referral.
func (s *Service) Get(ctx context.Context, referralID id.ReferralID) (*models.Referral, error) {
	r, err := s.referrals.FindByID(ctx, referralID)
	if err != nil {
		return nil, translateReferralErr(err, referralID)
	}
	return r, nil
}

// List returns all referrals.
func (s *Service) List(ctx context.Context) ([]*models.Referral, error) {
	out, err := s.referrals.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list referrals")
	}
	return out, nil
}

// Accept consumes the referral and creates the prospective participant. The
// referral can be accepted exactly once; a second accept fails with an
// invalid state error.
func (s *Service) Accept(ctx context.Context, referralID id.ReferralID) (*models.Referral, *participantmodels.Participant, error) {
	if !requestcontext.Actor(ctx).IsServiceManager() {
		return nil, nil, dErrors.New(dErrors.CodeForbidden, "service manager capability required to accept referrals")
	}
	now := requestcontext.Now(ctx)

	r, p, err := s.referrals.Accept(ctx, referralID, func(current *models.Referral) (*participantmodels.Participant, error) {
		if err := current.CanAccept(); err != nil {
			return nil, err
		}
		refID := current.ID
		return participantmodels.NewProspective(current.FirstName, current.LastName, &refID, now)
	})
	if err != nil {
		return nil, nil, translateReferralErr(err, referralID)
	}

	s.logger.InfoContext(ctx, "referral accepted",
		"referral_id", r.ID,
		"participant_id", p.ID,
	)
	if s.metrics != nil {
		s.metrics.ReferralsAccepted.Inc()
	}
	if s.events != nil {
		_ = s.events.Emit(ctx, lifecycle.Event{
			Kind:          lifecycle.EventReferralAccepted,
			ParticipantID: p.ID,
			Actor:         requestcontext.Actor(ctx).Name,
			At:            now,
			Detail:        map[string]string{"referral_id": r.ID.String()},
		})
	}
	return r, p, nil
}

func translateReferralErr(err error, referralID id.ReferralID) error {
	var dErr *dErrors.Error
	if errors.As(err, &dErr) {
		return err
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Newf(dErrors.CodeNotFound, "referral %s not found", referralID)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "referral operation failed")
}
