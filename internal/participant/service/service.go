package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"carebridge/internal/gate"
	"carebridge/internal/lifecycle"
	"carebridge/internal/participant/models"
	"carebridge/internal/platform/metrics"
	id "carebridge/pkg/domain"
	dErrors "carebridge/pkg/domain-errors"
	"carebridge/pkg/platform/sentinel"
	"carebridge/pkg/requestcontext"
)

// Store is the persistence contract for participants. Execute's validate
// callback runs inside the store's critical section, which is what makes
// the conversion preconditions race-free.
type Store interface {
	Create(ctx context.Context, p *models.Participant) error
	FindByID(ctx context.Context, participantID id.ParticipantID) (*models.Participant, error)
	List(ctx context.Context) ([]*models.Participant, error)
	Execute(ctx context.Context, participantID id.ParticipantID, validate func(context.Context, *models.Participant) error, mutate func(*models.Participant)) (*models.Participant, error)
}

// ReviewChecker reports whether the participant's manager review is approved.
type ReviewChecker interface {
	IsApproved(ctx context.Context, participantID id.ParticipantID) (bool, error)
}

// GateEvaluator computes onboarding readiness.
type GateEvaluator interface {
	Evaluate(ctx context.Context, participantID id.ParticipantID) (*gate.Readiness, error)
}

// EventPublisher emits lifecycle events after committed transitions.
type EventPublisher interface {
	Emit(ctx context.Context, event lifecycle.Event) error
}

// Service owns the participant lifecycle, most importantly the conversion
// transaction that moves a prospective participant to onboarded.
type Service struct {
	participants Store
	reviews      ReviewChecker
	gate         GateEvaluator
	logger       *slog.Logger
	events       EventPublisher
	metrics      *metrics.Metrics
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

func New(participants Store, reviews ReviewChecker, gateEval GateEvaluator, opts ...Option) *Service {
	s := &Service{
		participants: participants,
		reviews:      reviews,
		gate:         gateEval,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a prospective participant directly, without a referral.
func (s *Service) Create(ctx context.Context, firstName, lastName string) (*models.Participant, error) {
	p, err := models.NewProspective(firstName, lastName, nil, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.participants.Create(ctx, p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create participant")
	}
	return p, nil
}

// Get returns one participant.
func (s *Service) Get(ctx context.Context, participantID id.ParticipantID) (*models.Participant, error) {
	p, err := s.participants.FindByID(ctx, participantID)
	if err != nil {
		return nil, translateParticipantErr(err, participantID)
	}
	return p, nil
}

// List returns all participants.
func (s *Service) List(ctx context.Context) ([]*models.Participant, error) {
	out, err := s.participants.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list participants")
	}
	return out, nil
}

// Readiness evaluates the onboarding gate for the participant. Pure read.
func (s *Service) Readiness(ctx context.Context, participantID id.ParticipantID) (*gate.Readiness, error) {
	if _, err := s.Get(ctx, participantID); err != nil {
		return nil, err
	}
	return s.gate.Evaluate(ctx, participantID)
}

// ConvertToOnboarded runs the conversion transaction. Preconditions, in
// order: the caller holds the service manager capability; the participant is
// still prospective; the manager review is approved; the readiness gate
// passes. Every precondition is re-checked inside the store's critical
// section, so two concurrent conversions cannot both commit and a conversion
// cannot commit against stale review or gate state.
func (s *Service) ConvertToOnboarded(ctx context.Context, participantID id.ParticipantID, details models.ConversionDetails) (*models.Participant, error) {
	actor := requestcontext.Actor(ctx)
	if !actor.IsServiceManager() {
		s.rejected("forbidden")
		return nil, dErrors.New(dErrors.CodeForbidden, "service manager capability required to onboard")
	}
	if details.Manager == "" {
		details.Manager = actor.Name
	}
	now := requestcontext.Now(ctx)

	p, err := s.participants.Execute(ctx, participantID,
		func(txCtx context.Context, current *models.Participant) error {
			if err := current.CanConvert(); err != nil {
				s.rejected("already_onboarded")
				return err
			}

			approved, err := s.reviews.IsApproved(txCtx, participantID)
			if err != nil {
				return err
			}
			if !approved {
				s.rejected("review_not_approved")
				return dErrors.New(dErrors.CodeInvalidState, "manager review must be approved before onboarding").
					WithEntity(participantID.String(), string(current.Status))
			}

			readiness, err := s.gate.Evaluate(txCtx, participantID)
			if err != nil {
				return err
			}
			if !readiness.CanOnboard {
				s.rejected("gate_blocked")
				return dErrors.Newf(dErrors.CodeInvalidState, "onboarding requirements not met: %s",
					strings.Join(readiness.BlockingIssues, "; ")).
					WithEntity(participantID.String(), string(current.Status))
			}
			return nil
		},
		func(current *models.Participant) {
			current.ApplyConversion(details, now)
		},
	)
	if err != nil {
		return nil, translateParticipantErr(err, participantID)
	}

	s.logger.InfoContext(ctx, "participant onboarded",
		"participant_id", p.ID,
		"manager", p.ConversionManager,
		"onboarded_at", p.OnboardedAt,
	)
	if s.metrics != nil {
		s.metrics.ParticipantsOnboarded.Inc()
	}
	s.emit(ctx, lifecycle.Event{
		Kind:          lifecycle.EventParticipantOnboarded,
		ParticipantID: p.ID,
		Actor:         actor.Name,
		At:            now,
		Detail:        map[string]string{"manager": p.ConversionManager},
	})
	return p, nil
}

// Activate moves an onboarded or inactive participant into service.
func (s *Service) Activate(ctx context.Context, participantID id.ParticipantID) (*models.Participant, error) {
	now := requestcontext.Now(ctx)
	p, err := s.participants.Execute(ctx, participantID,
		func(_ context.Context, current *models.Participant) error { return current.CanActivate() },
		func(current *models.Participant) { current.ApplyActivate(now) },
	)
	if err != nil {
		return nil, translateParticipantErr(err, participantID)
	}
	return p, nil
}

// Deactivate suspends an active participant.
func (s *Service) Deactivate(ctx context.Context, participantID id.ParticipantID) (*models.Participant, error) {
	now := requestcontext.Now(ctx)
	p, err := s.participants.Execute(ctx, participantID,
		func(_ context.Context, current *models.Participant) error { return current.CanDeactivate() },
		func(current *models.Participant) { current.ApplyDeactivate(now) },
	)
	if err != nil {
		return nil, translateParticipantErr(err, participantID)
	}
	return p, nil
}

func (s *Service) rejected(reason string) {
	if s.metrics != nil {
		s.metrics.ConversionsRejected.WithLabelValues(reason).Inc()
	}
}

func (s *Service) emit(ctx context.Context, event lifecycle.Event) {
	if s.events == nil {
		return
	}
	_ = s.events.Emit(ctx, event)
}

func translateParticipantErr(err error, participantID id.ParticipantID) error {
	var dErr *dErrors.Error
	if errors.As(err, &dErr) {
		return err
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Newf(dErrors.CodeNotFound, "participant %s not found", participantID)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "participant operation failed")
}
