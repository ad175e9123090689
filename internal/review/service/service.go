package service

import (
	"context"
	"errors"
	"log/slog"

	"carebridge/internal/lifecycle"
	"carebridge/internal/platform/metrics"
	"carebridge/internal/review/models"
	id "carebridge/pkg/domain"
	dErrors "carebridge/pkg/domain-errors"
	"carebridge/pkg/platform/sentinel"
	"carebridge/pkg/requestcontext"
)

// Store is the persistence contract for manager reviews.
type Store interface {
	Create(ctx context.Context, review *models.ManagerReview) error
	FindActive(ctx context.Context, participantID id.ParticipantID) (*models.ManagerReview, error)
	Execute(ctx context.Context, participantID id.ParticipantID, validate func(*models.ManagerReview) error, mutate func(*models.ManagerReview)) (*models.ManagerReview, error)
}

// EventPublisher emits lifecycle events after committed transitions.
type EventPublisher interface {
	Emit(ctx context.Context, event lifecycle.Event) error
}

// Service runs the manager approval sub-state-machine:
// pending → approved | rejected, with rejected cycles superseded by a new
// pending review.
type Service struct {
	reviews Store
	logger  *slog.Logger
	events  EventPublisher
	metrics *metrics.Metrics
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

func New(reviews Store, opts ...Option) *Service {
	s := &Service{reviews: reviews, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open starts a review cycle for the participant. Conflicts if a pending or
// approved review already exists.
func (s *Service) Open(ctx context.Context, participantID id.ParticipantID) (*models.ManagerReview, error) {
	review := models.NewPending(participantID, requestcontext.Now(ctx))
	if err := s.reviews.Create(ctx, review); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "an active review already exists for this participant")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to open review")
	}
	return review, nil
}

// Approve records a ServiceManager approval. Re-approving an approved review
// is a no-op returning the existing record.
func (s *Service) Approve(ctx context.Context, participantID id.ParticipantID, comments string) (*models.ManagerReview, error) {
	return s.decide(ctx, participantID, models.StatusApproved, comments)
}

// Reject records a ServiceManager rejection, closing the cycle. A new
// pending review can be opened afterwards.
func (s *Service) Reject(ctx context.Context, participantID id.ParticipantID, comments string) (*models.ManagerReview, error) {
	return s.decide(ctx, participantID, models.StatusRejected, comments)
}

func (s *Service) decide(ctx context.Context, participantID id.ParticipantID, outcome models.Status, comments string) (*models.ManagerReview, error) {
	actor := requestcontext.Actor(ctx)
	if !actor.IsServiceManager() {
		return nil, dErrors.New(dErrors.CodeForbidden, "service manager capability required")
	}
	now := requestcontext.Now(ctx)

	var idempotent bool
	review, err := s.reviews.Execute(ctx, participantID,
		func(r *models.ManagerReview) error {
			if r.Status == outcome {
				// Same decision twice is a no-op, not an error.
				idempotent = true
				return nil
			}
			return r.CanDecide()
		},
		func(r *models.ManagerReview) {
			if idempotent {
				return
			}
			r.ApplyDecision(outcome, actor.Name, comments, now)
		},
	)
	if err != nil {
		return nil, translateReviewErr(err, participantID)
	}
	if idempotent {
		return review, nil
	}

	s.logger.InfoContext(ctx, "manager review decided",
		"participant_id", participantID,
		"review_id", review.ID,
		"outcome", review.Status,
		"reviewer", review.Reviewer,
	)
	if s.metrics != nil {
		s.metrics.ReviewsDecided.WithLabelValues(string(review.Status)).Inc()
	}
	eventKind := lifecycle.EventReviewApproved
	if outcome == models.StatusRejected {
		eventKind = lifecycle.EventReviewRejected
	}
	if s.events != nil {
		_ = s.events.Emit(ctx, lifecycle.Event{
			Kind:          eventKind,
			ParticipantID: participantID,
			Actor:         actor.Name,
			At:            now,
		})
	}
	return review, nil
}

// GetActive returns the participant's current review cycle, or nil when no
// cycle is open.
func (s *Service) GetActive(ctx context.Context, participantID id.ParticipantID) (*models.ManagerReview, error) {
	review, err := s.reviews.FindActive(ctx, participantID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load review")
	}
	return review, nil
}

// IsApproved reports whether the participant's active review is approved.
// Used by the conversion transaction's precondition re-check.
func (s *Service) IsApproved(ctx context.Context, participantID id.ParticipantID) (bool, error) {
	review, err := s.GetActive(ctx, participantID)
	if err != nil {
		return false, err
	}
	return review != nil && review.IsApproved(), nil
}

func translateReviewErr(err error, participantID id.ParticipantID) error {
	switch {
	case dErrors.HasCode(err, dErrors.CodeInvalidState):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Newf(dErrors.CodeNotFound, "no active review for participant %s", participantID)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "review operation failed")
	}
}
