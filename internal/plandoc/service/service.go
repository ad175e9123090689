package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"carebridge/internal/lifecycle"
	"carebridge/internal/plandoc/models"
	"carebridge/internal/platform/metrics"
	id "carebridge/pkg/domain"
	dErrors "carebridge/pkg/domain-errors"
	"carebridge/pkg/platform/sentinel"
	"carebridge/pkg/requestcontext"
)

// Store is the persistence contract for plan document versions. Both the
// memory and postgres implementations keep the family invariants inside
// their own critical sections.
type Store interface {
	CreateDraft(ctx context.Context, doc *models.PlanDocument) error
	FindByID(ctx context.Context, docID id.PlanDocumentID) (*models.PlanDocument, error)
	Execute(ctx context.Context, docID id.PlanDocumentID, validate func(*models.PlanDocument) error, mutate func(*models.PlanDocument)) (*models.PlanDocument, error)
	Publish(ctx context.Context, docID id.PlanDocumentID, approver string, now time.Time) (*models.PlanDocument, error)
	DeleteDraft(ctx context.Context, docID id.PlanDocumentID) error
	GetCurrent(ctx context.Context, participantID id.ParticipantID, kind models.DocumentKind) (*models.PlanDocument, error)
	HasAny(ctx context.Context, participantID id.ParticipantID, kind models.DocumentKind) (bool, error)
	ListVersions(ctx context.Context, participantID id.ParticipantID, kind models.DocumentKind) ([]*models.PlanDocument, error)
}

// EventPublisher emits lifecycle events after committed transitions.
type EventPublisher interface {
	Emit(ctx context.Context, event lifecycle.Event) error
}

// Service orchestrates the draft/publish/archive lifecycle of clinical plan
// documents.
type Service struct {
	docs    Store
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

// New constructs a Service.
func New(docs Store, opts ...Option) *Service {
	s := &Service{docs: docs, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateDraft opens a new draft version for the (participant, kind) family.
// Version = max existing + 1, assigned by the store. Fails with DraftConflict
// when the family already has an open draft.
func (s *Service) CreateDraft(ctx context.Context, participantID id.ParticipantID, kind models.DocumentKind, content json.RawMessage, revisionNote string) (*models.PlanDocument, error) {
	doc, err := models.NewDraft(participantID, kind, content, revisionNote, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}

	if err := s.docs.CreateDraft(ctx, doc); err != nil {
		if errors.Is(err, sentinel.ErrDraftExists) {
			return nil, dErrors.Newf(dErrors.CodeDraftConflict, "an open draft already exists for %s", kind).
				WithEntity(participantID.String(), string(models.StatusDraft))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create draft")
	}
	return doc, nil
}

// UpdateDraft replaces a draft's content. Allowed only while the version is
// still a draft; the check and the write share the store's lock.
func (s *Service) UpdateDraft(ctx context.Context, docID id.PlanDocumentID, content json.RawMessage, revisionNote string) (*models.PlanDocument, error) {
	if len(content) == 0 || !json.Valid(content) {
		return nil, dErrors.New(dErrors.CodeValidation, "content must be valid JSON")
	}
	now := requestcontext.Now(ctx)

	doc, err := s.docs.Execute(ctx, docID,
		func(d *models.PlanDocument) error { return d.CanUpdate() },
		func(d *models.PlanDocument) { d.ApplyUpdate(content, revisionNote, now) },
	)
	if err != nil {
		return nil, translateDocErr(err, docID)
	}
	return doc, nil
}

// Publish promotes a draft to the family's current version, archiving the
// previous one in the same store transaction.
func (s *Service) Publish(ctx context.Context, docID id.PlanDocumentID) (*models.PlanDocument, error) {
	actor := requestcontext.Actor(ctx)
	if actor.Name == "" {
		return nil, dErrors.New(dErrors.CodeForbidden, "an authenticated approver is required to publish")
	}

	doc, err := s.docs.Publish(ctx, docID, actor.Name, requestcontext.Now(ctx))
	if err != nil {
		return nil, translateDocErr(err, docID)
	}

	s.logger.InfoContext(ctx, "plan document published",
		"document_id", doc.ID,
		"participant_id", doc.ParticipantID,
		"kind", doc.Kind,
		"version", doc.VersionNumber,
		"approved_by", doc.ApprovedBy,
	)
	if s.metrics != nil {
		s.metrics.PlanDocumentsPublished.WithLabelValues(string(doc.Kind)).Inc()
	}
	s.emit(ctx, lifecycle.Event{
		Kind:          lifecycle.EventPlanDocPublished,
		ParticipantID: doc.ParticipantID,
		Actor:         actor.Name,
		At:            requestcontext.Now(ctx),
		Detail: map[string]string{
			"document_kind": string(doc.Kind),
			"version":       strconv.Itoa(doc.VersionNumber),
		},
	})
	return doc, nil
}

// Discard deletes a draft version. Published and archived versions are
// immutable history and cannot be discarded.
func (s *Service) Discard(ctx context.Context, docID id.PlanDocumentID) error {
	if err := s.docs.DeleteDraft(ctx, docID); err != nil {
		return translateDocErr(err, docID)
	}
	return nil
}

// GetCurrent returns the published version for the family, or nil when the
// family has no current version. Pure read.
func (s *Service) GetCurrent(ctx context.Context, participantID id.ParticipantID, kind models.DocumentKind) (*models.PlanDocument, error) {
	doc, err := s.docs.GetCurrent(ctx, participantID, kind)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load current version")
	}
	return doc, nil
}

// ListVersions returns the family's full version history.
func (s *Service) ListVersions(ctx context.Context, participantID id.ParticipantID, kind models.DocumentKind) ([]*models.PlanDocument, error) {
	docs, err := s.docs.ListVersions(ctx, participantID, kind)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list versions")
	}
	return docs, nil
}

func (s *Service) emit(ctx context.Context, event lifecycle.Event) {
	if s.events == nil {
		return
	}
	_ = s.events.Emit(ctx, event)
}

func translateDocErr(err error, docID id.PlanDocumentID) error {
	switch {
	case dErrors.HasCode(err, dErrors.CodeInvalidState):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Newf(dErrors.CodeNotFound, "plan document %s not found", docID)
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeInvalidState, "operation not valid for the document's current status").
			WithEntity(docID.String(), "")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "plan document operation failed")
	}
}
