// Package gate evaluates onboarding readiness. Evaluation is a pure
// function of the participant's current records: it never mutates state, so
// calling it repeatedly is always safe.
package gate

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"carebridge/internal/plandoc/models"
	"carebridge/internal/platform/metrics"
	"carebridge/internal/quote"
	id "carebridge/pkg/domain"
	dErrors "carebridge/pkg/domain-errors"
	"carebridge/pkg/platform/sentinel"
)

// Blocking messages, in the fixed order they are reported. Clients key off
// this wording, so it is part of the contract.
const (
	MsgCarePlanNotFinalised  = "Care plan must be finalised"
	MsgRiskAssessmentMissing = "Risk assessment is required"
	MsgQuotationMissing      = "Quotation is required"
)

// Requirement is one checklist line in a readiness report.
type Requirement struct {
	Name      string `json:"name"`
	Satisfied bool   `json:"satisfied"`
	Detail    string `json:"detail,omitempty"`
}

// Readiness is the outcome of one gate evaluation. DocumentsCount is
// informational only and never blocks onboarding.
type Readiness struct {
	CanOnboard     bool          `json:"can_onboard"`
	BlockingIssues []string      `json:"blocking_issues"`
	Requirements   []Requirement `json:"requirements"`
	DocumentsCount int           `json:"documents_count"`
}

// DocumentStore is the slice of the plan document store the gate reads.
type DocumentStore interface {
	GetCurrent(ctx context.Context, participantID id.ParticipantID, kind models.DocumentKind) (*models.PlanDocument, error)
	HasAny(ctx context.Context, participantID id.ParticipantID, kind models.DocumentKind) (bool, error)
}

// ArtifactCounter reports how many generated documents exist for a
// participant.
type ArtifactCounter interface {
	CountByParticipant(ctx context.Context, participantID id.ParticipantID) (int, error)
}

// Evaluator runs the readiness checks against the collaborating stores.
type Evaluator struct {
	docs      DocumentStore
	quotes    quote.Source
	artifacts ArtifactCounter
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Evaluator)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Evaluator) { e.metrics = m }
}

// New constructs an Evaluator. artifacts may be nil, in which case
// DocumentsCount is reported as zero.
func New(docs DocumentStore, quotes quote.Source, artifacts ArtifactCounter, opts ...Option) *Evaluator {
	e := &Evaluator{docs: docs, quotes: quotes, artifacts: artifacts, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate computes the participant's readiness. Blocking issues appear in a
// fixed order: care plan, risk assessment, quotation. A read failure on any
// requirement fails the whole evaluation rather than guessing.
func (e *Evaluator) Evaluate(ctx context.Context, participantID id.ParticipantID) (*Readiness, error) {
	r := &Readiness{BlockingIssues: []string{}}

	// Care plan: a published version must exist. Drafts alone do not count.
	current, err := e.docs.GetCurrent(ctx, participantID, models.KindCarePlan)
	if errors.Is(err, sentinel.ErrNotFound) {
		current = nil
	} else if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check care plan")
	}
	carePlanOK := current != nil
	r.Requirements = append(r.Requirements, Requirement{
		Name:      "care_plan_finalised",
		Satisfied: carePlanOK,
		Detail:    carePlanDetail(current),
	})
	if !carePlanOK {
		r.BlockingIssues = append(r.BlockingIssues, MsgCarePlanNotFinalised)
	}

	// Risk assessment: any version in any status satisfies the check.
	hasRisk, err := e.docs.HasAny(ctx, participantID, models.KindRiskAssessment)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check risk assessment")
	}
	r.Requirements = append(r.Requirements, Requirement{
		Name:      "risk_assessment_exists",
		Satisfied: hasRisk,
	})
	if !hasRisk {
		r.BlockingIssues = append(r.BlockingIssues, MsgRiskAssessmentMissing)
	}

	// Quotation: the participant needs at least one.
	q, err := e.quotes.Latest(ctx, participantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check quotation")
	}
	quoteOK := q != nil
	r.Requirements = append(r.Requirements, Requirement{
		Name:      "quotation_exists",
		Satisfied: quoteOK,
	})
	if !quoteOK {
		r.BlockingIssues = append(r.BlockingIssues, MsgQuotationMissing)
	}

	if e.artifacts != nil {
		count, err := e.artifacts.CountByParticipant(ctx, participantID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count generated documents")
		}
		r.DocumentsCount = count
	}

	r.CanOnboard = len(r.BlockingIssues) == 0

	if e.metrics != nil {
		outcome := "blocked"
		if r.CanOnboard {
			outcome = "ready"
		}
		e.metrics.GateEvaluations.WithLabelValues(outcome).Inc()
	}
	e.logger.DebugContext(ctx, "readiness evaluated",
		"participant_id", participantID,
		"can_onboard", r.CanOnboard,
		"blocking_issues", len(r.BlockingIssues),
	)
	return r, nil
}

func carePlanDetail(current *models.PlanDocument) string {
	if current == nil {
		return "no published care plan"
	}
	return "published version " + strconv.Itoa(current.VersionNumber)
}
