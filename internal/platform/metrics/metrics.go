package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the application.
type Metrics struct {
	ReferralsAccepted      prometheus.Counter
	PlanDocumentsPublished *prometheus.CounterVec
	ReviewsDecided         *prometheus.CounterVec
	ParticipantsOnboarded  prometheus.Counter
	ConversionsRejected    *prometheus.CounterVec
	EnvelopesCreated       prometheus.Counter
	EnvelopesSigned        prometheus.Counter
	EnvelopesExpired       prometheus.Counter
	GateEvaluations        *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		ReferralsAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "carebridge_referrals_accepted_total",
			Help: "Total referrals converted into prospective participants",
		}),
		PlanDocumentsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "carebridge_plan_documents_published_total",
			Help: "Plan document versions published, by kind",
		}, []string{"kind"}),
		ReviewsDecided: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "carebridge_manager_reviews_decided_total",
			Help: "Manager reviews decided, by outcome",
		}, []string{"outcome"}),
		ParticipantsOnboarded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "carebridge_participants_onboarded_total",
			Help: "Participants converted to onboarded status",
		}),
		ConversionsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "carebridge_conversions_rejected_total",
			Help: "Conversion attempts rejected, by reason code",
		}, []string{"reason"}),
		EnvelopesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "carebridge_envelopes_created_total",
			Help: "Signature envelopes created",
		}),
		EnvelopesSigned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "carebridge_envelopes_signed_total",
			Help: "Signature envelopes signed",
		}),
		EnvelopesExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "carebridge_envelopes_expired_total",
			Help: "Signature envelopes lapsed past their expiry",
		}),
		GateEvaluations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "carebridge_gate_evaluations_total",
			Help: "Readiness gate evaluations, by outcome",
		}, []string{"outcome"}),
	}
}
