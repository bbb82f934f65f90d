package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the onboarding counters.
type Metrics struct {
	StepSubmissions      *prometheus.CounterVec
	CredentialCollisions prometheus.Counter
	AccountsProvisioned  prometheus.Counter
	CompletionFailures   *prometheus.CounterVec
	Restarts             prometheus.Counter
}

// New registers the counters with reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		StepSubmissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_step_submissions_total",
			Help: "Registration step submissions by step number and result",
		}, []string{"step", "result"}),
		CredentialCollisions: f.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_credential_collisions_total",
			Help: "Generated account numbers that already existed in the account directory",
		}),
		AccountsProvisioned: f.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_accounts_provisioned_total",
			Help: "Trading accounts created by completed registrations",
		}),
		CompletionFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_completion_failures_total",
			Help: "Failed registration completions by reason",
		}, []string{"reason"}),
		Restarts: f.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_restarts_total",
			Help: "Registration attempts explicitly restarted",
		}),
	}
}

func (m *Metrics) StepSubmitted(step int, result string) {
	m.StepSubmissions.WithLabelValues(strconv.Itoa(step), result).Inc()
}

func (m *Metrics) CollisionObserved() {
	m.CredentialCollisions.Inc()
}

func (m *Metrics) AccountProvisioned() {
	m.AccountsProvisioned.Inc()
}

func (m *Metrics) CompletionFailed(reason string) {
	m.CompletionFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) Restarted() {
	m.Restarts.Inc()
}
