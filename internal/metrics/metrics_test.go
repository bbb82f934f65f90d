package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.StepSubmitted(2, "accepted")
	m.StepSubmitted(2, "accepted")
	m.StepSubmitted(2, "rejected")
	m.CollisionObserved()
	m.AccountProvisioned()
	m.CompletionFailed("storage")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.StepSubmissions.WithLabelValues("2", "accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StepSubmissions.WithLabelValues("2", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CredentialCollisions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AccountsProvisioned))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompletionFailures.WithLabelValues("storage")))
}
