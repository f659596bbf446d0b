package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_CountersAndHandler(t *testing.T) {
	m := New()
	m.VerificationIssued.WithLabelValues("issued").Inc()
	m.VerificationIssued.WithLabelValues("issued").Inc()
	m.VerificationConsumed.WithLabelValues("code", "invalid").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.VerificationIssued.WithLabelValues("issued")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `vibe_email_verification_issued_total{result="issued"} 2`)
	assert.Contains(t, string(body), `vibe_email_verification_consumed_total{method="code",result="invalid"} 1`)
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New()
		New()
	})
}
