package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Relayed("offer")
		m.Dropped(ReasonBackpressure)
		m.Rejected(RejectInvalidRoom)
		m.Occupancy(1, 2)
	})
}

func TestCounters(t *testing.T) {
	m := New()
	m.Relayed("offer")
	m.Relayed("offer")
	m.Dropped(ReasonUnknownTarget)
	m.Occupancy(2, 5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SignalsRelayed.WithLabelValues("offer")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SignalsDropped.WithLabelValues(ReasonUnknownTarget)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RoomsActive))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.ParticipantsActive))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.Rejected(RejectRateLimited)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `meet_join_rejected_total{reason="rate_limited"} 1`)
}
