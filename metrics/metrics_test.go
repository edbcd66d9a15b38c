package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndGauges(t *testing.T) {
	m := NewMetrics()

	m.ObserveCommand("CreateStudy", "ok", 10*time.Millisecond)
	m.ObserveCommand("CreateStudy", "ok", 20*time.Millisecond)
	m.ObserveCommand("CreateStudy", "conflict", time.Millisecond)
	m.SetBacklog(7, 2)
	m.ObserveWait(true, 3)

	body := scrape(t, m)
	assert.Contains(t, body, `clinops_commands_total{command="CreateStudy",outcome="ok"} 2`)
	assert.Contains(t, body, `clinops_commands_total{command="CreateStudy",outcome="conflict"} 1`)
	assert.Contains(t, body, "clinops_projection_backlog 7")
	assert.Contains(t, body, "clinops_projection_stuck 2")
	assert.Contains(t, body, `clinops_projection_waits_total{result="found"} 1`)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCommand("x", "ok", time.Second)
		m.EventProjected("x")
		m.ProjectionFailed("x")
		m.EventDeferred()
		m.SetBacklog(1, 1)
		m.ObserveWait(false, 1)
		m.Migration("study", "created")
	})
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := NewMetrics()
	m.EventProjected("V1_STUDY_CREATED")

	assert.Contains(t, scrape(t, m), `clinops_events_projected_total{event_type="V1_STUDY_CREATED"} 1`)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
