package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.FitsTotal.WithLabelValues("success").Inc()
	m.VocabularySize.Set(42)
	m.SearchQueriesTotal.WithLabelValues("hit").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FitsTotal.WithLabelValues("success")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.VocabularySize))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("hit")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["engine_fits_total"])
	assert.True(t, names["engine_vocabulary_size"])
}

func TestNewPanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}

func TestHandlerServesGatherer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.SnapshotVersion.Set(7)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "engine_snapshot_version 7")
}
