package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	w := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics("test", reg)
	require.NoError(t, err)

	m.Upload(UploadAccepted)
	m.Upload(UploadRejected)
	m.Upload(UploadRejected)
	m.Script(ScriptChanged)
	m.BundleFiles(7)
	m.Evaluation(3 * time.Millisecond)

	out := scrape(t, reg)
	assert.Contains(t, out, `test_bundle_uploads_total{result="accepted"} 1`+"\n")
	assert.Contains(t, out, `test_bundle_uploads_total{result="rejected"} 2`+"\n")
	assert.Contains(t, out, `test_scripts_total{outcome="changed"} 1`+"\n")
	assert.NotContains(t, out, `outcome="failed"`)
	assert.Contains(t, out, "test_bundle_files 7\n")
	assert.Contains(t, out, "test_evaluation_duration_seconds_count 1\n")
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Upload(UploadAccepted)
		m.Script(ScriptRefused)
		m.Evaluation(time.Second)
		m.BundleFiles(1)
	})
}

func TestMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics("test", reg)
	require.NoError(t, err)
	_, err = NewMetrics("test", reg)
	assert.Error(t, err)
}

func TestMetricsServer_Handler(t *testing.T) {
	srv, err := New("thincf", "127.0.0.1:0")
	require.NoError(t, err)
	srv.Metrics.Upload(UploadAccepted)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `thincf_bundle_uploads_total{result="accepted"} 1`)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
