package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCountsResults(t *testing.T) {
	rec := NewRecorder()
	rec.RecordSpot(ResultOK)
	rec.RecordSpot(ResultOK)
	rec.RecordSpot(ResultRejected)
	rec.RecordElimination(ResultConflict)
	rec.RecordAnnouncement(nil)
	rec.RecordAnnouncement(errors.New("boom"))
	rec.RecordRollover()

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.spots.WithLabelValues(ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.spots.WithLabelValues(ResultRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.eliminations.WithLabelValues(ResultConflict)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.announcements.WithLabelValues(ResultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.rollovers))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var rec *Recorder
	assert.NotPanics(t, func() {
		rec.RecordSpot(ResultOK)
		rec.RecordHTTPRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
		rec.SetWebsocketClients(3)
	})
	assert.Nil(t, rec.Registry())
}

func TestHandlerExposesMetrics(t *testing.T) {
	rec := NewRecorder()
	rec.RecordHTTPRequest(http.MethodGet, "/api/v1/health", http.StatusOK, 5*time.Millisecond)

	w := httptest.NewRecorder()
	rec.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "spotbot_http_requests_total"))
}
