package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidwon/lifetree-app-api/apperr"
)

func TestObserveOperationLabelsByKind(t *testing.T) {
	m := New()
	m.ObserveOperation("apply", nil, time.Millisecond)
	m.ObserveOperation("apply", apperr.BusinessRule("dup"), time.Millisecond)
	m.ObserveOperation("apply", errors.New("boom"), time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("apply", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("apply", "business_rule")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("apply", "error")))
}

func TestObserveOutbox(t *testing.T) {
	m := New()
	m.ObserveOutbox(3, 0)
	m.ObserveOutbox(1, 2)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.outboxMessages.WithLabelValues("delivered")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.outboxMessages.WithLabelValues("failed")))
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	m := New()
	r := mux.NewRouter()
	r.Use(m.Middleware)
	r.HandleFunc("/api/requirements/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", m.Handler())

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/requirements/"+id, nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/requirements/{id}", "418")))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "lifetree_http_requests_total"))
}
