package httpapi

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/surge-dashboard/internal/logging"
)

func TestRequestIDIsEchoedOrGenerated(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	rec = f.do(t, "GET", "/healthz", nil)
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)
}

func TestAccessLogCarriesRouteTemplate(t *testing.T) {
	var buf bytes.Buffer
	f := newFixture(t)
	f.srv.logger = logging.New(&buf, "info", "test")

	rec := f.do(t, "GET", "/api/v1/surge/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, buf.String(), `"route":"/api/v1/surge/{zone_id}"`)
	assert.Contains(t, buf.String(), `"request_id"`)

	buf.Reset()
	f.do(t, "GET", "/healthz", nil)
	assert.Empty(t, buf.String(), "health requests log at debug")
}

func TestRecoverWritesJSON(t *testing.T) {
	s := &Server{logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))}
	h := s.recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
}
