package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func newTestServer() *Server {
	return New(Config{APIEnabled: true}, nil, nil, zerolog.Nop())
}

func TestHandleHistoryMissingFromIsRejected(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/history?to=100", nil)
	w := httptest.NewRecorder()

	s.handleHistory(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleHistoryMissingToIsRejected(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/history?from=0", nil)
	w := httptest.NewRecorder()

	s.handleHistory(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleHistoryNonNumericIntervalIsRejected(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/history?from=not-a-number&to=100", nil)
	w := httptest.NewRecorder()

	s.handleHistory(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleHistoryDisabledWhenNoStorage(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/history?from=0&to=100", nil)
	w := httptest.NewRecorder()

	s.handleHistory(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMuxOmitsHistoryRouteWhenAPIDisabled(t *testing.T) {
	s := New(Config{APIEnabled: false}, nil, nil, zerolog.Nop())
	mux := s.Mux(func(w http.ResponseWriter, r *http.Request) {}, func() int { return 0 })

	req := httptest.NewRequest(http.MethodGet, "/api/history?from=0&to=100", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
