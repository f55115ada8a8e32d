package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeoutMiddleware_SlowHandlerGets408(t *testing.T) {
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat?userId=u1", nil)
	TimeoutMiddleware(20 * time.Millisecond)(slow).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusRequestTimeout, rr.Code)
	assert.Contains(t, rr.Body.String(), "Request timeout")
}

func TestTimeoutMiddleware_FastHandlerPassesThrough(t *testing.T) {
	fast := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat?userId=u1", nil)
	TimeoutMiddleware(time.Second)(fast).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
}
