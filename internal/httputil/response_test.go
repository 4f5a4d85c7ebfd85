package httputil

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/lanepilot/internal/monitoring"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]int{"n": 1})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"n":1}`, rec.Body.String())
}

func TestWriteJSON_EncodeFailureLogged(t *testing.T) {
	var logged bool
	monitoring.SetLogger(func(string, ...interface{}) { logged = true })
	defer monitoring.SetLogger(nil)

	rec := httptest.NewRecorder()
	WriteJSONOK(rec, math.Inf(1))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, logged)
}

func TestErrorHelpers(t *testing.T) {
	for _, tc := range []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
		body   string
	}{
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "nope") }, http.StatusBadRequest, `{"error":"nope"}`},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, "boom") }, http.StatusInternalServerError, `{"error":"boom"}`},
		{"method", func(w http.ResponseWriter) { MethodNotAllowed(w, http.MethodGet) }, http.StatusMethodNotAllowed, `{"error":"method not allowed"}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tc.write(rec)
			assert.Equal(t, tc.status, rec.Code)
			assert.JSONEq(t, tc.body, rec.Body.String())
		})
	}

	rec := httptest.NewRecorder()
	MethodNotAllowed(rec, http.MethodGet, http.MethodHead)
	assert.Equal(t, []string{http.MethodGet, http.MethodHead}, rec.Header().Values("Allow"))
}
