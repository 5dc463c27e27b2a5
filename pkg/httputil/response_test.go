package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, JSON(rec, http.StatusOK, map[string]string{"price": "10"}, map[string]string{"X-Test": "1"}))

	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "1", rec.Header().Get("X-Test"))

	var out Response[map[string]string]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "ok", out.Status)
	assert.Equal(t, "10", out.Data["price"])
	assert.Nil(t, out.Error)
}

func TestJSON_NoContent(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, JSON(rec, http.StatusNoContent, nil, nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, rec.Body.Len())
}

func TestError(t *testing.T) {
	var traced *http.Request
	h := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traced = r
		_ = Error(w, r, http.StatusNotFound, "price_not_found", "no price", nil)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var out Response[json.RawMessage]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "error", out.Status)
	require.NotNil(t, out.Error)
	assert.Equal(t, "price_not_found", out.Error.Code)
	assert.Equal(t, middleware.GetReqID(traced.Context()), out.Error.TraceID)
	assert.NotEmpty(t, out.Error.TraceID)
}

func TestDecodeJSON(t *testing.T) {
	type req struct {
		Timestamp uint64 `json:"timestamp"`
	}

	tests := []struct {
		name string
		body string
		ok   bool
	}{
		{name: "valid", body: `{"timestamp":10}`, ok: true},
		{name: "unknown field", body: `{"timestamp":10,"extra":1}`},
		{name: "wrong type", body: `{"timestamp":"10"}`},
		{name: "empty", body: ``},
		{name: "too large", body: `{"timestamp":10` + strings.Repeat(" ", MaxBody) + `}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dst req
			err := DecodeJSON(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body)), &dst)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, uint64(10), dst.Timestamp)
				return
			}
			assert.True(t, errors.Is(err, ErrInvalidBody))
		})
	}
}
