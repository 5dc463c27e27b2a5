package mw

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"oraclehub/internal/dedupe"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingDeduper struct{}

func (failingDeduper) Seen(context.Context, string) (bool, error) { return false, errors.New("down") }
func (failingDeduper) Forget(context.Context, string) error       { return nil }

func idempotentHandler(t *testing.T, d dedupe.Deduper, status *int) http.Handler {
	t.Helper()
	m, err := NewIdempotency(newTestLogger(), d)
	require.NoError(t, err)

	return HeaderCaller(m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(*status)
	})))
}

func postWithKey(h http.Handler, caller, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/stores/feed/prices", nil)
	req.Header.Set(CallerHeader, caller)
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIdempotency(t *testing.T) {
	_, err := NewIdempotency(newTestLogger(), nil)
	require.Error(t, err)

	d := dedupe.NewInMemoryDedupe(newTestLogger(), time.Minute, 0)
	defer d.Close()
	status := http.StatusNoContent
	h := idempotentHandler(t, d, &status)

	assert.Equal(t, http.StatusNoContent, postWithKey(h, "GADMIN", "k1").Code)

	rec := postWithKey(h, "GADMIN", "k1")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "duplicate_request")

	// keys are per caller
	assert.Equal(t, http.StatusNoContent, postWithKey(h, "GOTHER", "k1").Code)

	// no key, no guard
	assert.Equal(t, http.StatusNoContent, postWithKey(h, "GADMIN", "").Code)
	assert.Equal(t, http.StatusNoContent, postWithKey(h, "GADMIN", "").Code)
}

func TestIdempotency_FailedWriteReleasesKey(t *testing.T) {
	d := dedupe.NewInMemoryDedupe(newTestLogger(), time.Minute, 0)
	defer d.Close()
	status := http.StatusBadRequest
	h := idempotentHandler(t, d, &status)

	assert.Equal(t, http.StatusBadRequest, postWithKey(h, "GADMIN", "k1").Code)

	status = http.StatusNoContent
	assert.Equal(t, http.StatusNoContent, postWithKey(h, "GADMIN", "k1").Code)
	assert.Equal(t, http.StatusConflict, postWithKey(h, "GADMIN", "k1").Code)
}

func TestIdempotency_FailOpen(t *testing.T) {
	status := http.StatusNoContent
	h := idempotentHandler(t, failingDeduper{}, &status)

	assert.Equal(t, http.StatusNoContent, postWithKey(h, "GADMIN", "k1").Code)
	assert.Equal(t, http.StatusNoContent, postWithKey(h, "GADMIN", "k1").Code)
}
