package mw

import (
	"context"
	"errors"
	"net/http"
	"oraclehub/internal/dedupe"
	"oraclehub/pkg/httputil"

	"gitlab.com/nevasik7/alerting/logger"
)

const IdempotencyHeader = "Idempotency-Key"

// IdempotencyMiddleware rejects a replayed admin write. Keys are scoped to the caller
// and claimed before the handler runs; a failed write releases its key.
type IdempotencyMiddleware struct {
	log     logger.Logger
	deduper dedupe.Deduper
}

func NewIdempotency(log logger.Logger, d dedupe.Deduper) (*IdempotencyMiddleware, error) {
	if d == nil {
		return nil, errors.New("deduper cannot be nil")
	}
	return &IdempotencyMiddleware{log: log, deduper: d}, nil
}

func (m *IdempotencyMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(IdempotencyHeader)
		if key == "" || r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > 128 {
			_ = httputil.Error(w, r, http.StatusBadRequest, "bad_request", IdempotencyHeader+" is too long", nil)
			return
		}

		id := subjectFromContext(r) + ":" + key
		seen, err := m.deduper.Seen(r.Context(), id)
		if err != nil {
			// fail-open, the store rejects most replays on its own
			m.log.Warnf("Idempotency check failed, key=%s, error=%v", id, err)
			next.ServeHTTP(w, r)
			return
		}
		if seen {
			_ = httputil.Error(w, r, http.StatusConflict, "duplicate_request", "request with this "+IdempotencyHeader+" was already processed", nil)
			return
		}

		srw := &statusRW{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(srw, r)

		if srw.status >= http.StatusMultipleChoices {
			// the request context may be gone already
			if err = m.deduper.Forget(context.WithoutCancel(r.Context()), id); err != nil {
				m.log.Warnf("Failed to release idempotency key=%s, error=%v", id, err)
			}
		}
	})
}

type statusRW struct {
	http.ResponseWriter
	status int
}

func (w *statusRW) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
