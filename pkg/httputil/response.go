package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// MaxBody caps a decoded request body.
const MaxBody = 1 << 20

var ErrInvalidBody = errors.New("invalid json body")

type APIError struct {
	Code    string `json:"code"` // example "bad_request", "price_not_found"
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// Response is the wire envelope: {status:"ok", data} or {status:"error", error}.
// Clients decode it with the concrete data type.
type Response[T any] struct {
	Status string    `json:"status"`
	Data   T         `json:"data,omitempty"`
	Error  *APIError `json:"error,omitempty"`
}

func JSON(w http.ResponseWriter, status int, body any, headers map[string]string) error {
	// No body -> 204
	if body == nil && status == http.StatusNoContent {
		for k, v := range headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(status)
		return nil
	}

	var payload Response[any]
	switch e := body.(type) {
	case *APIError:
		payload = Response[any]{Status: "error", Error: e}
	case APIError:
		payload = Response[any]{Status: "error", Error: &e}
	default:
		payload = Response[any]{Status: "ok", Data: body}
	}

	// headers before the status line
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	for k, v := range headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	return enc.Encode(payload)
}

func Error(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) error {
	return JSON(w, status, &APIError{
		Code:    code,
		Message: message,
		Details: details,
		TraceID: middleware.GetReqID(r.Context()),
	}, map[string]string{
		"Cache-Control": "no-store",
	})
}

// DecodeJSON reads one strict JSON object from the request body into dst.
// Unknown fields and bodies over MaxBody are rejected with ErrInvalidBody.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	return nil
}
