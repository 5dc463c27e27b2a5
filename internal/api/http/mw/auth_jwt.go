package mw

import (
	"context"
	"errors"
	"net/http"
	"oraclehub/internal/domain"
	"oraclehub/internal/security"
	"oraclehub/pkg/httputil"
)

// Key for the caller address in ctx
type claimsCtxKey struct{}

type JWTMiddleware struct {
	verifier *security.RS256Verifier // nil when jwt.enabled=false
}

func NewJWTMiddleware(v *security.RS256Verifier) (*JWTMiddleware, error) {
	if v == nil {
		return nil, errors.New("JWT verifier cannot be nil")
	}
	return &JWTMiddleware{verifier: v}, nil
}

func (m *JWTMiddleware) Handler(next http.Handler) http.Handler {
	if m.verifier == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := m.verifier.VerifyBearer(r.Header.Get("Authorization"))
		if err != nil {
			_ = httputil.Error(w, r, http.StatusUnauthorized, "unauthorized", err.Error(), nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

// WithCaller stores the authenticated caller address.
func WithCaller(ctx context.Context, caller domain.Address) context.Context {
	return context.WithValue(ctx, claimsCtxKey{}, caller)
}

// CallerFromContext returns the caller set by the JWT middleware, empty when unauthenticated.
func CallerFromContext(ctx context.Context) domain.Address {
	if v, ok := ctx.Value(claimsCtxKey{}).(domain.Address); ok {
		return v
	}
	return ""
}

func subjectFromContext(r *http.Request) string {
	return string(CallerFromContext(r.Context()))
}

// CallerHeader is the identity header honored by HeaderCaller.
const CallerHeader = "X-Oracle-Caller"

// HeaderCaller takes the caller address from a plain header. Dev only, mounted when jwt.enabled=false.
func HeaderCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c := r.Header.Get(CallerHeader); c != "" {
			r = r.WithContext(WithCaller(r.Context(), domain.Address(c)))
		}
		next.ServeHTTP(w, r)
	})
}
