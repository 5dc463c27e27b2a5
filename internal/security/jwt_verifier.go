package security

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"oraclehub/internal/config"
	"oraclehub/internal/domain"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoBearerToken = errors.New("authorization header must be: Bearer <token>")
	ErrNoSubject     = errors.New("token has no subject")
)

// RS256Verifier checks admin tokens. The token subject is the caller address
// that admin operations are authorized against.
type RS256Verifier struct {
	PubKey *rsa.PublicKey
	Aud    string // empty - not checked
	Iss    string // empty - not checked
	Leeway time.Duration
}

func NewRS256Verifier(cfg *config.JWTConfig) (*RS256Verifier, error) {
	if cfg == nil {
		return nil, errors.New("jwt config is required")
	}

	pub, err := loadKey(cfg.PublicKeyPath, parseRSAPublicKeyFromPem)
	if err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}

	return &RS256Verifier{
		PubKey: pub,
		Aud:    cfg.Audience,
		Iss:    cfg.Issuer,
		Leeway: cfg.Leeway,
	}, nil
}

// VerifyBearer validates the Authorization header and returns the caller address.
func (v *RS256Verifier) VerifyBearer(authHeader string) (domain.Address, error) {
	tokenStr, err := extractBearer(authHeader)
	if err != nil {
		return "", fmt.Errorf("failed to extract bearer token: %w", err)
	}

	return v.Verify(tokenStr)
}

// Verify checks a raw token and returns its subject as the caller address.
func (v *RS256Verifier) Verify(tokenStr string) (domain.Address, error) {
	claims := &jwt.RegisteredClaims{}
	if _, err := jwt.ParseWithClaims(tokenStr, claims, v.key, v.parserOptions()...); err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return "", ErrNoSubject
	}
	return domain.Address(sub), nil
}

func (v *RS256Verifier) key(*jwt.Token) (any, error) {
	if v.PubKey == nil {
		return nil, errors.New("verifier has no public key")
	}
	return v.PubKey, nil
}

// RS256 only, exp required; audience and issuer when configured.
func (v *RS256Verifier) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithLeeway(v.Leeway),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if v.Aud != "" {
		opts = append(opts, jwt.WithAudience(v.Aud))
	}
	if v.Iss != "" {
		opts = append(opts, jwt.WithIssuer(v.Iss))
	}
	return opts
}

func extractBearer(h string) (string, error) {
	h = strings.TrimSpace(h)
	if h == "" {
		return "", ErrNoBearerToken
	}

	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", ErrNoBearerToken
	}

	return strings.TrimSpace(parts[1]), nil
}
