package security

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"oraclehub/internal/config"
	"oraclehub/internal/domain"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RS256Signer mints admin tokens for cmd/mint-token. Dev tooling only, the server never signs.
type RS256Signer struct {
	Priv *rsa.PrivateKey
	Iss  string
	Aud  string
	TTL  time.Duration
}

// NewRS256Signer loads a PEM-encoded RSA private key, PKCS1 or PKCS8.
func NewRS256Signer(cfg *config.JWTConfig) (*RS256Signer, error) {
	if cfg == nil {
		return nil, errors.New("jwt config is required")
	}
	if cfg.PrivateKeyPath == "" {
		return nil, errors.New("private key path is empty")
	}

	priv, err := loadKey(cfg.PrivateKeyPath, parseRSAPrivateKeyFromPem)
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &RS256Signer{
		Priv: priv,
		Iss:  cfg.Issuer,
		Aud:  cfg.Audience,
		TTL:  ttl,
	}, nil
}

// Mint signs a token whose subject is the caller address. A zero ttl uses the signer default.
func (s *RS256Signer) Mint(caller domain.Address, ttl time.Duration) (string, error) {
	if caller == "" {
		return "", ErrNoSubject
	}
	if ttl <= 0 {
		ttl = s.TTL
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    s.Iss,
		Subject:   string(caller),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	}
	if s.Aud != "" {
		claims.Audience = jwt.ClaimStrings{s.Aud}
	}

	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.Priv)
}
