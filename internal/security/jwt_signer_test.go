package security

import (
	"crypto/x509"
	"oraclehub/internal/config"
	"oraclehub/internal/domain"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePrivateKeys(t *testing.T) (pkcs1, pkcs8 string) {
	t.Helper()

	pkcs1 = writeTempPEM("RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(testPrivateKey))
	der, err := x509.MarshalPKCS8PrivateKey(testPrivateKey)
	require.NoError(t, err)
	pkcs8 = writeTempPEM("PRIVATE KEY", der)

	t.Cleanup(func() {
		os.Remove(pkcs1)
		os.Remove(pkcs8)
	})
	return pkcs1, pkcs8
}

func TestNewRS256Signer_LoadsPKCS1AndPKCS8(t *testing.T) {
	pkcs1, pkcs8 := writePrivateKeys(t)

	for _, path := range []string{pkcs1, pkcs8} {
		s, err := NewRS256Signer(&config.JWTConfig{PrivateKeyPath: path, Issuer: "oraclehub", Audience: "oracle-admin"})
		require.NoError(t, err, "must load %s", path)
		assert.True(t, testPrivateKey.Equal(s.Priv))
		assert.Equal(t, "oraclehub", s.Iss)
		assert.Equal(t, "oracle-admin", s.Aud)
		assert.Equal(t, time.Hour, s.TTL)
	}
}

func TestNewRS256Signer_Errors(t *testing.T) {
	_, err := NewRS256Signer(nil)
	assert.Error(t, err)

	_, err = NewRS256Signer(&config.JWTConfig{})
	assert.ErrorContains(t, err, "private key path is empty")

	_, err = NewRS256Signer(&config.JWTConfig{PrivateKeyPath: filepath.Join(t.TempDir(), "missing.pem")})
	assert.ErrorContains(t, err, "private key: read")

	bad := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not-a-pem"), 0o600))
	_, err = NewRS256Signer(&config.JWTConfig{PrivateKeyPath: bad})
	assert.ErrorContains(t, err, "private key: parse")
}

func TestMint_RoundTripsThroughVerifier(t *testing.T) {
	pkcs1, _ := writePrivateKeys(t)

	signer, err := NewRS256Signer(&config.JWTConfig{
		PrivateKeyPath: pkcs1,
		Issuer:         "oraclehub",
		Audience:       "oracle-admin",
		TTL:            2 * time.Minute,
	})
	require.NoError(t, err)

	token, err := signer.Mint("GADMIN", 0)
	require.NoError(t, err)

	caller, err := newVerifier(t, "oracle-admin", "oraclehub").VerifyBearer("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, domain.Address("GADMIN"), caller)

	rc := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(token, rc, func(*jwt.Token) (any, error) {
		return &testPrivateKey.PublicKey, nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rc.ID)
	assert.WithinDuration(t, time.Now().Add(2*time.Minute), rc.ExpiresAt.Time, 5*time.Second)
}

func TestMint_RequiresCaller(t *testing.T) {
	pkcs1, _ := writePrivateKeys(t)
	signer, err := NewRS256Signer(&config.JWTConfig{PrivateKeyPath: pkcs1})
	require.NoError(t, err)

	_, err = signer.Mint("", time.Minute)
	assert.ErrorIs(t, err, ErrNoSubject)
}
