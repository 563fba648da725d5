package auth_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiant-ai/radiant/internal/auth"
	"github.com/radiant-ai/radiant/internal/model"
)

func TestJWTIssueAndValidate(t *testing.T) {
	mgr, err := auth.NewJWTManager("", "", "", time.Hour)
	require.NoError(t, err)
	require.True(t, mgr.CanIssue())

	token, expiresAt, err := mgr.IssueToken("dr-grey", "clinic", model.RoleReviewer, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := mgr.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "dr-grey", claims.Subject)
	assert.Equal(t, "clinic", claims.TenantID)
	assert.Equal(t, model.RoleReviewer, claims.Role)
}

func TestIssueTokenRejectsBadInput(t *testing.T) {
	mgr, err := auth.NewJWTManager("", "", "", time.Hour)
	require.NoError(t, err)

	_, _, err = mgr.IssueToken("", "clinic", model.RoleReviewer, 0)
	assert.Error(t, err)
	_, _, err = mgr.IssueToken("x", "clinic", "superuser", 0)
	assert.Error(t, err)
	_, _, err = mgr.IssueToken("x", "bad/tenant", model.RoleReviewer, 0)
	assert.Error(t, err)
}

// writeKeys writes an Ed25519 key pair to temp PEM files and returns
// their paths along with the raw private key for forging tokens.
func writeKeys(t *testing.T) (privPath, pubPath string, priv ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	dir := t.TempDir()

	privBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	privPath = filepath.Join(dir, "priv.pem")
	require.NoError(t, os.WriteFile(privPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privBytes}), 0600))

	pubBytes, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	pubPath = filepath.Join(dir, "pub.pem")
	require.NoError(t, os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes}), 0600))
	return privPath, pubPath, priv
}

func forgeToken(t *testing.T, privKey ed25519.PrivateKey, claims jwt.Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(privKey)
	require.NoError(t, err)
	return signed
}

func validClaims() *auth.Claims {
	now := time.Now().UTC()
	return &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "dr-grey",
			Issuer:    "radiant",
			Audience:  jwt.ClaimStrings{auth.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			ID:        uuid.New().String(),
		},
		TenantID: "clinic",
		Role:     model.RoleReviewer,
	}
}

func TestVerifyOnlyManager(t *testing.T) {
	_, pubPath, priv := writeKeys(t)
	mgr, err := auth.NewJWTManager("", pubPath, "radiant", time.Hour)
	require.NoError(t, err)
	assert.False(t, mgr.CanIssue())

	_, _, err = mgr.IssueToken("dr-grey", "clinic", model.RoleReviewer, 0)
	assert.ErrorIs(t, err, auth.ErrCannotIssue)

	claims, err := mgr.ValidateToken(forgeToken(t, priv, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "clinic", claims.TenantID)
}

func TestValidateTokenRejections(t *testing.T) {
	privPath, pubPath, priv := writeKeys(t)
	mgr, err := auth.NewJWTManager(privPath, pubPath, "radiant", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *auth.Claims)
		want   string
	}{
		{name: "wrong issuer", mutate: func(c *auth.Claims) { c.Issuer = "not-radiant" }, want: "invalid issuer"},
		{name: "wrong audience", mutate: func(c *auth.Claims) { c.Audience = jwt.ClaimStrings{"other"} }, want: "audience"},
		{name: "expired", mutate: func(c *auth.Claims) { c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute)) }, want: "expired"},
		{name: "no subject", mutate: func(c *auth.Claims) { c.Subject = "" }, want: "no subject"},
		{name: "unknown role", mutate: func(c *auth.Claims) { c.Role = "root" }, want: "unknown role"},
		{name: "bad tenant", mutate: func(c *auth.Claims) { c.TenantID = "" }, want: "tenant_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validClaims()
			tt.mutate(c)
			_, err := mgr.ValidateToken(forgeToken(t, priv, c))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMismatchedKeys(t *testing.T) {
	privPath, _, _ := writeKeys(t)
	_, otherPub, _ := writeKeys(t)
	_, err := auth.NewJWTManager(privPath, otherPub, "", time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")

	_, err = auth.NewJWTManager(privPath, "", "", time.Hour)
	assert.Error(t, err)
}
