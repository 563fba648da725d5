// Package auth provides JWT-based authentication for Radiant reviewers and
// services.
//
// Uses Ed25519 (EdDSA) for JWT signing. Tokens are normally issued by the
// identity provider that owns reviewer accounts; Radiant only needs the
// public key. When a private key is configured the manager can also issue
// tokens, which radiantctl uses for service accounts and local testing.
package auth

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/radiant-ai/radiant/internal/model"
)

// Audience is the audience every Radiant token must carry.
const Audience = "radiant"

// ErrCannotIssue is returned by IssueToken on a verify-only manager.
var ErrCannotIssue = errors.New("auth: no private key configured")

// Claims extends jwt.RegisteredClaims with Radiant-specific fields. Subject
// is the reviewer or service identity recorded as decided_by.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string     `json:"tenant_id"`
	Role     model.Role `json:"role"`
}

// JWTManager handles JWT creation and validation using Ed25519.
type JWTManager struct {
	privateKey ed25519.PrivateKey // nil for verify-only managers
	publicKey  ed25519.PublicKey
	issuer     string
	expiration time.Duration
}

// NewJWTManager creates a JWTManager from PEM key files. With only a public
// key the manager validates but cannot issue. With neither, an ephemeral
// key pair is generated (for development).
func NewJWTManager(privateKeyPath, publicKeyPath, issuer string, expiration time.Duration) (*JWTManager, error) {
	if issuer == "" {
		issuer = Audience
	}
	if publicKeyPath == "" {
		if privateKeyPath != "" {
			return nil, fmt.Errorf("auth: private key configured without public key")
		}
		slog.Warn("auth: no JWT key files configured, generating ephemeral key pair (not for production)")
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("auth: generate key pair: %w", err)
		}
		return &JWTManager{privateKey: priv, publicKey: pub, issuer: issuer, expiration: expiration}, nil
	}

	edPub, err := readPublicKey(publicKeyPath)
	if err != nil {
		return nil, err
	}
	m := &JWTManager{publicKey: edPub, issuer: issuer, expiration: expiration}
	if privateKeyPath == "" {
		return m, nil
	}

	edPriv, err := readPrivateKey(privateKeyPath)
	if err != nil {
		return nil, err
	}
	// Catch a private key from one environment paired with another's public key.
	if !bytes.Equal(edPriv.Public().(ed25519.PublicKey), edPub) {
		return nil, fmt.Errorf("auth: public key does not match private key")
	}
	m.privateKey = edPriv
	return m, nil
}

func readPrivateKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path) //nolint:gosec // paths come from validated config, not user input
	if err != nil {
		return nil, fmt.Errorf("auth: read private key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("auth: decode private key PEM")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("auth: parse private key: %w", err)
	}
	ed, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("auth: private key is not Ed25519")
	}
	return ed, nil
}

func readPublicKey(path string) (ed25519.PublicKey, error) {
	data, err := os.ReadFile(path) //nolint:gosec // paths come from validated config, not user input
	if err != nil {
		return nil, fmt.Errorf("auth: read public key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("auth: decode public key PEM")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("auth: parse public key: %w", err)
	}
	ed, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("auth: public key is not Ed25519")
	}
	return ed, nil
}

// CanIssue reports whether the manager holds a private key.
func (m *JWTManager) CanIssue() bool { return m.privateKey != nil }

// IssueToken creates a signed JWT for subject acting within tenantID.
// A ttl of zero uses the manager's default expiration.
func (m *JWTManager) IssueToken(subject, tenantID string, role model.Role, ttl time.Duration) (string, time.Time, error) {
	if m.privateKey == nil {
		return "", time.Time{}, ErrCannotIssue
	}
	if subject == "" {
		return "", time.Time{}, fmt.Errorf("auth: subject is required")
	}
	if model.RoleRank(role) == 0 {
		return "", time.Time{}, fmt.Errorf("auth: unknown role %q", role)
	}
	if err := model.ValidateTenantID(tenantID); err != nil {
		return "", time.Time{}, fmt.Errorf("auth: %w", err)
	}
	if ttl <= 0 {
		ttl = m.expiration
	}

	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.New().String(),
		},
		TenantID: tenantID,
		Role:     role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(m.privateKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, exp, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (m *JWTManager) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return m.publicKey, nil
		},
		jwt.WithAudience(Audience),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("auth: validate token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("auth: token has no subject")
	}
	if model.RoleRank(claims.Role) == 0 {
		return nil, fmt.Errorf("auth: unknown role %q", claims.Role)
	}
	if err := model.ValidateTenantID(claims.TenantID); err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	return claims, nil
}
