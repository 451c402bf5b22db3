package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrHandleInvalid is returned for any handle that fails decoding or
// signature verification, tampered and wrong-key cases included.
var ErrHandleInvalid = errors.New("invalid access handle")

// Config holds the signing parameters for access handles.
type Config struct {
	// Secret is the process-wide symmetric key. Required.
	Secret []byte
	// Issuer is stamped into and checked on every handle when set.
	Issuer string
	// Leeway tolerates small clock skew during iat validation.
	Leeway time.Duration
}

// Manager signs and verifies access handles. Safe for concurrent use.
type Manager struct {
	config Config
}

// accessClaims carries the opaque access secret. The claim name is part of
// the wire contract with existing clients.
type accessClaims struct {
	Token string `json:"token"`
	jwt.RegisteredClaims
}

// NewManager validates the config and returns a handle [Manager].
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("hs256 requires a signing secret")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	return &Manager{config: cfg}, nil
}

// WrapAccess produces a signed handle whose payload carries only the opaque
// access secret plus bookkeeping claims (jti, iat, optional iss). Expiration
// is deliberately absent: the server-side record is the sole authority.
func (m *Manager) WrapAccess(accessSecret string, now time.Time) (string, error) {
	if accessSecret == "" {
		return "", errors.New("empty access secret")
	}

	claims := accessClaims{
		Token: accessSecret,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			IssuedAt: jwt.NewNumericDate(now),
			Issuer:   m.config.Issuer,
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
}

// UnwrapAccess verifies the handle signature and extracts the opaque access
// secret. Signing method is pinned to HS256; anything else is rejected before
// key material is consulted.
func (m *Manager) UnwrapAccess(handle string) (string, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(handle, &accessClaims{}, func(t *jwt.Token) (interface{}, error) {
		return m.config.Secret, nil
	})
	if err != nil {
		return "", ErrHandleInvalid
	}

	claims, ok := parsed.Claims.(*accessClaims)
	if !ok || !parsed.Valid || claims.Token == "" {
		return "", ErrHandleInvalid
	}

	return claims.Token, nil
}
