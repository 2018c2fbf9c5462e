package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Mukulsharnagat01/Collegedunia/internal/domain"
)

// Claims are carried by an access token.
type Claims struct {
	Role  string `json:"role"`
	Name  string `json:"name"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// RefreshClaims are carried by a refresh token. ID (jti) makes every token
// unique even when two are issued for one user in the same second.
type RefreshClaims struct {
	jwt.RegisteredClaims
}

// Config configures a TokenIssuer.
type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	Issuer        string
}

// TokenIssuer signs and verifies access and refresh tokens. The two token
// kinds use distinct secrets, so a leaked access secret cannot mint sessions.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	issuer        string
	now           func() time.Time
}

// Option customizes a TokenIssuer.
type Option func(*TokenIssuer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *TokenIssuer) { m.now = now }
}

// NewTokenIssuer validates cfg and returns an issuer.
func NewTokenIssuer(cfg Config, opts ...Option) (*TokenIssuer, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("token issuer: secrets must not be empty")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("token issuer: access and refresh secrets must differ")
	}
	if cfg.AccessExpiry <= 0 || cfg.RefreshExpiry <= 0 {
		return nil, errors.New("token issuer: expiries must be positive")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "college-auth"
	}

	m := &TokenIssuer{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessExpiry:  cfg.AccessExpiry,
		refreshExpiry: cfg.RefreshExpiry,
		issuer:        cfg.Issuer,
		now:           time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// AccessExpiry is the lifetime of access tokens.
func (m *TokenIssuer) AccessExpiry() time.Duration { return m.accessExpiry }

// RefreshExpiry is the lifetime of refresh tokens.
func (m *TokenIssuer) RefreshExpiry() time.Duration { return m.refreshExpiry }

// IssueAccessToken signs an access token for u and returns it with its expiry.
func (m *TokenIssuer) IssueAccessToken(u *domain.User) (string, time.Time, error) {
	now := m.now().UTC()
	exp := now.Add(m.accessExpiry)
	claims := &Claims{
		Role:  u.Role,
		Name:  u.Name,
		Email: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.accessSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, exp, nil
}

// IssueRefreshToken signs a refresh token for u. The caller must register
// it with the Session Registry before handing it out.
func (m *TokenIssuer) IssueRefreshToken(u *domain.User) (string, *RefreshClaims, error) {
	now := m.now().UTC()
	claims := &RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.ID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.refreshExpiry)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.refreshSecret)
	if err != nil {
		return "", nil, fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, claims, nil
}

// ParseAccessToken verifies signature, expiry and issuer of an access token.
func (m *TokenIssuer) ParseAccessToken(token string) (*Claims, error) {
	claims := &Claims{}
	if err := m.parse(token, claims, m.accessSecret); err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("parse access token: missing subject")
	}
	return claims, nil
}

// ParseRefreshToken verifies signature, expiry and issuer of a refresh token.
func (m *TokenIssuer) ParseRefreshToken(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(token, claims, m.refreshSecret); err != nil {
		return nil, fmt.Errorf("parse refresh token: %w", err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, errors.New("parse refresh token: missing subject or id")
	}
	return claims, nil
}

func (m *TokenIssuer) parse(token string, claims jwt.Claims, secret []byte) error {
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	return err
}
