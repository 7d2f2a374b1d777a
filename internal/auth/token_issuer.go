package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultTokenIssuer = "satisfaction-dashboard"
)

var (
	ErrMissingSigningSecret = errors.New("token issuer: signing secret required")
	ErrMissingCookieName    = errors.New("token issuer: cookie name required")
	ErrInvalidTokenTTL      = errors.New("token issuer: ttl must be positive")
	ErrMissingEmail         = errors.New("token issuer: email required")
	ErrMissingSessionToken  = errors.New("token issuer: session token required")
	ErrInvalidSessionToken  = errors.New("token issuer: invalid session token")
	ErrExpiredSessionToken  = errors.New("token issuer: session token expired")
)

// AdminClaims is the payload of an admin session token.
type AdminClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenIssuerConfig configures admin session tokens.
type TokenIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	CookieName    string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// TokenIssuer issues and validates HS256 admin session tokens carried in a cookie.
type TokenIssuer struct {
	signingSecret []byte
	issuer        string
	cookieName    string
	ttl           time.Duration
	clock         func() time.Time
}

func NewTokenIssuer(cfg TokenIssuerConfig) (*TokenIssuer, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSigningSecret
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		return nil, ErrMissingCookieName
	}
	if cfg.TokenTTL <= 0 {
		return nil, ErrInvalidTokenTTL
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = defaultTokenIssuer
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenIssuer{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		cookieName:    cookieName,
		ttl:           cfg.TokenTTL,
		clock:         clock,
	}, nil
}

func (i *TokenIssuer) CookieName() string {
	return i.cookieName
}

func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a session token for email and returns it with its lifetime in seconds.
func (i *TokenIssuer) Issue(email string) (string, int64, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", 0, ErrMissingEmail
	}

	now := i.clock().UTC()
	expiresAt := now.Add(i.ttl)
	claims := AdminClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.signingSecret)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(expiresAt.Sub(now).Seconds()), nil
}

// Validate checks signature, issuer and expiry and returns the claims.
func (i *TokenIssuer) Validate(tokenString string) (AdminClaims, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return AdminClaims{}, ErrMissingSessionToken
	}

	claims := &AdminClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrInvalidSessionToken, t.Method.Alg())
			}
			return i.signingSecret, nil
		},
		jwt.WithTimeFunc(i.clock),
		jwt.WithIssuer(i.issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return AdminClaims{}, ErrExpiredSessionToken
		}
		return AdminClaims{}, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return AdminClaims{}, ErrInvalidSessionToken
	}
	if normalizeEmail(claims.Email) == "" {
		return AdminClaims{}, ErrMissingEmail
	}
	return *claims, nil
}

// ValidateRequest reads the session cookie from r and validates it.
func (i *TokenIssuer) ValidateRequest(r *http.Request) (AdminClaims, error) {
	if r == nil {
		return AdminClaims{}, ErrMissingSessionToken
	}
	cookie, err := r.Cookie(i.cookieName)
	if err != nil || cookie == nil {
		return AdminClaims{}, ErrMissingSessionToken
	}
	return i.Validate(cookie.Value)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
