package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/satisfaction/internal/events"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/remote"
	"go.uber.org/zap"
)

var (
	ErrMissingCredentials = errors.New("auth: email and password required")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrNotAdmin           = errors.New("auth: account is not allowed to access the dashboard")
	ErrAuthUnavailable    = errors.New("auth: sign-in service unavailable")
)

// PasswordSigner verifies email/password credentials against the hosted auth service.
type PasswordSigner interface {
	SignInWithPassword(ctx context.Context, email, password string) (remote.AuthUser, error)
}

// AuthState is broadcast whenever an admin signs in or out.
type AuthState struct {
	Email    string
	SignedIn bool
}

// Session is an issued dashboard session.
type Session struct {
	Email     string `json:"email"`
	Token     string `json:"-"`
	ExpiresIn int64  `json:"expires_in"`
}

// Authenticator signs admins in through the hosted auth service, applies the access
// policy and issues session tokens.
type Authenticator struct {
	signer    PasswordSigner
	policy    AccessPolicy
	issuer    *TokenIssuer
	logger    *zap.Logger
	observers events.Observers[AuthState]
}

func NewAuthenticator(signer PasswordSigner, policy AccessPolicy, issuer *TokenIssuer, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{signer: signer, policy: policy, issuer: issuer, logger: logger}
}

// Login verifies the credentials and, when the account passes the policy, issues a session.
func (a *Authenticator) Login(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return Session{}, ErrMissingCredentials
	}

	user, err := a.signer.SignInWithPassword(ctx, email, password)
	if err != nil {
		var remoteErr *remote.Error
		if errors.As(err, &remoteErr) && remoteErr.Status >= 400 && remoteErr.Status < 500 {
			a.logger.Info("admin sign-in rejected", zap.String("email", email), zap.Error(err))
			return Session{}, ErrInvalidCredentials
		}
		a.logger.Error("admin sign-in failed", zap.String("email", email), zap.Error(err))
		return Session{}, errors.Join(ErrAuthUnavailable, err)
	}

	signedInEmail := normalizeEmail(user.Email)
	if signedInEmail == "" {
		signedInEmail = email
	}
	if !a.policy.Allowed(signedInEmail) {
		a.logger.Warn("admin access denied by policy", zap.String("email", signedInEmail))
		return Session{}, ErrNotAdmin
	}

	token, expiresIn, err := a.issuer.Issue(signedInEmail)
	if err != nil {
		return Session{}, err
	}
	a.logger.Info("admin signed in", zap.String("email", signedInEmail))
	a.observers.Notify(AuthState{Email: signedInEmail, SignedIn: true})
	return Session{Email: signedInEmail, Token: token, ExpiresIn: expiresIn}, nil
}

// Logout announces that email's session has ended. Tokens are stateless; the caller
// clears the cookie.
func (a *Authenticator) Logout(email string) {
	email = normalizeEmail(email)
	a.logger.Info("admin signed out", zap.String("email", email))
	a.observers.Notify(AuthState{Email: email, SignedIn: false})
}

// OnAuthStateChange registers handler for sign-in and sign-out and returns its
// unsubscribe function.
func (a *Authenticator) OnAuthStateChange(handler func(AuthState)) func() {
	return a.observers.Add(handler)
}

// Authorize validates a session token and re-applies the access policy, so tightening
// the allow-list takes effect for sessions already issued.
func (a *Authenticator) Authorize(token string) (AdminClaims, error) {
	claims, err := a.issuer.Validate(token)
	if err != nil {
		return AdminClaims{}, err
	}
	if !a.policy.Allowed(claims.Email) {
		return AdminClaims{}, ErrNotAdmin
	}
	return claims, nil
}

func (a *Authenticator) Issuer() *TokenIssuer {
	return a.issuer
}
