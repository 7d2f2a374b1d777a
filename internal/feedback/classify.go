package feedback

import (
	"errors"
	"net/http"
	"strings"
)

// FailureClass separates failures worth retrying from ones that never will succeed.
type FailureClass string

const (
	// FailureTransient covers timeouts, DNS, 5xx, offline and anything unrecognised.
	FailureTransient FailureClass = "transient"
	// FailureAuthDenied is an access-policy rejection; retrying cannot fix it.
	FailureAuthDenied FailureClass = "auth_denied"
)

type statusCarrier interface {
	StatusCode() int
}

type codeCarrier interface {
	ErrorCode() string
}

var deniedCodeFragments = []string{"permission-denied", "permission_denied", "42501"}

// Classify maps a remote failure to its class.
func Classify(err error) FailureClass {
	if IsPermissionDenied(err) {
		return FailureAuthDenied
	}
	return FailureTransient
}

// IsPermissionDenied reports whether err carries status 401/403 or a policy-violation code.
func IsPermissionDenied(err error) bool {
	if err == nil {
		return false
	}
	var withStatus statusCarrier
	if errors.As(err, &withStatus) {
		status := withStatus.StatusCode()
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return true
		}
	}
	var withCode codeCarrier
	if errors.As(err, &withCode) {
		code := strings.ToLower(withCode.ErrorCode())
		for _, fragment := range deniedCodeFragments {
			if strings.Contains(code, fragment) {
				return true
			}
		}
	}
	return false
}

// isDuplicateKey reports a unique-constraint rejection of the minted id.
func isDuplicateKey(err error) bool {
	var withCode codeCarrier
	if errors.As(err, &withCode) && withCode.ErrorCode() == "23505" {
		return true
	}
	var withStatus statusCarrier
	return errors.As(err, &withStatus) && withStatus.StatusCode() == http.StatusConflict
}
