package feedback

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/MarcoPoloResearchLab/satisfaction/internal/remote"
)

func TestIsPermissionDenied(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil", err: nil, expected: false},
		{name: "status 401", err: &remote.Error{Status: 401}, expected: true},
		{name: "status 403", err: &remote.Error{Status: 403}, expected: true},
		{name: "status 404", err: &remote.Error{Status: 404}, expected: false},
		{name: "status 500", err: &remote.Error{Status: 500, Code: "XX000"}, expected: false},
		{name: "sqlstate 42501", err: &remote.Error{Code: "42501"}, expected: true},
		{name: "hyphenated code", err: &remote.Error{Code: "PERMISSION-DENIED"}, expected: true},
		{name: "underscored code", err: &remote.Error{Code: "firestore/permission_denied"}, expected: true},
		{name: "unique violation", err: &remote.Error{Status: 409, Code: "23505"}, expected: false},
		{name: "wrapped denial", err: fmt.Errorf("insert: %w", &remote.Error{Status: 403}), expected: true},
		{name: "plain error", err: errors.New("permission-denied"), expected: false},
		{name: "context deadline", err: context.DeadlineExceeded, expected: false},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			if got := IsPermissionDenied(testCase.err); got != testCase.expected {
				t.Fatalf("expected %v, got %v", testCase.expected, got)
			}
			expectedClass := FailureTransient
			if testCase.expected {
				expectedClass = FailureAuthDenied
			}
			if got := Classify(testCase.err); got != expectedClass {
				t.Fatalf("expected class %s, got %s", expectedClass, got)
			}
		})
	}
}

func TestIsDuplicateKey(t *testing.T) {
	if !isDuplicateKey(&remote.Error{Code: "23505"}) {
		t.Fatalf("expected sqlstate 23505 to be a duplicate")
	}
	if !isDuplicateKey(&remote.Error{Status: 409}) {
		t.Fatalf("expected HTTP 409 to be a duplicate")
	}
	if isDuplicateKey(&remote.Error{Status: 503}) {
		t.Fatalf("503 is not a duplicate")
	}
}
