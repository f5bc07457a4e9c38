package secret

import (
	"errors"
	"testing"

	"github.com/kestelyn/bioguard/auth"
)

type scriptedAuth struct {
	evalErr   error
	evalCalls int
}

func (a *scriptedAuth) CanEvaluate(auth.Policy) bool { return true }

func (a *scriptedAuth) Evaluate(auth.Policy, string) error {
	a.evalCalls++
	return a.evalErr
}

func testPolicy() AccessPolicy {
	return AccessPolicy{
		Policy:        auth.BiometricOrPasscode(),
		Accessibility: AccessibleWhenUnlocked,
		Scope:         CurrentEnrollment,
	}
}

// Every store that composes its ceremony shares this mapping; a payload must
// never be released unless it returns nil.
func TestRunCeremonyOutcomes(t *testing.T) {
	prompt := Prompt{Reason: "Unlock"}

	tests := []struct {
		name    string
		evalErr error
		want    error
	}{
		{"success", nil, nil},
		{"cancelled", auth.ErrCancelled, ErrUserCancelled},
		{"denied", auth.ErrDenied, ErrAuthFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &scriptedAuth{evalErr: tt.evalErr}
			err := runCeremony(a, testPolicy(), prompt)
			if !errors.Is(err, tt.want) {
				t.Errorf("runCeremony = %v, want %v", err, tt.want)
			}
			if a.evalCalls != 1 {
				t.Errorf("ran %d ceremonies, want exactly 1", a.evalCalls)
			}
		})
	}
}

func TestRunCeremonyWrapsPlatformErrors(t *testing.T) {
	platformErr := errors.New("dbus: connection closed")
	a := &scriptedAuth{evalErr: platformErr}

	err := runCeremony(a, testPolicy(), Prompt{})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("runCeremony = %v, want *StatusError", err)
	}
	if !errors.Is(err, platformErr) {
		t.Error("platform error lost in the wrap")
	}
}
