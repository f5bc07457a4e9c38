//go:build darwin

package auth

import (
	touchid "github.com/lox/go-touchid"
)

// touchIDAuthenticator evaluates ceremonies through LocalAuthentication. On
// macOS the keychain runs the ceremony itself when a protected item is read,
// so Evaluate is only reached by stores that cannot.
type touchIDAuthenticator struct{}

// New returns the platform Authenticator.
func New() Authenticator {
	return &touchIDAuthenticator{}
}

func (a *touchIDAuthenticator) CanEvaluate(policy Policy) bool {
	// go-touchid exposes no probe that avoids a prompt. Enrollment problems
	// surface when the keychain rejects the access policy, so availability
	// is assumed here.
	return true
}

func (a *touchIDAuthenticator) Evaluate(policy Policy, reason string) error {
	ok, err := touchid.Authenticate(reason)
	if err != nil {
		return err
	}
	if !ok {
		return ErrDenied
	}
	return nil
}
