//go:build linux || freebsd || openbsd || netbsd || dragonfly

package auth

import (
	"strings"

	"github.com/amenzhinsky/go-polkit"
)

const unlockActionID = "com.kestelyn.bioguard.unlock"

// polkitAuthenticator evaluates ceremonies through the polkit authority. The
// installed policy file decides whether the agent asks for a fingerprint or
// the account password, which matches the biometric-or-passcode policy.
type polkitAuthenticator struct {
	actionID string
}

// New returns the platform Authenticator.
func New() Authenticator {
	return &polkitAuthenticator{actionID: unlockActionID}
}

func (a *polkitAuthenticator) CanEvaluate(policy Policy) bool {
	authority, err := polkit.NewAuthority()
	if err != nil {
		return false
	}
	// Without the interaction flag polkit answers immediately and no agent
	// dialog is shown.
	result, err := authority.CheckAuthorization(a.actionID, nil, 0, "")
	if err != nil {
		return false
	}
	return probeCanSucceed(result.IsAuthorized, result.IsChallenge)
}

// probeCanSucceed interprets a no-interaction authorization answer: a
// ceremony can pass when the action is already authorized or an agent could
// challenge for it. A flat denial, or no registered agent, means it cannot.
func probeCanSucceed(isAuthorized, isChallenge bool) bool {
	return isAuthorized || isChallenge
}

func (a *polkitAuthenticator) Evaluate(policy Policy, reason string) error {
	authority, err := polkit.NewAuthority()
	if err != nil {
		return ErrUnavailable
	}
	result, err := authority.CheckAuthorization(
		a.actionID,
		map[string]string{"polkit.message": reason},
		polkit.CheckAuthorizationAllowUserInteraction, "",
	)
	if err != nil {
		// Dismissing the agent dialog surfaces as a Cancelled dbus error.
		if strings.Contains(err.Error(), "Cancelled") {
			return ErrCancelled
		}
		return err
	}
	if !result.IsAuthorized {
		return ErrDenied
	}
	return nil
}
