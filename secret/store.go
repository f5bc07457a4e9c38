// Package secret is the capability contract for the hardware-isolated
// key/value store that holds the protected credential, plus the platform
// implementations of it. The store owns the persisted layout; callers see
// only the address tuple, the access policy, and the payload bytes.
package secret

import (
	"errors"
	"fmt"

	"github.com/kestelyn/bioguard/auth"
)

// Address identifies the one item a store manages. It is fixed for the
// process lifetime.
type Address struct {
	Service string
	Account string
}

func (a Address) String() string {
	return a.Service + "/" + a.Account
}

// Accessibility constrains the device state in which the payload may be
// extracted.
type Accessibility int

const (
	// AccessibleWhenUnlocked permits extraction only while the device is
	// unlocked, and never from backups or other devices.
	AccessibleWhenUnlocked Accessibility = iota
)

// EnrollmentScope binds an item to the biometric enrollment set.
type EnrollmentScope int

const (
	// CurrentEnrollment ties the item to the enrollment set active at write
	// time. Adding or removing a fingerprint invalidates the item; the
	// store enforces this, not the caller.
	CurrentEnrollment EnrollmentScope = iota
	// AnyEnrollment accepts whatever set is enrolled at read time.
	AnyEnrollment
)

// AccessPolicy is the declarative rule attached to a stored payload at write
// time and re-evaluated by the store on every read.
type AccessPolicy struct {
	auth.Policy
	Accessibility Accessibility
	Scope         EnrollmentScope
}

// Prompt is the caller-visible surface of the ceremony. CancelLabel is only
// honored by platforms whose ceremony UI exposes a custom cancel action.
type Prompt struct {
	Reason      string
	CancelLabel string
}

var (
	// ErrNotFound means no item exists at the address.
	ErrNotFound = errors.New("secret: item not found")
	// ErrUserCancelled means the user dismissed the ceremony.
	ErrUserCancelled = errors.New("secret: ceremony cancelled by user")
	// ErrAuthFailed means the ceremony ran and did not pass.
	ErrAuthFailed = errors.New("secret: authentication failed")
	// ErrPolicyUnsupported means the platform cannot represent the
	// requested access policy, e.g. no biometric hardware at all.
	ErrPolicyUnsupported = errors.New("secret: access policy not supported by this store")
)

// StatusError carries a raw platform status that maps to none of the
// sentinel outcomes. The code is preserved for diagnostics.
type StatusError struct {
	Op   string
	Code int32
	Err  error
}

func (e *StatusError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("secret: %s failed with status %d: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("secret: %s failed: %v", e.Op, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// runCeremony evaluates the policy through a composed authenticator, mapping
// each ceremony outcome onto the store sentinels. Every store whose platform
// cannot attach the policy to the item itself must pass through here before
// releasing a payload.
func runCeremony(a auth.Authenticator, policy AccessPolicy, prompt Prompt) error {
	if err := a.Evaluate(policy.Policy, prompt.Reason); err != nil {
		switch {
		case errors.Is(err, auth.ErrCancelled):
			return ErrUserCancelled
		case errors.Is(err, auth.ErrDenied):
			return ErrAuthFailed
		default:
			return &StatusError{Op: "read", Err: err}
		}
	}
	return nil
}

// Store is the minimal capability consumed from the secure storage engine.
//
// Read runs exactly one authentication ceremony per call; Exists must never
// run one. Implementations that cannot delegate the ceremony to the platform
// store compose it from an injected Authenticator instead.
type Store interface {
	// Exists reports whether an item is present at addr. The query touches
	// attributes only, never the payload, so no ceremony can trigger.
	Exists(addr Address) (bool, error)

	// Write persists payload under addr with policy attached. It does not
	// replace: the caller deletes first.
	Write(addr Address, payload []byte, policy AccessPolicy) error

	// Delete removes the item at addr. An absent item is success.
	Delete(addr Address) error

	// Read retrieves the payload, running the ceremony described by prompt.
	// Outcomes are ErrNotFound, ErrUserCancelled, ErrAuthFailed, a
	// *StatusError, or the payload.
	Read(addr Address, policy AccessPolicy, prompt Prompt) ([]byte, error)
}
