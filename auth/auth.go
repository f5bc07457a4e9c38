// Package auth models the authentication ceremony: which factors a policy
// demands, how they combine, and the capability that evaluates them against
// the live user.
package auth

import "errors"

// Factor is a single authentication factor a policy may demand.
type Factor int

const (
	FactorBiometric Factor = iota
	FactorDevicePasscode
)

func (f Factor) String() string {
	switch f {
	case FactorBiometric:
		return "biometric"
	case FactorDevicePasscode:
		return "device-passcode"
	default:
		return "unknown"
	}
}

// Combinator says how a policy's factors combine.
type Combinator int

const (
	// AnyOf passes when at least one factor passes.
	AnyOf Combinator = iota
	// AllOf passes only when every factor passes.
	AllOf
)

// Policy is the declarative factor set a ceremony evaluates. It is plain
// data so it can be inspected and tested without touching hardware.
type Policy struct {
	Factors    []Factor
	Combinator Combinator
}

// BiometricOrPasscode is the usual unlock policy: a biometric match, with the
// device passcode as fallback.
func BiometricOrPasscode() Policy {
	return Policy{
		Factors:    []Factor{FactorBiometric, FactorDevicePasscode},
		Combinator: AnyOf,
	}
}

var (
	// ErrCancelled means the user dismissed the ceremony. This is an
	// expected outcome, not a failure.
	ErrCancelled = errors.New("auth: ceremony cancelled by user")
	// ErrDenied means the ceremony ran and the user did not pass.
	ErrDenied = errors.New("auth: authentication denied")
	// ErrUnavailable means no evaluator exists on this platform or the
	// authority could not be reached.
	ErrUnavailable = errors.New("auth: no evaluator available")
)

// Authenticator evaluates an authentication policy against the live user.
type Authenticator interface {
	// CanEvaluate reports whether the policy could currently be evaluated:
	// sensor present, factors enrolled, not locked out. It never prompts
	// and has no side effects. Hard errors fold into false.
	CanEvaluate(policy Policy) bool

	// Evaluate runs one ceremony, blocking while the authentication UI is
	// presented. It returns nil on success, ErrCancelled when the user
	// dismissed the prompt, ErrDenied when authentication failed, and any
	// other error for platform trouble.
	Evaluate(policy Policy, reason string) error
}
