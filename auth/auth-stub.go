//go:build !linux && !freebsd && !openbsd && !netbsd && !dragonfly && !darwin

package auth

// New returns an Authenticator for platforms without a native evaluator.
// Every ceremony is reported as unavailable; the composed stores surface
// that to the caller instead of releasing the payload.
func New() Authenticator {
	return unavailable{}
}

type unavailable struct{}

func (unavailable) CanEvaluate(Policy) bool { return false }

func (unavailable) Evaluate(Policy, string) error { return ErrUnavailable }
