package guard

import (
	"errors"

	"github.com/kestelyn/bioguard/secret"
)

// The store sentinels are re-exported so callers check every retrieval
// outcome against this package alone.
var (
	ErrNotFound             = secret.ErrNotFound
	ErrUserCancelled        = secret.ErrUserCancelled
	ErrAuthenticationFailed = secret.ErrAuthFailed
	ErrPolicyConstruction   = secret.ErrPolicyUnsupported

	// ErrPayloadCorrupt means the stored payload no longer decodes. This is
	// a data-integrity error, not a security one.
	ErrPayloadCorrupt = errors.New("guard: stored payload did not decode")
)

// WriteError reports a persistence failure during Store. The raw platform
// status stays reachable through errors.As on *secret.StatusError.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string { return "guard: credential write failed: " + e.Err.Error() }

func (e *WriteError) Unwrap() error { return e.Err }

// StorageError reports a platform failure outside the named retrieval
// outcomes, preserving the underlying status for diagnostics.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string { return "guard: storage failure: " + e.Err.Error() }

func (e *StorageError) Unwrap() error { return e.Err }
