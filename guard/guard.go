// Package guard is the policy layer over one biometric-protected credential.
// It decides when a caller must re-authenticate, how the credential is
// protected at rest, and how every failure mode is surfaced. The secure
// store and the authenticator are injected; the guard implements neither.
package guard

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/kestelyn/bioguard/auth"
	"github.com/kestelyn/bioguard/secret"
)

// cacheInterval is how long a completed ceremony stays observable through
// CacheValid. The cache is advisory: it informs UI decisions such as
// skipping a spinner, and never bypasses the store's own enforcement.
const cacheInterval = 3600 * time.Second

// Config carries the construction-time collaborators of a Guard.
type Config struct {
	// Address is the fixed location of the managed item.
	Address secret.Address
	// Prompt is shown to the user during the retrieval ceremony.
	Prompt secret.Prompt
	// Logger receives structured events; nil discards them.
	Logger *slog.Logger
	// Now is the clock, for tests. Nil means time.Now.
	Now func() time.Time
}

// Guard manages one protected credential. Construct a single Guard at
// startup and pass it by reference.
//
// Operations that reach the store block for as long as the authentication UI
// is up, so Retrieve must be called off any UI-owning goroutine. The guard
// adds no mutual exclusion around store access: concurrent Retrieve calls
// must be serialized by the caller or the user sees duplicate prompts. Only
// the ceremony cache is mutex-protected.
type Guard struct {
	store  secret.Store
	auth   auth.Authenticator
	addr   secret.Address
	prompt secret.Prompt
	log    *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	ceremonyAt time.Time // zero means no ceremony recorded
}

// New builds a Guard over the given store and authenticator.
func New(store secret.Store, authenticator auth.Authenticator, cfg Config) *Guard {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Guard{
		store:  store,
		auth:   authenticator,
		addr:   cfg.Address,
		prompt: cfg.Prompt,
		log:    logger,
		now:    now,
	}
}

// accessPolicy is the fixed policy attached to the stored credential: a
// biometric match or the device passcode, only while the device is unlocked,
// bound to the biometric enrollment set current at write time.
func accessPolicy() secret.AccessPolicy {
	return secret.AccessPolicy{
		Policy:        auth.BiometricOrPasscode(),
		Accessibility: secret.AccessibleWhenUnlocked,
		Scope:         secret.CurrentEnrollment,
	}
}

// Available reports whether a ceremony could currently succeed: sensor
// present, factors enrolled, not locked out. It never prompts and never
// touches the cache. Hard device errors fold into false; the probe is
// advisory, not a precondition the store enforces. Platforms whose
// authenticator has no promptless probe (macOS) always answer true here,
// and lockout or missing enrollment only surfaces when the ceremony runs.
func (g *Guard) Available() bool {
	return g.auth.CanEvaluate(accessPolicy().Policy)
}

// HasStoredSecret reports whether a credential is stored. The existence
// query touches attributes only, so checking presence never prompts.
func (g *Guard) HasStoredSecret() bool {
	ok, err := g.store.Exists(g.addr)
	if err != nil {
		g.log.Debug("existence probe failed", "address", g.addr.String(), "error", err)
		return false
	}
	return ok
}

// Store replaces the credential: any existing item is deleted, then the new
// payload is written with the access policy attached. Replacement is never
// in place. Storing is not authenticating, so the ceremony cache is left
// alone.
//
// ErrPolicyConstruction means the platform cannot build the requested
// factor combinator; a *WriteError wraps any other persistence failure.
func (g *Guard) Store(credential []byte) error {
	if err := g.store.Delete(g.addr); err != nil && !errors.Is(err, secret.ErrNotFound) {
		return &WriteError{Err: err}
	}
	payload, err := encodePayload(credential)
	if err != nil {
		return &WriteError{Err: err}
	}
	if err := g.store.Write(g.addr, payload, accessPolicy()); err != nil {
		if errors.Is(err, secret.ErrPolicyUnsupported) {
			return err
		}
		g.log.Warn("credential write failed", "address", g.addr.String(), "error", err)
		return &WriteError{Err: err}
	}
	g.log.Info("credential stored", "address", g.addr.String())
	return nil
}

// Retrieve runs the single authentication ceremony through the store and
// returns the credential bytes. The caller owns the returned slice and
// should purge it after use.
//
// Each outcome stays distinct: ErrUserCancelled (expected, not a failure),
// ErrAuthenticationFailed, ErrNotFound, ErrPayloadCorrupt, or a
// *StorageError preserving the raw platform status. The guard never retries
// a failed ceremony; retrying must be a deliberate user action.
func (g *Guard) Retrieve() ([]byte, error) {
	payload, err := g.store.Read(g.addr, accessPolicy(), g.prompt)
	if err != nil {
		switch {
		case errors.Is(err, secret.ErrUserCancelled):
			g.log.Debug("ceremony cancelled", "address", g.addr.String())
			return nil, err
		case errors.Is(err, secret.ErrAuthFailed):
			g.log.Warn("ceremony failed", "address", g.addr.String())
			return nil, err
		case errors.Is(err, secret.ErrNotFound):
			return nil, err
		default:
			g.log.Warn("credential read failed", "address", g.addr.String(), "error", err)
			return nil, &StorageError{Err: err}
		}
	}
	credential, err := decodePayload(payload)
	if err != nil {
		// Data integrity, not security: the caller should delete and
		// re-provision rather than retry.
		g.log.Warn("stored payload corrupt", "address", g.addr.String())
		return nil, err
	}
	g.recordCeremony()
	g.log.Info("credential released", "address", g.addr.String())
	return credential, nil
}

// Delete removes the stored credential. Absence is success.
func (g *Guard) Delete() error {
	err := g.store.Delete(g.addr)
	if err != nil && !errors.Is(err, secret.ErrNotFound) {
		return &StorageError{Err: err}
	}
	return nil
}

// ResetAll forgets the ceremony cache and removes the stored credential.
// This is the only operation that touches both together; it backs sign-out
// and forget-device flows.
func (g *Guard) ResetAll() error {
	g.mu.Lock()
	g.ceremonyAt = time.Time{}
	g.mu.Unlock()
	g.log.Info("guard reset", "address", g.addr.String())
	return g.Delete()
}

// CacheValid reports whether a ceremony completed within the last
// cacheInterval. False before any success is recorded. Expiry is observed
// lazily: the record is cleared the first time it is seen expired, not
// evicted by a timer.
//
// The answer is informational only. It never gates a bypass of the store's
// authentication; the platform ceremony governs that independently.
func (g *Guard) CacheValid() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ceremonyAt.IsZero() {
		return false
	}
	if g.now().Sub(g.ceremonyAt) >= cacheInterval {
		g.ceremonyAt = time.Time{}
		return false
	}
	return true
}

func (g *Guard) recordCeremony() {
	g.mu.Lock()
	g.ceremonyAt = g.now()
	g.mu.Unlock()
}
