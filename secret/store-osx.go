//go:build darwin

package secret

import (
	"github.com/keybase/go-keychain"

	"github.com/kestelyn/bioguard/auth"
)

// NewStore returns the macOS keychain store. go-keychain exposes no
// kSecAccessControl binding, so the keychain alone would release a
// generic-password item to the app that created it without any prompt. The
// ceremony is therefore composed from authenticator, exactly like the other
// stores; the accessibility class still constrains extraction to the
// unlocked device.
func NewStore(authenticator auth.Authenticator) (Store, error) {
	return &keychainStore{auth: authenticator}, nil
}

type keychainStore struct {
	auth auth.Authenticator
}

// errSecUserCanceled is the OSStatus the keychain returns when the user
// dismisses the unlock dialog. go-keychain does not name it.
const errSecUserCanceled = keychain.Error(-128)

func (s *keychainStore) Exists(addr Address) (bool, error) {
	query := keychain.NewItem()
	query.SetSecClass(keychain.SecClassGenericPassword)
	query.SetService(addr.Service)
	query.SetAccount(addr.Account)
	query.SetMatchLimit(keychain.MatchLimitOne)
	query.SetReturnAttributes(true)
	results, err := keychain.QueryItem(query)
	if err == keychain.ErrorItemNotFound {
		return false, nil
	}
	if err != nil {
		return false, mapKeychainError("exists", err)
	}
	return len(results) > 0, nil
}

func (s *keychainStore) Write(addr Address, payload []byte, policy AccessPolicy) error {
	accessible, err := accessibleFor(policy)
	if err != nil {
		return err
	}
	item := keychain.NewItem()
	item.SetSecClass(keychain.SecClassGenericPassword)
	item.SetService(addr.Service)
	item.SetAccount(addr.Account)
	item.SetLabel(addr.Service)
	item.SetData(payload)
	item.SetSynchronizable(keychain.SynchronizableNo)
	item.SetAccessible(accessible)
	err = keychain.AddItem(item)
	if err == keychain.ErrorDuplicateItem {
		// The caller deletes before writing, so a duplicate means a racing
		// writer. Replace rather than fail.
		if err := keychain.DeleteGenericPasswordItem(addr.Service, addr.Account); err != nil {
			return mapKeychainError("write", err)
		}
		err = keychain.AddItem(item)
	}
	if err != nil {
		return mapKeychainError("write", err)
	}
	return nil
}

func (s *keychainStore) Delete(addr Address) error {
	err := keychain.DeleteGenericPasswordItem(addr.Service, addr.Account)
	if err == keychain.ErrorItemNotFound {
		return nil
	}
	if err != nil {
		return mapKeychainError("delete", err)
	}
	return nil
}

// Read checks existence with an attributes-only query, runs the composed
// ceremony, and only then asks the keychain for the payload. An absent item
// never costs the user a prompt.
func (s *keychainStore) Read(addr Address, policy AccessPolicy, prompt Prompt) ([]byte, error) {
	ok, err := s.Exists(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	if err := runCeremony(s.auth, policy, prompt); err != nil {
		return nil, err
	}
	query := keychain.NewItem()
	query.SetSecClass(keychain.SecClassGenericPassword)
	query.SetService(addr.Service)
	query.SetAccount(addr.Account)
	query.SetMatchLimit(keychain.MatchLimitOne)
	query.SetReturnData(true)
	results, err := keychain.QueryItem(query)
	if err != nil {
		return nil, mapKeychainError("read", err)
	}
	if len(results) == 0 {
		return nil, ErrNotFound
	}
	return results[0].Data, nil
}

// accessibleFor maps the declarative policy onto the keychain accessibility
// classes. The keychain exposes no AND combinator over factors.
func accessibleFor(policy AccessPolicy) (keychain.Accessible, error) {
	if policy.Combinator == auth.AllOf {
		return 0, ErrPolicyUnsupported
	}
	switch policy.Accessibility {
	case AccessibleWhenUnlocked:
		if policy.Scope == CurrentEnrollment {
			// Passcode-set-this-device-only is the closest the API gets to
			// enrollment binding: the item dies with the protection state.
			return keychain.AccessibleWhenPasscodeSetThisDeviceOnly, nil
		}
		return keychain.AccessibleWhenUnlockedThisDeviceOnly, nil
	default:
		return 0, ErrPolicyUnsupported
	}
}

func mapKeychainError(op string, err error) error {
	kcErr, ok := err.(keychain.Error)
	if !ok {
		return &StatusError{Op: op, Err: err}
	}
	switch kcErr {
	case keychain.ErrorItemNotFound:
		return ErrNotFound
	case keychain.ErrorAuthFailed:
		return ErrAuthFailed
	case errSecUserCanceled:
		return ErrUserCancelled
	default:
		return &StatusError{Op: op, Code: int32(kcErr), Err: err}
	}
}
