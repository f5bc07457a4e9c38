//go:build windows

package secret

import (
	"errors"

	"github.com/danieljoos/wincred"

	"github.com/kestelyn/bioguard/auth"
)

// NewStore returns the Windows Credential Manager store. Credential Manager
// attaches no authentication policy of its own, so the ceremony is composed
// from authenticator and must pass before the blob is released.
func NewStore(authenticator auth.Authenticator) (Store, error) {
	return &wincredStore{auth: authenticator}, nil
}

type wincredStore struct {
	auth auth.Authenticator
}

func target(addr Address) string {
	return addr.Service + "/" + addr.Account
}

func (s *wincredStore) Exists(addr Address) (bool, error) {
	_, err := wincred.GetGenericCredential(target(addr))
	if err != nil {
		if errors.Is(err, wincred.ErrElementNotFound) {
			return false, nil
		}
		return false, &StatusError{Op: "exists", Err: err}
	}
	return true, nil
}

func (s *wincredStore) Write(addr Address, payload []byte, policy AccessPolicy) error {
	cred := wincred.NewGenericCredential(target(addr))
	cred.CredentialBlob = payload
	cred.UserName = addr.Account
	if err := cred.Write(); err != nil {
		return &StatusError{Op: "write", Err: err}
	}
	return nil
}

func (s *wincredStore) Delete(addr Address) error {
	cred, err := wincred.GetGenericCredential(target(addr))
	if err != nil {
		if errors.Is(err, wincred.ErrElementNotFound) {
			return nil
		}
		return &StatusError{Op: "delete", Err: err}
	}
	if err := cred.Delete(); err != nil {
		return &StatusError{Op: "delete", Err: err}
	}
	return nil
}

func (s *wincredStore) Read(addr Address, policy AccessPolicy, prompt Prompt) ([]byte, error) {
	cred, err := wincred.GetGenericCredential(target(addr))
	if err != nil {
		if errors.Is(err, wincred.ErrElementNotFound) {
			return nil, ErrNotFound
		}
		return nil, &StatusError{Op: "read", Err: err}
	}
	if err := runCeremony(s.auth, policy, prompt); err != nil {
		return nil, err
	}
	return cred.CredentialBlob, nil
}
