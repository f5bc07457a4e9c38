//go:build linux || freebsd || openbsd || netbsd || dragonfly

package secret

import (
	"github.com/keybase/dbus"
	"github.com/keybase/go-keychain/secretservice"

	"github.com/kestelyn/bioguard/auth"
)

const collection = dbus.ObjectPath(secretservice.DefaultCollection)

// NewStore opens the freedesktop Secret Service store. The Secret Service
// cannot attach biometric policies to items, so the ceremony is composed
// from authenticator and must pass before the payload is released.
func NewStore(authenticator auth.Authenticator) (Store, error) {
	service, err := secretservice.NewService()
	if err != nil {
		return nil, err
	}
	service.Unlock([]dbus.ObjectPath{collection})
	session, err := service.OpenSession(secretservice.AuthenticationDHAES)
	if err != nil {
		return nil, err
	}
	return &secretServiceStore{
		service: service,
		session: session,
		auth:    authenticator,
	}, nil
}

type secretServiceStore struct {
	service *secretservice.SecretService
	session *secretservice.Session
	auth    auth.Authenticator
}

func (s *secretServiceStore) lookup(addr Address) ([]dbus.ObjectPath, error) {
	return s.service.SearchCollection(collection, map[string]string{
		"service": addr.Service,
		"account": addr.Account,
	})
}

func (s *secretServiceStore) Exists(addr Address) (bool, error) {
	items, err := s.lookup(addr)
	if err != nil {
		return false, &StatusError{Op: "exists", Err: err}
	}
	return len(items) > 0, nil
}

func (s *secretServiceStore) Write(addr Address, payload []byte, policy AccessPolicy) error {
	sec, err := s.session.NewSecret(payload)
	if err != nil {
		return &StatusError{Op: "write", Err: err}
	}
	props := secretservice.NewSecretProperties(addr.Service, map[string]string{
		"service": addr.Service,
		"account": addr.Account,
	})
	_, err = s.service.CreateItem(collection, props, sec, secretservice.ReplaceBehaviorReplace)
	if err != nil {
		return &StatusError{Op: "write", Err: err}
	}
	return nil
}

func (s *secretServiceStore) Delete(addr Address) error {
	items, err := s.lookup(addr)
	if err != nil {
		return &StatusError{Op: "delete", Err: err}
	}
	for _, item := range items {
		if err := s.service.DeleteItem(item); err != nil {
			return &StatusError{Op: "delete", Err: err}
		}
	}
	return nil
}

// Read checks existence before running the ceremony so an absent item never
// costs the user a prompt.
func (s *secretServiceStore) Read(addr Address, policy AccessPolicy, prompt Prompt) ([]byte, error) {
	items, err := s.lookup(addr)
	if err != nil {
		return nil, &StatusError{Op: "read", Err: err}
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	if err := runCeremony(s.auth, policy, prompt); err != nil {
		return nil, err
	}
	payload, err := s.service.GetSecret(items[0], *s.session)
	if err != nil {
		return nil, &StatusError{Op: "read", Err: err}
	}
	return payload, nil
}
