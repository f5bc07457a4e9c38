package secret

import (
	"errors"

	"github.com/99designs/keyring"

	"github.com/kestelyn/bioguard/auth"
)

// NewKeyringStore opens the OS keyring through 99designs/keyring. It is the
// fallback when the native store cannot be constructed, e.g. no Secret
// Service on the session bus. The keyring attaches no policy to items, so
// like the other composed stores the ceremony runs through authenticator.
func NewKeyringStore(service string, authenticator auth.Authenticator) (Store, error) {
	ring, err := keyring.Open(keyring.Config{ServiceName: service})
	if err != nil {
		return nil, err
	}
	return &keyringStore{ring: ring, auth: authenticator}, nil
}

type keyringStore struct {
	ring keyring.Keyring
	auth auth.Authenticator
}

// Exists checks key membership only. Fetching the item would pull the
// payload and, on the file and pass backends, raise an unlock prompt.
func (s *keyringStore) Exists(addr Address) (bool, error) {
	keys, err := s.ring.Keys()
	if err != nil {
		return false, &StatusError{Op: "exists", Err: err}
	}
	for _, key := range keys {
		if key == addr.Account {
			return true, nil
		}
	}
	return false, nil
}

func (s *keyringStore) Write(addr Address, payload []byte, policy AccessPolicy) error {
	err := s.ring.Set(keyring.Item{
		Key:   addr.Account,
		Data:  payload,
		Label: addr.Service,
	})
	if err != nil {
		return &StatusError{Op: "write", Err: err}
	}
	return nil
}

func (s *keyringStore) Delete(addr Address) error {
	err := s.ring.Remove(addr.Account)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return &StatusError{Op: "delete", Err: err}
	}
	return nil
}

// Read checks membership, runs the composed ceremony, and only then pulls
// the payload, so neither an absent item nor a refused ceremony touches the
// backend's own unlock path.
func (s *keyringStore) Read(addr Address, policy AccessPolicy, prompt Prompt) ([]byte, error) {
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
	item, err := s.ring.Get(addr.Account)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, &StatusError{Op: "read", Err: err}
	}
	return item.Data, nil
}
