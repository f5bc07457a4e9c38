package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// The extension sends an RSA public key during the handshake; the host
// answers with the transport key sealed to it. Every later frame is a
// secretbox under that transport key.

func encryptTransportKey(publicKeyB64 string, transportKey []byte) (string, error) {
	der, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil {
		return "", fmt.Errorf("decode public key: %w", err)
	}
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return "", fmt.Errorf("parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return "", errors.New("handshake key is not RSA")
	}
	sealed, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, rsaPub, transportKey, nil)
	if err != nil {
		return "", fmt.Errorf("seal transport key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func sealFrame(key *[32]byte, plaintext []byte) (*encryptedPayload, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	box := secretbox.Seal(nil, plaintext, &nonce, key)
	return &encryptedPayload{
		Nonce: base64.StdEncoding.EncodeToString(nonce[:]),
		Data:  base64.StdEncoding.EncodeToString(box),
	}, nil
}

func openFrame(key *[32]byte, payload *encryptedPayload) ([]byte, error) {
	nonceBytes, err := base64.StdEncoding.DecodeString(payload.Nonce)
	if err != nil || len(nonceBytes) != 24 {
		return nil, errors.New("malformed frame nonce")
	}
	box, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		return nil, errors.New("malformed frame data")
	}
	var nonce [24]byte
	copy(nonce[:], nonceBytes)
	plaintext, ok := secretbox.Open(nil, box, &nonce, key)
	if !ok {
		return nil, errors.New("frame failed authentication")
	}
	return plaintext, nil
}
