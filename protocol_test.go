package main

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/kestelyn/bioguard/auth"
	"github.com/kestelyn/bioguard/guard"
	"github.com/kestelyn/bioguard/secret"
)

type memAuth struct {
	evalErr error
}

func (a *memAuth) CanEvaluate(auth.Policy) bool { return true }

func (a *memAuth) Evaluate(auth.Policy, string) error { return a.evalErr }

type memStore struct {
	auth  *memAuth
	items map[secret.Address][]byte
}

func (s *memStore) Exists(addr secret.Address) (bool, error) {
	_, ok := s.items[addr]
	return ok, nil
}

func (s *memStore) Write(addr secret.Address, payload []byte, _ secret.AccessPolicy) error {
	s.items[addr] = payload
	return nil
}

func (s *memStore) Delete(addr secret.Address) error {
	delete(s.items, addr)
	return nil
}

func (s *memStore) Read(addr secret.Address, policy secret.AccessPolicy, _ secret.Prompt) ([]byte, error) {
	payload, ok := s.items[addr]
	if !ok {
		return nil, secret.ErrNotFound
	}
	if err := s.auth.Evaluate(policy.Policy, ""); err != nil {
		return nil, secret.ErrUserCancelled
	}
	return payload, nil
}

func newTestHost(t *testing.T) (*host, *memAuth, *bytes.Buffer) {
	t.Helper()
	a := &memAuth{}
	store := &memStore{auth: a, items: make(map[secret.Address][]byte)}
	g := guard.New(store, a, guard.Config{
		Address: secret.Address{Service: "test", Account: "api"},
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := newHost(g, logger)
	out := &bytes.Buffer{}
	h.out = out
	if _, err := rand.Read(h.transportKey[:]); err != nil {
		t.Fatal(err)
	}
	return h, a, out
}

// readSent pops one framed message from the host's output.
func readSent(t *testing.T, out *bytes.Buffer) sendMessage {
	t.Helper()
	var length [4]byte
	if _, err := io.ReadFull(out, length[:]); err != nil {
		t.Fatalf("read frame length: %v", err)
	}
	body := make([]byte, binary.LittleEndian.Uint32(length[:]))
	if _, err := io.ReadFull(out, body); err != nil {
		t.Fatalf("read frame body: %v", err)
	}
	var msg sendMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	return msg
}

func frameFor(t *testing.T, appID string, message any) []byte {
	t.Helper()
	raw, err := json.Marshal(message)
	if err != nil {
		t.Fatal(err)
	}
	frame, err := json.Marshal(genericMessage{AppID: appID, Message: raw})
	if err != nil {
		t.Fatal(err)
	}
	return frame
}

func TestFrameRoundTrip(t *testing.T) {
	var key [32]byte
	if _, err := rand.Read(key[:]); err != nil {
		t.Fatal(err)
	}
	sealed, err := sealFrame(&key, []byte(`{"command":"status"}`))
	if err != nil {
		t.Fatalf("sealFrame: %v", err)
	}
	plain, err := openFrame(&key, sealed)
	if err != nil {
		t.Fatalf("openFrame: %v", err)
	}
	if string(plain) != `{"command":"status"}` {
		t.Errorf("round trip = %q", plain)
	}

	var other [32]byte
	if _, err := openFrame(&other, sealed); err == nil {
		t.Error("frame opened under the wrong key")
	}
}

func TestFrameReaderLimits(t *testing.T) {
	var buf bytes.Buffer
	var length [4]byte
	binary.LittleEndian.PutUint32(length[:], bufferSize+1)
	buf.Write(length[:])

	r := newFrameReader(&buf)
	if _, err := r.next(); err == nil {
		t.Error("oversized frame accepted")
	}
}

func TestHandshakeSealsTransportKey(t *testing.T) {
	h, _, out := newTestHost(t)

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	frame := frameFor(t, "ext", plainMessage{
		Command:   "setupEncryption",
		PublicKey: base64.StdEncoding.EncodeToString(der),
	})
	if err := h.handleFrame(frame); err != nil {
		t.Fatalf("handleFrame: %v", err)
	}

	reply := readSent(t, out)
	if reply.Command != "setupEncryption" {
		t.Fatalf("reply command = %q", reply.Command)
	}
	sealed, err := base64.StdEncoding.DecodeString(reply.SharedSecret)
	if err != nil {
		t.Fatal(err)
	}
	transportKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, sealed, nil)
	if err != nil {
		t.Fatalf("decrypt shared secret: %v", err)
	}
	if !bytes.Equal(transportKey, h.transportKey[:]) {
		t.Error("handshake delivered a different transport key")
	}
}

func sendSealedRequest(t *testing.T, h *host, req request) {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := sealFrame(&h.transportKey, body)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.handleFrame(frameFor(t, "ext", sealed)); err != nil {
		t.Fatalf("handleFrame: %v", err)
	}
}

func readSealedResponse(t *testing.T, h *host, out *bytes.Buffer) response {
	t.Helper()
	msg := readSent(t, out)
	if msg.Message == nil {
		t.Fatal("response was not sealed")
	}
	body, err := openFrame(&h.transportKey, msg.Message)
	if err != nil {
		t.Fatalf("openFrame: %v", err)
	}
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestUnlockServesStoredCredential(t *testing.T) {
	h, _, out := newTestHost(t)
	credential := []byte("sk-live-0123456789abcdef")
	if err := h.guard.Store(credential); err != nil {
		t.Fatalf("Store: %v", err)
	}

	sendSealedRequest(t, h, request{MessageID: "m1", Command: "unlock"})

	resp := readSealedResponse(t, h, out)
	if resp.Response != "unlocked" {
		t.Fatalf("response = %q, want unlocked", resp.Response)
	}
	if resp.MessageID != "m1" {
		t.Errorf("messageId = %q, want m1", resp.MessageID)
	}
	got, err := base64.StdEncoding.DecodeString(resp.KeyB64)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, credential) {
		t.Error("served credential differs from the stored one")
	}
}

func TestUnlockDistinguishesOutcomes(t *testing.T) {
	h, a, out := newTestHost(t)

	sendSealedRequest(t, h, request{MessageID: "m1", Command: "unlock"})
	if resp := readSealedResponse(t, h, out); resp.Response != "not-found" {
		t.Errorf("empty store response = %q, want not-found", resp.Response)
	}

	if err := h.guard.Store([]byte("x")); err != nil {
		t.Fatalf("Store: %v", err)
	}

	// The extension must be able to tell a dismissed prompt from a denial,
	// so the host answers "canceled", never "denied" or "error".
	a.evalErr = auth.ErrCancelled
	sendSealedRequest(t, h, request{MessageID: "m2", Command: "unlock"})
	if resp := readSealedResponse(t, h, out); resp.Response != "canceled" {
		t.Errorf("cancelled ceremony response = %q, want canceled", resp.Response)
	}
}

func TestStatusEncodesFalseBooleans(t *testing.T) {
	body, err := json.Marshal(response{Command: "status"})
	if err != nil {
		t.Fatal(err)
	}
	// The extension must be able to tell false from absent.
	for _, field := range []string{`"hasSecret":false`, `"available":false`, `"cacheValid":false`} {
		if !bytes.Contains(body, []byte(field)) {
			t.Errorf("status response %s lacks %s", body, field)
		}
	}
}

func TestStatusReportsGuardState(t *testing.T) {
	h, _, out := newTestHost(t)

	sendSealedRequest(t, h, request{MessageID: "s1", Command: "status"})
	resp := readSealedResponse(t, h, out)
	if resp.HasSecret {
		t.Error("hasSecret true on an empty store")
	}
	if !resp.Available {
		t.Error("available false with a working authenticator")
	}

	if err := h.guard.Store([]byte("x")); err != nil {
		t.Fatalf("Store: %v", err)
	}
	sendSealedRequest(t, h, request{MessageID: "s2", Command: "status"})
	if resp := readSealedResponse(t, h, out); !resp.HasSecret {
		t.Error("hasSecret false after Store")
	}
}
