package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/kestelyn/bioguard/guard"
)

const bufferSize = 8192 * 8

// Native messaging frames are a 4-byte little-endian length prefix followed
// by one JSON document.

type genericMessage struct {
	AppID   string          `json:"appId"`
	Message json.RawMessage `json:"message"`
}

type plainMessage struct {
	Command   string `json:"command"`
	PublicKey string `json:"publicKey,omitempty"`
}

// encryptedPayload is one sealed frame body. Nonce and Data are base64.
type encryptedPayload struct {
	Nonce string `json:"nonce"`
	Data  string `json:"data"`
}

type request struct {
	MessageID string `json:"messageId"`
	Command   string `json:"command"`
}

type response struct {
	MessageID  string `json:"messageId,omitempty"`
	Command    string `json:"command"`
	Response   string `json:"response,omitempty"`
	KeyB64     string `json:"keyB64,omitempty"`
	HasSecret  bool   `json:"hasSecret"`
	Available  bool   `json:"available"`
	CacheValid bool   `json:"cacheValid"`
}

type sendMessage struct {
	AppID        string            `json:"appId"`
	Command      string            `json:"command,omitempty"`
	SessionID    string            `json:"sessionId,omitempty"`
	SharedSecret string            `json:"sharedSecret,omitempty"`
	Message      *encryptedPayload `json:"message,omitempty"`
}

type host struct {
	guard *guard.Guard
	log   *slog.Logger

	sessionID    string
	transportKey [32]byte

	outMu sync.Mutex
	out   io.Writer
}

func newHost(g *guard.Guard, logger *slog.Logger) *host {
	return &host{guard: g, log: logger, sessionID: uuid.NewString()}
}

// run reads frames until stdin closes. A malformed frame is logged and
// skipped; only transport-level failures end the loop.
func (h *host) run(in io.Reader, out io.Writer) error {
	h.out = out
	if _, err := rand.Read(h.transportKey[:]); err != nil {
		return fmt.Errorf("generate transport key: %w", err)
	}

	if err := h.send(sendMessage{AppID: appID, Command: "connected", SessionID: h.sessionID}); err != nil {
		return err
	}

	r := newFrameReader(in)
	for {
		frame, err := r.next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := h.handleFrame(frame); err != nil {
			h.log.Error("frame rejected", "error", err)
		}
	}
}

func (h *host) handleFrame(frame []byte) error {
	var generic genericMessage
	if err := json.Unmarshal(frame, &generic); err != nil {
		return fmt.Errorf("unmarshal frame: %w", err)
	}

	// A message carrying a command field is part of the unencrypted
	// handshake; everything after setup arrives sealed.
	var plain plainMessage
	if err := json.Unmarshal(generic.Message, &plain); err == nil && plain.Command != "" {
		return h.handleHandshake(generic.AppID, plain)
	}

	var sealed encryptedPayload
	if err := json.Unmarshal(generic.Message, &sealed); err != nil {
		return fmt.Errorf("unmarshal sealed frame: %w", err)
	}
	body, err := openFrame(&h.transportKey, &sealed)
	if err != nil {
		return err
	}
	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		return fmt.Errorf("unmarshal request: %w", err)
	}
	return h.handleRequest(generic.AppID, req)
}

func (h *host) handleHandshake(fromApp string, msg plainMessage) error {
	switch msg.Command {
	case "setupEncryption":
		sharedSecret, err := encryptTransportKey(msg.PublicKey, h.transportKey[:])
		if err != nil {
			return err
		}
		return h.send(sendMessage{
			AppID:        appID,
			Command:      "setupEncryption",
			SessionID:    h.sessionID,
			SharedSecret: sharedSecret,
		})
	default:
		return fmt.Errorf("unknown handshake command %q", msg.Command)
	}
}

func (h *host) handleRequest(fromApp string, req request) error {
	h.log.Debug("request received", "command", req.Command, "messageId", req.MessageID)

	var resp response
	switch req.Command {
	case "unlock":
		resp = h.unlock(req)
	case "status":
		resp = response{
			MessageID:  req.MessageID,
			Command:    "status",
			HasSecret:  h.guard.HasStoredSecret(),
			Available:  h.guard.Available(),
			CacheValid: h.guard.CacheValid(),
		}
	case "reset":
		if err := h.guard.ResetAll(); err != nil {
			resp = response{MessageID: req.MessageID, Command: "reset", Response: "error"}
		} else {
			resp = response{MessageID: req.MessageID, Command: "reset", Response: "done"}
		}
	default:
		return fmt.Errorf("unknown command %q", req.Command)
	}
	return h.sendSealed(resp)
}

// unlock runs the retrieval ceremony and maps every guard outcome onto a
// distinct response, so the extension can decide whether to show an error.
func (h *host) unlock(req request) response {
	resp := response{MessageID: req.MessageID, Command: "unlock"}
	credential, err := h.guard.Retrieve()
	switch {
	case err == nil:
		resp.Response = "unlocked"
		resp.KeyB64 = base64.StdEncoding.EncodeToString(credential)
	case errors.Is(err, guard.ErrUserCancelled):
		resp.Response = "canceled"
	case errors.Is(err, guard.ErrAuthenticationFailed):
		resp.Response = "denied"
	case errors.Is(err, guard.ErrNotFound):
		resp.Response = "not-found"
	case errors.Is(err, guard.ErrPayloadCorrupt):
		resp.Response = "corrupt"
	default:
		resp.Response = "error"
	}
	return resp
}

func (h *host) sendSealed(resp response) error {
	body, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	sealed, err := sealFrame(&h.transportKey, body)
	if err != nil {
		return err
	}
	return h.send(sendMessage{AppID: appID, Message: sealed})
}

func (h *host) send(msg sendMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.outMu.Lock()
	defer h.outMu.Unlock()
	var length [4]byte
	binary.LittleEndian.PutUint32(length[:], uint32(len(body)))
	if _, err := h.out.Write(length[:]); err != nil {
		return err
	}
	_, err = h.out.Write(body)
	return err
}

type frameReader struct {
	r *bufio.Reader
}

func newFrameReader(in io.Reader) *frameReader {
	return &frameReader{r: bufio.NewReaderSize(in, bufferSize)}
}

func (f *frameReader) next() ([]byte, error) {
	var length [4]byte
	if _, err := io.ReadFull(f.r, length[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(length[:])
	if n > bufferSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit", n)
	}
	frame := make([]byte, n)
	if _, err := io.ReadFull(f.r, frame); err != nil {
		return nil, err
	}
	return frame, nil
}
