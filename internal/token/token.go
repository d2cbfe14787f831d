// Package token implements the Blake2-MAC signed session token used for
// authenticated submissions.
package token

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

var encoding = base64.RawURLEncoding

// Payload is the plaintext signed by the token: the user id and issue
// time, used to enforce the 10-day session expiry.
type Payload struct {
	UserID   int32     `json:"user_id"`
	IssuedAt time.Time `json:"issued_at"`
}

const ttl = 10 * 24 * time.Hour

// Factory signs and verifies tokens with a fixed server-side key.
type Factory struct {
	key []byte
}

func NewFactory(key []byte) *Factory {
	return &Factory{key: key}
}

// Issue signs a fresh token for userID, wire form
// base64url_nopad(signature) + "." + base64url_nopad(payload_json).
func (f *Factory) Issue(userID int32) (string, error) {
	payload := Payload{UserID: userID, IssuedAt: time.Now()}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	mac, err := blake2b.New256(f.key)
	if err != nil {
		return "", err
	}
	mac.Write(payloadBytes)
	sig := mac.Sum(nil)
	return encoding.EncodeToString(sig) + "." + encoding.EncodeToString(payloadBytes), nil
}

// Parse verifies the MAC and checks the 10-day expiry, returning the
// payload on success.
func (f *Factory) Parse(tok string) (Payload, error) {
	parts := strings.SplitN(tok, ".", 2)
	if len(parts) != 2 {
		return Payload{}, errors.New("malformed token")
	}
	sig, err := encoding.DecodeString(parts[0])
	if err != nil {
		return Payload{}, errors.New("malformed signature")
	}
	payloadBytes, err := encoding.DecodeString(parts[1])
	if err != nil {
		return Payload{}, errors.New("malformed payload")
	}

	mac, err := blake2b.New256(f.key)
	if err != nil {
		return Payload{}, err
	}
	mac.Write(payloadBytes)
	expected := mac.Sum(nil)
	if !constantTimeEqual(sig, expected) {
		return Payload{}, errors.New("signature mismatch")
	}

	var payload Payload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return Payload{}, errors.New("malformed payload json")
	}
	if time.Since(payload.IssuedAt) > ttl {
		return Payload{}, errors.New("token expired")
	}
	return payload, nil
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
