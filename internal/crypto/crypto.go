// Package crypto provides symmetric authenticated encryption for chat
// payloads at rest. Cleartext is never written to the message store; only
// the token produced by Codec.Encrypt is.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// DecryptError wraps any failure to recover cleartext from a token:
// tampering, a wrong key, or a malformed token all surface as this type so
// callers can treat them uniformly (skip-and-log, never crash).
type DecryptError struct {
	Reason string
	Err    error
}

func (e *DecryptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decrypt: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decrypt: %s", e.Reason)
}

func (e *DecryptError) Unwrap() error { return e.Err }

const tokenVersion byte = 1

// Codec is a stateless AEAD codec once its key is loaded; safe for
// concurrent use by every connection goroutine.
type Codec struct {
	aead chacha20poly1305.AEAD
}

// NewCodec builds a Codec from a 32-byte key. Use ParseKey to decode one
// from the urlsafe-base64 form read out of configuration.
func NewCodec(key []byte) (*Codec, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid key: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// ParseKey decodes a urlsafe-base64 32-byte key as read from CRYPTO_KEY.
func ParseKey(encoded string) ([]byte, error) {
	key, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		// Tolerate keys written without padding.
		key, err = base64.RawURLEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("crypto: key is not valid urlsafe-base64: %w", err)
		}
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("crypto: key must decode to %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return key, nil
}

// Encrypt produces a self-describing token: version byte, random nonce,
// then ciphertext+tag, all urlsafe-base64 encoded.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)

	out := make([]byte, 0, 1+len(nonce)+len(sealed))
	out = append(out, tokenVersion)
	out = append(out, nonce...)
	out = append(out, sealed...)

	return base64.URLEncoding.EncodeToString(out), nil
}

// Decrypt verifies authenticity and recovers the cleartext. It returns a
// *DecryptError on tampering, a wrong key, or a malformed token — never a
// partial or unauthenticated result.
func (c *Codec) Decrypt(token string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", &DecryptError{Reason: "malformed base64", Err: err}
	}

	nonceSize := c.aead.NonceSize()
	if len(raw) < 1+nonceSize {
		return "", &DecryptError{Reason: "token too short"}
	}

	version := raw[0]
	if version != tokenVersion {
		return "", &DecryptError{Reason: fmt.Sprintf("unsupported token version %d", version)}
	}

	nonce := raw[1 : 1+nonceSize]
	ciphertext := raw[1+nonceSize:]

	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", &DecryptError{Reason: "authentication failed", Err: err}
	}

	return string(plaintext), nil
}

// IsDecryptError reports whether err is (or wraps) a *DecryptError.
func IsDecryptError(err error) bool {
	var de *DecryptError
	return errors.As(err, &de)
}
