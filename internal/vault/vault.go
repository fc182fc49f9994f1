// Package vault seals agent provider credentials at rest and hands them to
// the dispatch path as redacting Secrets.
package vault

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const sealedPrefix = "v1:"

var (
	ErrNoCredential = errors.New("agent has no provider credential")
	ErrMalformed    = errors.New("malformed sealed credential")
)

// Secret wraps a plaintext credential. It never prints its value.
type Secret struct {
	value string
}

func NewSecret(v string) Secret { return Secret{value: v} }

func (s Secret) Reveal() string { return s.value }
func (s Secret) IsZero() bool   { return s.value == "" }
func (s Secret) String() string { return "[redacted]" }

func (s Secret) GoString() string { return "vault.Secret{[redacted]}" }

// Cipher is XChaCha20-Poly1305 keyed from a master secret through HKDF-SHA256.
type Cipher struct {
	aead cipher.AEAD
}

func NewCipher(masterKey string) (*Cipher, error) {
	if masterKey == "" {
		return nil, errors.New("vault: empty master key")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(masterKey), nil, []byte("upmolt provider credentials"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("vault: derive key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("vault: init aead: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts plaintext into a printable, versioned token.
func (c *Cipher) Seal(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("vault: nonce: %w", err)
	}
	out := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(out), nil
}

func (c *Cipher) Open(sealed string) (Secret, error) {
	raw, ok := strings.CutPrefix(sealed, sealedPrefix)
	if !ok {
		return Secret{}, ErrMalformed
	}
	buf, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil || len(buf) < c.aead.NonceSize() {
		return Secret{}, ErrMalformed
	}
	nonce, ct := buf[:c.aead.NonceSize()], buf[c.aead.NonceSize():]
	pt, err := c.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return Secret{}, fmt.Errorf("vault: open: %w", err)
	}
	return Secret{value: string(pt)}, nil
}

// KeyStore loads the sealed credential of an agent.
type KeyStore interface {
	GetProviderKey(ctx context.Context, agentID uuid.UUID) (string, error)
}

type Vault struct {
	cipher *Cipher
	store  KeyStore
}

func New(c *Cipher, store KeyStore) *Vault {
	return &Vault{cipher: c, store: store}
}

// Reveal returns the agent's provider credential in plaintext.
func (v *Vault) Reveal(ctx context.Context, agentID uuid.UUID) (Secret, error) {
	sealed, err := v.store.GetProviderKey(ctx, agentID)
	if err != nil {
		return Secret{}, fmt.Errorf("load credential: %w", err)
	}
	if sealed == "" {
		return Secret{}, ErrNoCredential
	}
	return v.cipher.Open(sealed)
}

// Seal is exposed so creator updates can store new credentials.
func (v *Vault) Seal(plaintext string) (string, error) {
	return v.cipher.Seal(plaintext)
}
