package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"

	"wayfinder/internal/domain"
)

const sealedPrefix = "enc:"

// SaltSize is the length of the key-derivation salt persisted next to sealed data.
const SaltSize = 16

// Sealer encrypts values at rest with AES-256-GCM. The key is derived once
// from a passphrase and a persisted salt via Argon2id and held only in memory.
type Sealer struct {
	aead cipher.AEAD
}

// NewSalt returns a fresh random salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// NewSealer derives a key from passphrase and salt. The same pair must be
// used to open values sealed earlier.
func NewSealer(passphrase string, salt []byte) (*Sealer, error) {
	if passphrase == "" {
		return nil, domain.NewSubSystemError("security", "NewSealer", domain.ErrInvalidInput, "empty passphrase")
	}
	if len(salt) != SaltSize {
		return nil, domain.NewSubSystemError("security", "NewSealer", domain.ErrInvalidInput,
			fmt.Sprintf("salt must be %d bytes", SaltSize))
	}
	key := argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
	block, err := aes.NewCipher(key)
	clear(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal returns "enc:" + base64(nonce + ciphertext).
func (s *Sealer) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, plaintext, nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Values without the prefix pass through unchanged so a
// store can switch encryption on without migrating existing rows.
func (s *Sealer) Open(value string) ([]byte, error) {
	if !IsSealed(value) {
		return []byte(value), nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return nil, domain.NewSubSystemError("security", "Sealer.Open", domain.ErrDecryption, err.Error())
	}
	n := s.aead.NonceSize()
	if len(data) < n {
		return nil, domain.NewSubSystemError("security", "Sealer.Open", domain.ErrDecryption, "ciphertext too short")
	}
	plain, err := s.aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return nil, domain.NewSubSystemError("security", "Sealer.Open", domain.ErrDecryption, err.Error())
	}
	return plain, nil
}

// IsSealed reports whether value was produced by Seal.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}
