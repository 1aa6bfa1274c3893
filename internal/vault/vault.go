// Package vault encrypts device secrets at rest.
//
// A single AES-256-GCM key is generated on first use and persisted to a key
// file, later processes load it from there. Losing the key file makes every
// stored ciphertext undecryptable.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tastythames/switch-backup/internal/model"
)

const (
	keyLength   = 32
	nonceLength = 12
)

var (
	ErrInvalidKey         = errors.New("vault: encryption key must be 32 bytes")
	ErrCiphertextTooShort = errors.New("vault: ciphertext too short")
)

// Vault encrypts and decrypts strings with the process wide key.
type Vault struct {
	aead cipher.AEAD
}

// New returns a Vault for the given raw key bytes.
func New(key []byte) (*Vault, error) {
	if len(key) != keyLength {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "vault: create cipher")
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "vault: init gcm")
	}

	return &Vault{aead: aead}, nil
}

// Open loads the key persisted at keyFile, generating and writing a new one
// when the file does not exist.
func Open(keyFile string, logger *logrus.Logger) (*Vault, error) {
	data, err := os.ReadFile(keyFile)
	switch {
	case err == nil:
		key, derr := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
		if derr != nil {
			return nil, errors.Wrap(ErrInvalidKey, "decode key file "+keyFile+": "+derr.Error())
		}

		return New(key)
	case !os.IsNotExist(err):
		return nil, errors.Wrap(err, "vault: read key file")
	}

	key := make([]byte, keyLength)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, errors.Wrap(err, "vault: generate key")
	}

	if err := os.MkdirAll(filepath.Dir(keyFile), 0o700); err != nil {
		return nil, errors.Wrap(err, "vault: create key directory")
	}

	if err := os.WriteFile(keyFile, []byte(base64.StdEncoding.EncodeToString(key)+"\n"), 0o600); err != nil {
		return nil, errors.Wrap(err, "vault: write key file")
	}

	logger.WithField("path", keyFile).Warn("generated new encryption key, keep a copy of this file")

	return New(key)
}

// Encrypt returns base64(nonce || sealed) for plaintext, an empty string
// encrypts to an empty string.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, nonceLength)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Wrap(err, "vault: generate nonce")
	}

	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Malformed input or ciphertext produced under a
// different key fails with model.ErrDecryption.
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	payload, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errors.Wrap(model.ErrDecryption, "decode ciphertext: "+err.Error())
	}

	if len(payload) < nonceLength {
		return "", errors.Wrap(model.ErrDecryption, ErrCiphertextTooShort.Error())
	}

	plaintext, err := v.aead.Open(nil, payload[:nonceLength], payload[nonceLength:], nil)
	if err != nil {
		return "", errors.Wrap(model.ErrDecryption, "open payload: "+err.Error())
	}

	return string(plaintext), nil
}
