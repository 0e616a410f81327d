// Package tokenstore encrypts the exchange API token at rest with
// AES-256-GCM, deriving the cipher key from an operator-supplied
// passphrase via PBKDF2 so the raw token never needs to live in a plain
// config file.
package tokenstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyLength  = 32 // AES-256
	saltLength = 16
	iterations = 100000
)

var (
	// ErrCiphertextTooShort is returned when a stored value is too short to
	// contain a salt and nonce. A value missing only its authentication tag
	// fails in GCM and yields ErrDecryptionFailed instead.
	ErrCiphertextTooShort = errors.New("tokenstore: ciphertext too short")
	// ErrDecryptionFailed is returned when GCM authentication fails, meaning
	// the passphrase is wrong or the stored value was tampered with.
	ErrDecryptionFailed = errors.New("tokenstore: decryption failed")
)

// Seal encrypts token under passphrase, returning a base64 string that
// embeds its own random salt and nonce so Open needs only the passphrase.
func Seal(token, passphrase string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	key := deriveKey(passphrase, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nil, nonce, []byte(token), nil)

	out := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, sealed...)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Open decrypts a value produced by Seal.
func Open(encoded, passphrase string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	if len(raw) < saltLength {
		return "", ErrCiphertextTooShort
	}

	salt, rest := raw[:saltLength], raw[saltLength:]
	key := deriveKey(passphrase, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(rest) < nonceSize {
		return "", ErrCiphertextTooShort
	}
	nonce, ciphertext := rest[:nonceSize], rest[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

func deriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, iterations, keyLength, sha256.New)
}
