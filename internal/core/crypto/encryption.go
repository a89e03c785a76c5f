// Package crypto provides encryption utilities for remote host credentials.
// This is part of the Functional Core - all functions are pure with no I/O
// (apart from reading nonces from crypto/rand).
//
// Credentials are encrypted at rest using AES-256-GCM with a key derived
// from the operator's configured secret.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrKeyTooShort is returned when the encryption key is too short.
	ErrKeyTooShort = errors.New("encryption key must be at least 32 bytes")

	// ErrInvalidCiphertext is returned when decryption fails due to invalid ciphertext.
	ErrInvalidCiphertext = errors.New("invalid ciphertext: too short")

	// ErrDecryptionFailed is returned when decryption fails (wrong key or corrupted data).
	ErrDecryptionFailed = errors.New("decryption failed: authentication tag mismatch")

	// ErrNoKey is returned when a sealed credential is opened without a key.
	ErrNoKey = errors.New("credential is encrypted but no key is configured")
)

// =============================================================================
// Key Derivation
// =============================================================================

// keySalt is fixed so that the same secret always yields the same key
// across restarts.
var keySalt = []byte("panelship/credentials/v1")

// DeriveKey derives a 32-byte AES-256 key from a passphrase using Argon2id.
//
// Note: This function is deterministic - same input always produces same output.
func DeriveKey(passphrase string) []byte {
	return argon2.IDKey([]byte(passphrase), keySalt, 2, 19*1024, 1, 32)
}

// =============================================================================
// AES-256-GCM Encryption
// =============================================================================

// Encrypt encrypts plaintext using AES-256-GCM with the provided key.
// The key must be at least 32 bytes; only the first 32 are used.
//
// The ciphertext format is: nonce (12 bytes) || encrypted data || auth tag (16 bytes)
func Encrypt(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt decrypts ciphertext that was encrypted with Encrypt.
func Decrypt(ciphertext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, ErrInvalidCiphertext
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) < 32 {
		return nil, ErrKeyTooShort
	}

	block, err := aes.NewCipher(key[:32])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// =============================================================================
// Base64 Encoding Variants
// =============================================================================

// EncryptToBase64 encrypts plaintext and returns base64-encoded ciphertext.
func EncryptToBase64(plaintext, key []byte) (string, error) {
	ciphertext, err := Encrypt(plaintext, key)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptFromBase64 decrypts base64-encoded ciphertext.
func DecryptFromBase64(encoded string, key []byte) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	return Decrypt(ciphertext, key)
}

// =============================================================================
// Credential Sealing
// =============================================================================

// sealedPrefix marks a stored credential as encrypted.
const sealedPrefix = "enc:v1:"

// IsSealed reports whether a stored credential was produced by SealCredential.
func IsSealed(stored string) bool {
	return strings.HasPrefix(stored, sealedPrefix)
}

// SealCredential encrypts a credential for storage.
// With a nil key the credential is stored as given.
func SealCredential(credential string, key []byte) (string, error) {
	if key == nil {
		return credential, nil
	}
	encoded, err := EncryptToBase64([]byte(credential), key)
	if err != nil {
		return "", err
	}
	return sealedPrefix + encoded, nil
}

// OpenCredential reverses SealCredential. Credentials stored before a key
// was configured are returned as they are.
func OpenCredential(stored string, key []byte) (string, error) {
	if !IsSealed(stored) {
		return stored, nil
	}
	if key == nil {
		return "", ErrNoKey
	}
	plaintext, err := DecryptFromBase64(strings.TrimPrefix(stored, sealedPrefix), key)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
