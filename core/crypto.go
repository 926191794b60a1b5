package core

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

var (
	ErrInvalidEncryptionKey = errors.New("encryption key must be 32 bytes for AES-256")
	ErrInvalidCiphertext    = errors.New("invalid ciphertext")
)

// CryptoService encrypts provider refresh tokens before they are
// persisted. The token must be replayed to the provider later, so it
// is encrypted rather than hashed.
type CryptoService struct {
	encryptionKey []byte
}

// NewCryptoService creates a new crypto service with the provided encryption key.
// The key must be exactly 32 bytes for AES-256.
func NewCryptoService(encryptionKey string) (*CryptoService, error) {
	key := []byte(encryptionKey)
	if len(key) != 32 {
		return nil, ErrInvalidEncryptionKey
	}

	return &CryptoService{
		encryptionKey: key,
	}, nil
}

// EncryptToken encrypts a token using AES-256-GCM.
// Returns base64-encoded ciphertext with nonce prepended.
func (cs *CryptoService) EncryptToken(plaintext string) (string, error) {
	block, err := aes.NewCipher(cs.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptToken decrypts a base64-encoded AES-256-GCM ciphertext
// produced by EncryptToken.
func (cs *CryptoService) DecryptToken(encoded string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	block, err := aes.NewCipher(cs.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	if len(ciphertext) < gcm.NonceSize() {
		return "", ErrInvalidCiphertext
	}

	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	return string(plaintext), nil
}
