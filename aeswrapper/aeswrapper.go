package aeswrapper

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
)

var (
	ErrInvalidKeyLength   = errors.New("invalid key length, must be 16 or 32 bytes")
	ErrCipherFailure      = errors.New("cipher creation failure")
	ErrGCMFailure         = errors.New("gcm creation failure")
	ErrRandomNonceFailure = errors.New("random nonce creation failure")
	ErrOpenDataFailure    = errors.New("open data failure, cannot decrypt data")
	ErrDataTooShort       = errors.New("data too short, cannot contain nonce")
)

const nonceSize = 12

// Helper seals and opens secrets with AES in Galois Counter Mode keyed by a
// single master key provided at creation.
type Helper struct {
	key []byte
}

// New creates a new Helper or returns ErrInvalidKeyLength when the master key
// has the wrong size.
func New(key []byte) (Helper, error) {
	if len(key) != 32 && len(key) != 16 {
		return Helper{}, ErrInvalidKeyLength
	}
	return Helper{key: key}, nil
}

// Encrypt encrypts data with the master key, prefixing the random nonce.
func (h Helper) Encrypt(data []byte) ([]byte, error) {
	block, err := aes.NewCipher(h.key)
	if err != nil {
		return nil, errors.Join(ErrCipherFailure, err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.Join(ErrRandomNonceFailure, err)
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Join(ErrGCMFailure, err)
	}

	ciphertext := aesgcm.Seal(nonce, nonce, data, nil)

	return ciphertext, nil
}

// Decrypt decrypts data that was sealed with Encrypt.
func (h Helper) Decrypt(data []byte) ([]byte, error) {
	if len(data) < nonceSize {
		return nil, ErrDataTooShort
	}
	nonce, cipherText := data[:nonceSize], data[nonceSize:]

	block, err := aes.NewCipher(h.key)
	if err != nil {
		return nil, errors.Join(ErrCipherFailure, err)
	}

	aesGcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Join(ErrGCMFailure, err)
	}

	plaintext, err := aesGcm.Open(nil, nonce, cipherText, nil)
	if err != nil {
		return nil, errors.Join(ErrOpenDataFailure, err)
	}

	return plaintext, nil
}
