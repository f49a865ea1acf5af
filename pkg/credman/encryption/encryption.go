// Package encryption seals byte blobs with AES-256-GCM.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
)

// KeySize is the required key length in bytes.
const KeySize = 32

// magic tags sealed blobs so foreign files fail fast instead of with an
// authentication error.
const magic = "jv1"

var (
	ErrKeySize   = errors.New("encryption: key must be 32 bytes")
	ErrNotSealed = errors.New("encryption: data was not sealed by this package")
	ErrTooShort  = errors.New("encryption: ciphertext too short")
)

var randReader io.Reader = rand.Reader

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext. The additional data is authenticated but not
// stored; Open must be given the same value.
func Seal(plaintext, key, additional []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(randReader, nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(magic)+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, magic...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, additional), nil
}

// Open decrypts data produced by Seal.
func Open(data, key, additional []byte) ([]byte, error) {
	if len(data) < len(magic) || string(data[:len(magic)]) != magic {
		return nil, ErrNotSealed
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	data = data[len(magic):]
	if len(data) < gcm.NonceSize()+gcm.Overhead() {
		return nil, ErrTooShort
	}
	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, additional)
}
