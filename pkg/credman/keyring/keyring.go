// Package keyring stores the cookie jar encryption key. The OS keyring is
// preferred; a 0600 key file and an environment variable are the
// fallbacks for headless machines and CI.
package keyring

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeySize is the length of generated keys.
const KeySize = 32

// ErrNoKey is returned by GetKey when the store holds no key yet.
var ErrNoKey = errors.New("keyring: no key stored")

// KeyStore holds a single key.
type KeyStore interface {
	// GetKey returns ErrNoKey when nothing is stored.
	GetKey() ([]byte, error)
	// SetKey generates, stores and returns a new key.
	SetKey() ([]byte, error)
	DeleteKey() error
}

// Keyring stores the key hex encoded in the OS keyring.
type Keyring struct {
	Service string
	User    string
}

var (
	keyringSet    = keyring.Set
	keyringGet    = keyring.Get
	keyringDelete = keyring.Delete
	randRead      = rand.Read
)

func NewKeyring() *Keyring {
	return &Keyring{
		Service: "jetta",
		User:    "cookie-jar",
	}
}

func (k *Keyring) SetKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := randRead(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	if err := keyringSet(k.Service, k.User, hex.EncodeToString(key)); err != nil {
		return nil, err
	}
	return key, nil
}

func (k *Keyring) GetKey() ([]byte, error) {
	stored, err := keyringGet(k.Service, k.User)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrNoKey
	}
	if err != nil {
		return nil, err
	}
	return decodeKey(stored)
}

func (k *Keyring) DeleteKey() error {
	err := keyringDelete(k.Service, k.User)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNoKey
	}
	return err
}

func decodeKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid key format: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key length: expected %d, got %d", KeySize, len(key))
	}
	return key, nil
}
