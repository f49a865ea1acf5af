package keyring

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/danielbankhead/jetta/internal/fsutil"
	"github.com/spf13/afero"
)

const (
	keyFileName = "jar.key"
	keyFileMode = 0600
)

// FileKeyStore keeps the key hex encoded in a 0600 file.
type FileKeyStore struct {
	fs        afero.Fs
	configDir string
}

var fileRandRead = rand.Read

// NewFileKeyStore stores the key under configDir. A nil fs means the OS
// filesystem.
func NewFileKeyStore(fs afero.Fs, configDir string) *FileKeyStore {
	return &FileKeyStore{fs: fsutil.OrOs(fs), configDir: configDir}
}

func (f *FileKeyStore) keyPath() string {
	return filepath.Join(f.configDir, keyFileName)
}

// SetKey writes a new key atomically, replacing any previous one.
func (f *FileKeyStore) SetKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := fileRandRead(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	if err := fsutil.WriteFileAtomic(f.fs, f.keyPath(), []byte(hex.EncodeToString(key)), keyFileMode); err != nil {
		return nil, fmt.Errorf("write key file: %w", err)
	}
	return key, nil
}

func (f *FileKeyStore) GetKey() ([]byte, error) {
	data, err := afero.ReadFile(f.fs, f.keyPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoKey
	}
	if err != nil {
		return nil, err
	}
	return decodeKey(strings.TrimSpace(string(data)))
}

func (f *FileKeyStore) DeleteKey() error {
	err := f.fs.Remove(f.keyPath())
	if errors.Is(err, os.ErrNotExist) {
		return ErrNoKey
	}
	return err
}

// EnvKeyStore reads a fixed hex key from an environment variable. It
// cannot generate or delete keys.
type EnvKeyStore struct {
	Name   string
	Lookup func(string) (string, bool)
}

var errEnvReadOnly = errors.New("keyring: environment key is read only")

func (e *EnvKeyStore) GetKey() ([]byte, error) {
	lookup := e.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	v, ok := lookup(e.Name)
	if !ok || v == "" {
		return nil, ErrNoKey
	}
	key, err := decodeKey(strings.TrimSpace(v))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.Name, err)
	}
	return key, nil
}

func (e *EnvKeyStore) SetKey() ([]byte, error) { return nil, errEnvReadOnly }
func (e *EnvKeyStore) DeleteKey() error        { return errEnvReadOnly }

// Chain tries each store in order. GetKey returns the first stored key
// and otherwise an error matching ErrNoKey. SetKey stores in the first
// store that accepts the write.
type Chain []KeyStore

func (c Chain) GetKey() ([]byte, error) {
	var errs []error
	for _, s := range c {
		key, err := s.GetKey()
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, ErrNoKey) {
			errs = append(errs, err)
		}
	}
	// unavailable stores still count as empty so SetKey can fall through
	return nil, errors.Join(append([]error{ErrNoKey}, errs...)...)
}

func (c Chain) SetKey() ([]byte, error) {
	var errs []error
	for _, s := range c {
		key, err := s.SetKey()
		if err == nil {
			return key, nil
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}

// DeleteKey removes the key from every store that holds one.
func (c Chain) DeleteKey() error {
	var errs []error
	for _, s := range c {
		if err := s.DeleteKey(); err != nil && !errors.Is(err, ErrNoKey) && !errors.Is(err, errEnvReadOnly) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Default returns the environment variable, the OS keyring and then the
// key file under configDir.
func Default(envName string, fs afero.Fs, configDir string) Chain {
	return Chain{
		&EnvKeyStore{Name: envName},
		NewKeyring(),
		NewFileKeyStore(fs, configDir),
	}
}
