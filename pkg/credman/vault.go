// Package credman persists cookie jar snapshots encrypted at rest. The
// key lives in a keyring.KeyStore, normally the OS keyring.
package credman

import (
	"errors"
	"fmt"
	"os"

	"github.com/danielbankhead/jetta/internal/fsutil"
	"github.com/danielbankhead/jetta/pkg/cookiejar"
	"github.com/danielbankhead/jetta/pkg/credman/encryption"
	"github.com/danielbankhead/jetta/pkg/credman/keyring"
	"github.com/danielbankhead/jetta/pkg/logger"
	"github.com/spf13/afero"
)

// DefaultFileName is the vault file name inside the config directory.
const DefaultFileName = "cookies.jar"

// additional data binding sealed snapshots to their purpose
var vaultAD = []byte("jetta cookie jar")

var ErrKeyMismatch = errors.New("credman: vault cannot be opened with the stored key")

// Vault reads and writes one encrypted snapshot file.
type Vault struct {
	fs   afero.Fs
	path string
	keys keyring.KeyStore
	log  logger.Logger
}

// NewVault returns a vault at path. A nil fs means the OS filesystem and
// a nil logger discards output.
func NewVault(fs afero.Fs, path string, keys keyring.KeyStore, l logger.Logger) *Vault {
	return &Vault{
		fs:   fsutil.OrOs(fs),
		path: path,
		keys: keys,
		log:  logger.OrNop(l),
	}
}

func (v *Vault) Path() string { return v.path }

func (v *Vault) exists() (bool, error) {
	_, err := v.fs.Stat(v.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// Load returns the stored snapshot, or nil when the vault file does not
// exist yet.
func (v *Vault) Load() (*cookiejar.Snapshot, error) {
	ok, err := v.exists()
	if err != nil || !ok {
		return nil, err
	}
	sealed, err := afero.ReadFile(v.fs, v.path)
	if err != nil {
		return nil, err
	}
	key, err := v.keys.GetKey()
	if errors.Is(err, keyring.ErrNoKey) {
		return nil, fmt.Errorf("%w: no key stored", ErrKeyMismatch)
	}
	if err != nil {
		return nil, err
	}
	plain, err := encryption.Open(sealed, key, vaultAD)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyMismatch, err)
	}
	return cookiejar.UnmarshalSnapshot(plain)
}

// Save seals s, creating a key on first use.
func (v *Vault) Save(s *cookiejar.Snapshot) error {
	key, err := v.key()
	if err != nil {
		return err
	}
	plain, err := cookiejar.EncodeSnapshot(s)
	if err != nil {
		return err
	}
	sealed, err := encryption.Seal(plain, key, vaultAD)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(v.fs, v.path, sealed, 0600); err != nil {
		return fmt.Errorf("credman: writing %s: %w", v.path, err)
	}
	v.log.Debug("credman: saved %d cookies to %s", countCookies(s), v.path)
	return nil
}

func (v *Vault) key() ([]byte, error) {
	key, err := v.keys.GetKey()
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, keyring.ErrNoKey) {
		return nil, err
	}
	// a vault without its key is unreadable; never replace the key under it
	if ok, statErr := v.exists(); statErr != nil || ok {
		if statErr != nil {
			return nil, statErr
		}
		return nil, fmt.Errorf("%w: key missing for existing vault %s", ErrKeyMismatch, v.path)
	}
	v.log.Info("credman: generating a new jar key")
	return v.keys.SetKey()
}

// OpenJar loads the vault into a new jar. A missing vault yields an empty
// jar configured by opts.
func (v *Vault) OpenJar(opts *cookiejar.Options) (*cookiejar.Jar, error) {
	s, err := v.Load()
	if err != nil {
		return nil, err
	}
	if s == nil {
		return cookiejar.New(opts), nil
	}
	return cookiejar.FromSnapshot(s, opts)
}

// SaveJar writes the current contents of j.
func (v *Vault) SaveJar(j *cookiejar.Jar) error {
	return v.Save(j.Export())
}

// Destroy removes the vault file and its key.
func (v *Vault) Destroy() error {
	var errs []error
	if err := v.fs.Remove(v.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, err)
	}
	if err := v.keys.DeleteKey(); err != nil && !errors.Is(err, keyring.ErrNoKey) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func countCookies(s *cookiejar.Snapshot) int {
	n := 0
	for _, paths := range s.Cookies {
		for _, names := range paths {
			n += len(names)
		}
	}
	return n
}
