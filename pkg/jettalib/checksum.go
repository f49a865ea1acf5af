package jettalib

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"hash"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"

	"github.com/danielbankhead/jetta/pkg/jerror"
)

// Checksum asks the engine to hash the decoded response body.
type Checksum struct {
	// Algorithm is one of ChecksumAlgorithms, case-insensitive.
	Algorithm string
	// Digest is "hex" (default) or "base64".
	Digest string
	// Expected, when set, fails the request on mismatch.
	Expected string
}

var hashers = map[string]func() hash.Hash{
	"md5":         md5.New,
	"sha1":        sha1.New,
	"sha224":      sha256.New224,
	"sha256":      sha256.New,
	"sha384":      sha512.New384,
	"sha512":      sha512.New,
	"sha3-256":    sha3.New256,
	"sha3-512":    sha3.New512,
	"blake2b-256": mustBlake2b(32),
	"blake2b-512": mustBlake2b(64),
}

func mustBlake2b(size int) func() hash.Hash {
	return func() hash.Hash {
		h, err := blake2b.New(size, nil)
		if err != nil {
			panic(err)
		}
		return h
	}
}

// ChecksumAlgorithms returns the supported algorithm names.
func ChecksumAlgorithms() []string {
	names := make([]string, 0, len(hashers))
	for n := range hashers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// validate fails with RequestInvalidChecksumAlgorithm before any I/O.
func (c *Checksum) validate() error {
	if c == nil {
		return nil
	}
	if _, ok := hashers[strings.ToLower(c.Algorithm)]; !ok {
		return jerror.New(jerror.RequestInvalidChecksumAlgorithm, map[string]any{"algorithm": c.Algorithm})
	}
	switch strings.ToLower(c.Digest) {
	case "", "hex", "base64":
	default:
		return jerror.New(jerror.RequestInvalidOptions, map[string]any{"checksum.digest": c.Digest})
	}
	return nil
}

func (c *Checksum) newHash() hash.Hash {
	return hashers[strings.ToLower(c.Algorithm)]()
}

func (c *Checksum) encode(sum []byte) string {
	if strings.EqualFold(c.Digest, "base64") {
		return base64.StdEncoding.EncodeToString(sum)
	}
	return hex.EncodeToString(sum)
}

// verify compares the digest with Expected. Hex comparisons ignore case.
func (c *Checksum) verify(digest string) error {
	if c.Expected == "" {
		return nil
	}
	want, got := strings.TrimSpace(c.Expected), digest
	if !strings.EqualFold(c.Digest, "base64") {
		want, got = strings.ToLower(want), strings.ToLower(got)
	}
	if subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		return jerror.New(jerror.RequestChecksumVerificationFailed, map[string]any{
			"algorithm": c.Algorithm,
			"expected":  c.Expected,
			"actual":    digest,
		})
	}
	return nil
}
