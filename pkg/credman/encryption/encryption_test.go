package encryption

import (
	"bytes"
	"errors"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, KeySize)
	sealed, err := Seal([]byte(`{"cookies":{}}`), key, []byte("jar"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(sealed, []byte("cookies")) {
		t.Fatal("plaintext visible in sealed output")
	}
	plain, err := Open(sealed, key, []byte("jar"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(plain) != `{"cookies":{}}` {
		t.Fatalf("got %q", plain)
	}
}

func TestSealUsesFreshNonce(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, KeySize)
	a, _ := Seal([]byte("x"), key, nil)
	b, _ := Seal([]byte("x"), key, nil)
	if bytes.Equal(a, b) {
		t.Fatal("identical ciphertexts for identical plaintexts")
	}
}

func TestOpenErrors(t *testing.T) {
	key := bytes.Repeat([]byte{0x22}, KeySize)
	other := bytes.Repeat([]byte{0x23}, KeySize)
	sealed, err := Seal([]byte("secret"), key, []byte("a"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	tests := []struct {
		name       string
		data       []byte
		key        []byte
		additional []byte
		want       error
	}{
		{"foreign data", []byte("plain json"), key, nil, ErrNotSealed},
		{"truncated", sealed[:len(magic)+4], key, []byte("a"), ErrTooShort},
		{"short key", sealed, []byte{1}, []byte("a"), ErrKeySize},
		{"wrong key", sealed, other, []byte("a"), nil},
		{"wrong additional data", sealed, key, []byte("b"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.data, tt.key, tt.additional)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSealInvalidKey(t *testing.T) {
	if _, err := Seal([]byte("hi"), []byte{0x01}, nil); !errors.Is(err, ErrKeySize) {
		t.Fatalf("err = %v", err)
	}
}
