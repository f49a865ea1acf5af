package cookies

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/danielbankhead/jetta/pkg/logger"
)

var (
	errUnsupportedSchema = errors.New("unsupported cookie store format")
	errEmptyStore        = errors.New("cookie store is empty")
)

var sqliteMagic = []byte("SQLite format 3\x00")

// DetectFormat sniffs the store at path.
func DetectFormat(path string) (Format, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FormatUnknown, err
	}
	if info.IsDir() {
		return FormatUnknown, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() == 0 {
		return FormatUnknown, errEmptyStore
	}

	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return FormatUnknown, err
	}
	head = head[:n]

	if bytes.HasPrefix(head, sqliteMagic) {
		return detectSQLiteFormat(path)
	}
	first, _, _ := bytes.Cut(head, []byte("\n"))
	first = bytes.TrimRight(first, "\r")
	if string(first) == netscapeHeader || string(first) == "# HTTP Cookie File" {
		return FormatNetscape, nil
	}
	return FormatUnknown, errUnsupportedSchema
}

// Read returns the unexpired cookies of the store at path for domain and
// its subdomains. An empty domain returns every cookie. SQLite stores are
// copied first so a running browser holding a lock does not interfere.
func Read(path, domain string, now time.Time, l logger.Logger) ([]Cookie, *Source, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, nil, err
	}
	src := &Source{Path: path, Format: format}

	var cookies []Cookie
	switch format {
	case FormatNetscape:
		var f *os.File
		f, err = os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		defer f.Close()
		cookies, err = ParseNetscape(f, domain, now, l)
	case FormatFirefox:
		cookies, err = readCopy(path, firefoxQuery, scanFirefox, domain, now)
	case FormatChrome:
		cookies, err = readCopy(path, chromeQuery, scanChrome, domain, now)
	}
	if err != nil {
		return nil, nil, err
	}
	logger.OrNop(l).Debug("cookies: read %d cookies from %s store", len(cookies), format)
	return cookies, src, nil
}

func readCopy(path, query string, scan rowScanner, domain string, now time.Time) ([]Cookie, error) {
	dir, cleanup, err := SafeCopy(path)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	return readSQLite(filepath.Join(dir, filepath.Base(path)), query, scan, domain, now)
}
