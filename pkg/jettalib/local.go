package jettalib

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/danielbankhead/jetta/pkg/jerror"
)

// isLocalScheme reports whether scheme is served without a transport.
func isLocalScheme(scheme string) bool {
	return scheme == "data" || scheme == "file"
}

// dataURLResponse decodes data:[mediatype][;base64],payload.
func dataURLResponse(u *url.URL, dataLimit int64) (*TransportResponse, error) {
	c := *u
	c.Fragment, c.RawFragment = "", ""
	raw := strings.TrimLeft(strings.TrimPrefix(c.String(), c.Scheme+":"), "/")

	meta, payload, ok := strings.Cut(raw, ",")
	if !ok {
		return nil, jerror.New(jerror.RequestInvalidDataURL, map[string]any{"reason": "missing comma"})
	}

	isBase64 := false
	if strings.HasSuffix(strings.ToLower(meta), ";base64") {
		isBase64 = true
		meta = meta[:len(meta)-len(";base64")]
	}
	mediaType, err := url.PathUnescape(meta)
	if err != nil {
		return nil, jerror.Wrap(jerror.RequestURLDecodeError, err, nil)
	}

	var data []byte
	if isBase64 {
		encoded, err := url.PathUnescape(payload)
		if err != nil {
			return nil, jerror.Wrap(jerror.RequestURLDecodeError, err, nil)
		}
		data, err = decodeBase64(encoded)
		if err != nil {
			return nil, jerror.Wrap(jerror.RequestInvalidDataURL, err, map[string]any{"reason": "invalid base64"})
		}
	} else {
		decoded, err := url.PathUnescape(payload)
		if err != nil {
			return nil, jerror.Wrap(jerror.RequestURLDecodeError, err, nil)
		}
		data = []byte(decoded)
	}

	if int64(len(data)) > dataLimit {
		return nil, jerror.New(jerror.RequestExceededDataLimitActual, map[string]any{
			"dataLimit": dataLimit,
			"size":      len(data),
		})
	}

	header := make(http.Header)
	if mediaType != "" {
		header.Set("Content-Type", mediaType)
	}
	header.Set("Content-Length", strconv.Itoa(len(data)))
	return &TransportResponse{
		StatusCode:    http.StatusOK,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: int64(len(data)),
	}, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
			return -1
		}
		return r
	}, s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "=")); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(s)
}

// fileURLPath returns the local path of a file: URL. Only empty and
// localhost hosts are accepted.
func fileURLPath(u *url.URL) (string, error) {
	if h := strings.ToLower(u.Hostname()); h != "" && h != "localhost" {
		return "", jerror.New(jerror.RequestInvalidFileURL, map[string]any{"host": u.Host})
	}
	p := u.Path
	if p == "" {
		p = u.Opaque
	}
	if p == "" {
		return "", jerror.New(jerror.RequestInvalidFileURL, map[string]any{"reason": "empty path"})
	}
	// file:///C:/dir on Windows
	if len(p) > 2 && p[0] == '/' && p[2] == ':' {
		p = p[1:]
	}
	return filepath.FromSlash(p), nil
}

// fileURLResponse stats the file, enforces dataLimit against its size and
// opens it for streaming.
func fileURLResponse(fs afero.Fs, u *url.URL, dataLimit int64) (*TransportResponse, error) {
	path, err := fileURLPath(u)
	if err != nil {
		return nil, err
	}
	info, err := fs.Stat(path)
	if err != nil {
		return nil, jerror.Wrap(jerror.RequestFileStatError, err, map[string]any{"path": path})
	}
	if info.IsDir() {
		return nil, jerror.New(jerror.RequestFileReadError, map[string]any{"path": path, "reason": "is a directory"})
	}
	if info.Size() > dataLimit {
		return nil, jerror.New(jerror.RequestExceededDataLimitActual, map[string]any{
			"dataLimit": dataLimit,
			"size":      info.Size(),
		})
	}
	f, err := fs.Open(path)
	if err != nil {
		return nil, jerror.Wrap(jerror.RequestFileReadError, err, map[string]any{"path": path})
	}

	header := make(http.Header)
	header.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		header.Set("Content-Type", ct)
	}
	header.Set("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))
	return &TransportResponse{
		StatusCode:    http.StatusOK,
		Header:        header,
		Body:          f,
		ContentLength: info.Size(),
	}, nil
}
