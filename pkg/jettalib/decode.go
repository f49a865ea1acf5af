package jettalib

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

type decoderFunc func(r io.Reader) (io.ReadCloser, error)

var decoders = map[string]decoderFunc{
	"gzip":    newGzipDecoder,
	"x-gzip":  newGzipDecoder,
	"deflate": newDeflateDecoder,
	"br":      newBrotliDecoder,
	"zstd":    newZstdDecoder,
}

func newGzipDecoder(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

// newDeflateDecoder accepts zlib wrapped data as RFC 9110 requires and
// raw deflate as some servers send.
func newDeflateDecoder(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(2)
	if err != nil && err != io.EOF {
		return nil, err
	}
	if len(head) == 2 && head[0]&0x0f == 8 && (uint16(head[0])<<8|uint16(head[1]))%31 == 0 {
		return zlib.NewReader(br)
	}
	return flate.NewReader(br), nil
}

func newBrotliDecoder(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(brotli.NewReader(r)), nil
}

func newZstdDecoder(r io.Reader) (io.ReadCloser, error) {
	d, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return d.IOReadCloser(), nil
}

// parseEncodings splits a Content-Encoding value in the order the server
// applied the codings, dropping identity.
func parseEncodings(header string) []string {
	var out []string
	for _, part := range strings.Split(header, ",") {
		enc := strings.ToLower(strings.TrimSpace(part))
		if enc == "" || enc == "identity" {
			continue
		}
		out = append(out, enc)
	}
	return out
}

// decodable reports whether every coding has a decoder.
func decodable(encodings []string) bool {
	for _, enc := range encodings {
		if _, ok := decoders[enc]; !ok {
			return false
		}
	}
	return true
}

// acceptedEncodings parses an Accept-Encoding header. A nil result means
// no header was sent and any coding is acceptable.
func acceptedEncodings(header string) map[string]bool {
	if strings.TrimSpace(header) == "" {
		return nil
	}
	accepted := make(map[string]bool)
	for _, part := range strings.Split(header, ",") {
		token, params, _ := strings.Cut(part, ";")
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" {
			continue
		}
		if zeroQuality(params) {
			continue
		}
		accepted[token] = true
		if token == "gzip" {
			accepted["x-gzip"] = true
		}
	}
	return accepted
}

func zeroQuality(params string) bool {
	for _, p := range strings.Split(params, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(k), "q") {
			continue
		}
		q, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return err == nil && q == 0
	}
	return false
}

func encodingAllowed(accepted map[string]bool, enc string) bool {
	return accepted == nil || accepted["*"] || accepted[enc]
}

// decodeChain wraps r so the last applied coding is removed first.
func decodeChain(r io.Reader, encodings []string) (io.Reader, []io.Closer, error) {
	var closers []io.Closer
	for i := len(encodings) - 1; i >= 0; i-- {
		dr, err := decoders[encodings[i]](r)
		if err != nil {
			closeAll(closers)
			return nil, nil, err
		}
		closers = append(closers, dr)
		r = dr
	}
	return r, closers, nil
}

func closeAll(closers []io.Closer) {
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i].Close()
	}
}
