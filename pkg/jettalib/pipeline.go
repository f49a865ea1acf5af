package jettalib

import (
	"bytes"
	"errors"
	"hash"
	"io"
	"sync"

	"github.com/spf13/afero"

	"github.com/danielbankhead/jetta/pkg/jerror"
)

// rawBody counts bytes as they leave the transport and enforces the data
// limit and the announced Content-Length.
type rawBody struct {
	r             io.Reader
	n             int64
	dataLimit     int64
	contentLength int64
	onChunk       func(total int64)
	// err is the first failure seen on the raw stream.
	err error
}

func (b *rawBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if n > 0 {
		b.n += int64(n)
		if b.n > b.dataLimit {
			b.err = jerror.New(jerror.RequestExceededDataLimitActual, map[string]any{
				"dataLimit": b.dataLimit,
				"received":  b.n,
			})
			return 0, b.err
		}
		if b.contentLength >= 0 && b.n > b.contentLength {
			b.err = jerror.New(jerror.RequestResponseExceededContentLength, map[string]any{
				"contentLength": b.contentLength,
				"received":      b.n,
			})
			return 0, b.err
		}
		b.onChunk(b.n)
	}
	if err != nil && !errors.Is(err, io.EOF) && b.err == nil {
		b.err = err
	}
	return n, err
}

// sink receives decoded bytes: checksum, file, data handler and stored
// data, in that order.
type sink struct {
	res     *Result
	hash    hash.Hash
	file    afero.File
	handler ResponseDataHandlerFunc
	data    *bytes.Buffer
	// limit is the decompressed ceiling; 0 disables it.
	limit int64
	err   error
}

func (s *sink) Write(p []byte) (int, error) {
	s.res.Lengths.Data += int64(len(p))
	if s.limit > 0 && s.res.Lengths.Data > s.limit {
		s.err = jerror.New(jerror.RequestExceededDecompressedLimit, map[string]any{
			"decompressedDataLimit": s.limit,
		})
		return 0, s.err
	}
	if s.hash != nil {
		s.hash.Write(p)
	}
	if s.file != nil {
		if _, err := s.file.Write(p); err != nil {
			s.err = jerror.Wrap(jerror.RequestWriteFileStreamError, err, map[string]any{"path": s.file.Name()})
			return 0, s.err
		}
	}
	if s.handler != nil {
		s.handler(p, s.res)
	}
	if s.data != nil {
		s.data.Write(p)
	}
	return len(p), nil
}

// onceCloser lets the engine close a body from a timer and on return.
type onceCloser struct {
	io.ReadCloser
	once sync.Once
	err  error
}

func (c *onceCloser) Close() error {
	c.once.Do(func() { c.err = c.ReadCloser.Close() })
	return c.err
}
