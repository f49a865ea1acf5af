package jettalib

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// TransportRequest is one hop handed to a Transport. The engine resolves
// redirects, cookies and body encoding before building it.
type TransportRequest struct {
	URL    *url.URL
	Method string
	Header http.Header
	Body   io.Reader
	// ContentLength is -1 for streamed bodies of unknown size.
	ContentLength int64
	// SocketPath, when set, binds HTTP transports to a Unix socket.
	SocketPath string
}

// TransportResponse is the head of a response. Body is owned by the
// engine after RoundTrip returns and is always closed by it.
type TransportResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
	// ContentLength is -1 when unknown.
	ContentLength int64
}

// Transport performs a single hop for one or more URL schemes.
// Implementations must not follow redirects or decode content.
type Transport interface {
	RoundTrip(ctx context.Context, req *TransportRequest) (*TransportResponse, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req *TransportRequest) (*TransportResponse, error)

func (f TransportFunc) RoundTrip(ctx context.Context, req *TransportRequest) (*TransportResponse, error) {
	return f(ctx, req)
}

// TransportError is a structured error from a transport.
// Use errors.As to extract and inspect it.
type TransportError struct {
	// Protocol identifies the scheme that produced the error (e.g., "http", "ftp").
	Protocol string
	// Op is the operation that failed (e.g., "connect", "retr").
	Op    string
	Cause error
	// transient indicates whether the error may be retried.
	transient bool
}

// Error implements the error interface.
// Format: "protocol op: cause"
func (e *TransportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %s", e.Protocol, e.Op, e.Cause.Error())
	}
	return fmt.Sprintf("%s %s", e.Protocol, e.Op)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// IsTransient returns true if this error is transient and may be retried.
func (e *TransportError) IsTransient() bool {
	return e.transient
}

// NewTransientError creates a TransportError that may be retried.
func NewTransientError(protocol, op string, cause error) *TransportError {
	return &TransportError{Protocol: protocol, Op: op, Cause: cause, transient: true}
}

// NewPermanentError creates a TransportError that should not be retried.
func NewPermanentError(protocol, op string, cause error) *TransportError {
	return &TransportError{Protocol: protocol, Op: op, Cause: cause}
}

// closeFuncs closes a response body and then the connections behind it.
type closeFuncs struct {
	io.Reader
	closers []func() error
}

func (c *closeFuncs) Close() error {
	var first error
	for _, fn := range c.closers {
		if err := fn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
