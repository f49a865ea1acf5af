// Package jettalib is the jetta request engine. A request is a loop of
// hops: each hop resolves its URL, attaches cookies, dispatches through
// the transport registered for the scheme (data: and file: are served
// locally) and streams the response through decoders, limits, a checksum
// and the configured sinks. Redirects produce the next hop until the
// redirect limit is reached.
package jettalib

import (
	"sort"
	"sync"

	"github.com/spf13/afero"

	"github.com/danielbankhead/jetta/internal/fsutil"
	"github.com/danielbankhead/jetta/pkg/logger"
)

// Engine performs requests. It is safe for concurrent use; requests share
// nothing but the transports and any jar passed to them.
type Engine struct {
	router   *SchemeRouter
	defaults []RequestOption
	fs       afero.Fs
	log      logger.Logger
	retry    RetryConfig

	httpT      *HTTPTransport
	ftpOpts    *FTPOptions
	sftpOpts   *SFTPOptions
	transports map[string]Transport

	wg sync.WaitGroup
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

func WithLogger(l logger.Logger) EngineOption {
	return func(e *Engine) { e.log = l }
}

// WithFs sets the filesystem used for file: URLs and output files.
func WithFs(fs afero.Fs) EngineOption {
	return func(e *Engine) { e.fs = fs }
}

// WithDefaults adds engine level request options. They apply before jar
// defaults and per call options.
func WithDefaults(opts ...RequestOption) EngineOption {
	return func(e *Engine) { e.defaults = append(e.defaults, opts...) }
}

func WithHTTPTransport(t *HTTPTransport) EngineOption {
	return func(e *Engine) { e.httpT = t }
}

func WithFTPOptions(o FTPOptions) EngineOption {
	return func(e *Engine) { e.ftpOpts = &o }
}

func WithSFTPOptions(o SFTPOptions) EngineOption {
	return func(e *Engine) { e.sftpOpts = &o }
}

// WithTransport registers t for scheme, replacing any default.
func WithTransport(scheme string, t Transport) EngineOption {
	return func(e *Engine) {
		if e.transports == nil {
			e.transports = make(map[string]Transport)
		}
		e.transports[scheme] = t
	}
}

// WithRetryConfig configures Fetch retries.
func WithRetryConfig(c RetryConfig) EngineOption {
	return func(e *Engine) { e.retry = c }
}

// NewEngine returns an engine with http, https, ftp, ftps and sftp
// transports registered.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{retry: DefaultRetryConfig()}
	for _, o := range opts {
		o(e)
	}
	e.fs = fsutil.OrOs(e.fs)
	e.log = logger.OrNop(e.log)
	if e.httpT == nil {
		e.httpT = DefaultHTTPTransport()
	}
	e.router = NewSchemeRouter(e.httpT, e.ftpOpts, e.sftpOpts)
	for scheme, t := range e.transports {
		e.router.Register(scheme, t)
	}
	return e
}

// Register adds or replaces the transport for scheme. Registering data
// or file overrides the local handlers.
func (e *Engine) Register(scheme string, t Transport) {
	e.router.Register(scheme, t)
}

// SupportedSchemes returns every scheme the engine can request.
func (e *Engine) SupportedSchemes() []string {
	schemes := e.router.Schemes()
	for _, local := range []string{"data", "file"} {
		if _, ok := e.router.Lookup(local); !ok {
			schemes = append(schemes, local)
		}
	}
	sort.Strings(schemes)
	return schemes
}

// Close waits for asynchronous requests and releases idle connections.
func (e *Engine) Close() error {
	e.wg.Wait()
	e.httpT.CloseIdleConnections()
	return nil
}
