package jettalib

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/proxy"
)

// HTTPOptions configure the HTTP transport.
type HTTPOptions struct {
	// Proxy is an http, https or socks5 proxy URL.
	Proxy string
	// ProxyFromEnvironment uses HTTP_PROXY, HTTPS_PROXY and NO_PROXY when
	// Proxy is empty.
	ProxyFromEnvironment bool
	TLSConfig            *tls.Config
	// DialTimeout defaults to 30 seconds.
	DialTimeout time.Duration
}

// HTTPTransport performs http and https hops with net/http. It never
// follows redirects and never decodes content; the engine does both.
type HTTPTransport struct {
	base   *http.Transport
	client *http.Client

	mu      sync.Mutex
	sockets map[string]*http.Client
}

// NewHTTPTransport builds a transport, validating the proxy URL.
func NewHTTPTransport(opts HTTPOptions) (*HTTPTransport, error) {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 30 * time.Second
	}
	dialer := &net.Dialer{Timeout: opts.DialTimeout, KeepAlive: 30 * time.Second}
	base := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSClientConfig:       opts.TLSConfig,
		ForceAttemptHTTP2:     true,
		DisableCompression:    true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	switch {
	case opts.Proxy != "":
		cfg, err := ParseProxyURL(opts.Proxy)
		if err != nil {
			return nil, err
		}
		if cfg.Scheme == "socks5" {
			var auth *proxy.Auth
			if cfg.Username != "" {
				auth = &proxy.Auth{User: cfg.Username, Password: cfg.Password}
			}
			d, err := proxy.SOCKS5("tcp", cfg.Host, auth, dialer)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidProxyURL, err)
			}
			if cd, ok := d.(proxy.ContextDialer); ok {
				base.DialContext = cd.DialContext
			} else {
				base.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
					return d.Dial(network, addr)
				}
			}
		} else {
			base.Proxy = http.ProxyURL(cfg.url())
		}
	case opts.ProxyFromEnvironment:
		base.Proxy = http.ProxyFromEnvironment
	}

	return &HTTPTransport{
		base:    base,
		client:  newNoRedirectClient(base),
		sockets: make(map[string]*http.Client),
	}, nil
}

// DefaultHTTPTransport returns a transport without a proxy.
func DefaultHTTPTransport() *HTTPTransport {
	t, _ := NewHTTPTransport(HTTPOptions{})
	return t
}

func newNoRedirectClient(rt http.RoundTripper) *http.Client {
	return &http.Client{
		Transport: rt,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// clientFor returns a client bound to socketPath, or the shared client.
func (t *HTTPTransport) clientFor(socketPath string) *http.Client {
	if socketPath == "" {
		return t.client
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.sockets[socketPath]; ok {
		return c
	}
	tr := t.base.Clone()
	tr.Proxy = nil
	tr.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "unix", socketPath)
	}
	c := newNoRedirectClient(tr)
	t.sockets[socketPath] = c
	return c
}

func (t *HTTPTransport) RoundTrip(ctx context.Context, req *TransportRequest) (*TransportResponse, error) {
	body := req.Body
	if body == nil || req.ContentLength == 0 {
		body = http.NoBody
	}
	hreq, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), body)
	if err != nil {
		return nil, NewPermanentError(req.URL.Scheme, "request", err)
	}
	hreq.ContentLength = req.ContentLength
	if body == http.NoBody {
		hreq.ContentLength = 0
	}
	hreq.Header = req.Header.Clone()
	if host := hreq.Header.Get("Host"); host != "" {
		hreq.Host = host
		hreq.Header.Del("Host")
	}

	resp, err := t.clientFor(req.SocketPath).Do(hreq)
	if err != nil {
		if ClassifyError(err) == ErrCategoryFatal {
			return nil, NewPermanentError(req.URL.Scheme, "do", err)
		}
		return nil, NewTransientError(req.URL.Scheme, "do", err)
	}
	return &TransportResponse{
		StatusCode:    resp.StatusCode,
		Header:        resp.Header,
		Body:          resp.Body,
		ContentLength: resp.ContentLength,
	}, nil
}

// CloseIdleConnections releases pooled connections.
func (t *HTTPTransport) CloseIdleConnections() {
	t.base.CloseIdleConnections()
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.sockets {
		c.CloseIdleConnections()
	}
}
