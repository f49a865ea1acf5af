package jettalib

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/danielbankhead/jetta/pkg/cookiejar"
	"github.com/danielbankhead/jetta/pkg/jerror"
	"github.com/danielbankhead/jetta/pkg/urlutil"
)

// Request defaults.
const (
	DefaultTimeLimit             = 60 * time.Second
	DefaultDataLimit             = 512 * MB
	DefaultDecompressedDataLimit = 2 * GB
	DefaultRedirectLimit         = 5
	DefaultAcceptEncoding        = "gzip, deflate, br, zstd"
)

// HeaderPolicy decides whether a request header survives a redirect.
type HeaderPolicy int

const (
	// HeaderSameSite carries the header only to same-site targets.
	HeaderSameSite HeaderPolicy = iota
	HeaderNever
	HeaderAlways
)

func (p HeaderPolicy) String() string {
	switch p {
	case HeaderNever:
		return "never"
	case HeaderAlways:
		return "always"
	}
	return "samesite"
}

// ParseHeaderPolicy accepts never, always and samesite in any case.
func ParseHeaderPolicy(s string) (HeaderPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "never":
		return HeaderNever, nil
	case "always":
		return HeaderAlways, nil
	case "samesite", "same-site", "":
		return HeaderSameSite, nil
	}
	return HeaderSameSite, fmt.Errorf("unknown header policy %q", s)
}

// BasicAuth credentials sent as an Authorization header.
type BasicAuth struct {
	User     string
	Password string
}

// Config is the resolved configuration of one hop. Build it with
// DefaultConfig and RequestOptions; the engine copies it per hop.
type Config struct {
	Method string
	Header http.Header

	// At most one body source may be set.
	Body       []byte
	Form       url.Values
	JSON       any
	BodyStream io.Reader

	BasicAuth  *BasicAuth
	SocketPath string

	// TimeLimit bounds the wait for the response head.
	TimeLimit time.Duration
	// ChunkTimeLimit bounds the gap between body chunks. Zero means
	// TimeLimit.
	ChunkTimeLimit        time.Duration
	DataLimit             int64
	DecompressedDataLimit int64
	RedirectLimit         int
	redirectLimitSet      bool
	// RedirectHeaderPolicy is keyed by canonical header name. Unlisted
	// headers use HeaderSameSite.
	RedirectHeaderPolicy map[string]HeaderPolicy
	RefererUpdates       bool

	Checksum *Checksum

	// Cookies are sent in addition to jar cookies.
	Cookies                 map[string]string
	CookieJar               *cookiejar.Jar
	TopLevelURL             string
	TopLevelBrowsingContext bool
	SecureProtocols         map[string]bool

	OutputFile          string
	ResponseDataHandler ResponseDataHandlerFunc
	StoreData           bool
	Decompress          bool
	// RateLimit throttles body reads in bytes per second. Zero is
	// unlimited.
	RateLimit  int64
	URLOptions urlutil.Options
	Handlers   *Handlers
}

// RequestOption mutates a Config.
type RequestOption func(*Config)

// DefaultConfig returns the bottom configuration layer.
func DefaultConfig() *Config {
	return &Config{
		Header:                make(http.Header),
		TimeLimit:             DefaultTimeLimit,
		DataLimit:             DefaultDataLimit,
		DecompressedDataLimit: DefaultDecompressedDataLimit,
		RedirectLimit:         DefaultRedirectLimit,
		RefererUpdates:        true,
		StoreData:             true,
		Decompress:            true,
		SecureProtocols:       copyBoolMap(cookiejar.DefaultSecureProtocols),
	}
}

func copyBoolMap(m map[string]bool) map[string]bool {
	if m == nil {
		return nil
	}
	c := make(map[string]bool, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func (c *Config) clone() *Config {
	n := *c
	n.Header = c.Header.Clone()
	if n.Header == nil {
		n.Header = make(http.Header)
	}
	if c.Form != nil {
		n.Form = make(url.Values, len(c.Form))
		for k, v := range c.Form {
			n.Form[k] = append([]string(nil), v...)
		}
	}
	if c.Cookies != nil {
		n.Cookies = make(map[string]string, len(c.Cookies))
		for k, v := range c.Cookies {
			n.Cookies[k] = v
		}
	}
	if c.RedirectHeaderPolicy != nil {
		n.RedirectHeaderPolicy = make(map[string]HeaderPolicy, len(c.RedirectHeaderPolicy))
		for k, v := range c.RedirectHeaderPolicy {
			n.RedirectHeaderPolicy[k] = v
		}
	}
	n.SecureProtocols = copyBoolMap(c.SecureProtocols)
	if c.Checksum != nil {
		cs := *c.Checksum
		n.Checksum = &cs
	}
	if c.BasicAuth != nil {
		ba := *c.BasicAuth
		n.BasicAuth = &ba
	}
	return &n
}

// buildConfig layers defaults, engine options, jar defaults and call
// options, in that order.
func buildConfig(engineOpts, callOpts []RequestOption) *Config {
	cfg := DefaultConfig()
	for _, o := range engineOpts {
		o(cfg)
	}

	probe := cfg.clone()
	for _, o := range callOpts {
		o(probe)
	}
	if probe.CookieJar != nil {
		cfg.SecureProtocols = probe.CookieJar.RequestDefaults().SecureProtocols
	}

	for _, o := range callOpts {
		o(cfg)
	}
	cfg.Method = strings.ToUpper(cfg.Method)
	if cfg.Method == "" {
		cfg.Method = http.MethodGet
		if cfg.hasBody() {
			cfg.Method = http.MethodPost
		}
	}
	if cfg.BodyStream != nil && !cfg.redirectLimitSet {
		cfg.RedirectLimit = 0
	}
	if cfg.ChunkTimeLimit <= 0 {
		cfg.ChunkTimeLimit = cfg.TimeLimit
	}
	return cfg
}

func (c *Config) hasBody() bool {
	return c.Body != nil || c.Form != nil || c.JSON != nil || c.BodyStream != nil
}

func (c *Config) dropBody() {
	c.Body, c.Form, c.JSON, c.BodyStream = nil, nil, nil, nil
	c.Header.Del("Content-Type")
	c.Header.Del("Content-Length")
}

// validate fails fast, before any I/O.
func (c *Config) validate() error {
	invalid := func(key string, v any) error {
		return jerror.New(jerror.RequestInvalidOptions, map[string]any{key: v})
	}
	sources := 0
	for _, set := range []bool{c.Body != nil, c.Form != nil, c.JSON != nil, c.BodyStream != nil} {
		if set {
			sources++
		}
	}
	switch {
	case sources > 1:
		return invalid("body", "only one of body, form, json and body stream may be set")
	case c.TimeLimit <= 0:
		return invalid("timeLimit", c.TimeLimit)
	case c.DataLimit <= 0:
		return invalid("dataLimit", c.DataLimit)
	case c.DecompressedDataLimit <= 0:
		return invalid("decompressedDataLimit", c.DecompressedDataLimit)
	case c.RedirectLimit < 0:
		return invalid("redirectLimit", c.RedirectLimit)
	case c.RateLimit < 0:
		return invalid("rateLimit", c.RateLimit)
	}
	if !validToken(c.Method) {
		return invalid("method", c.Method)
	}
	return c.Checksum.validate()
}

func validToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r <= ' ' || r >= 0x7f || strings.ContainsRune("()<>@,;:\\\"/[]?={}", r) {
			return false
		}
	}
	return true
}

// requestBody encodes the configured body. length is -1 for streams.
func (c *Config) requestBody() (body io.Reader, length int64, contentType string, err error) {
	switch {
	case c.Form != nil:
		b := c.Form.Encode()
		return strings.NewReader(b), int64(len(b)), "application/x-www-form-urlencoded", nil
	case c.JSON != nil:
		b, err := json.Marshal(c.JSON)
		if err != nil {
			return nil, 0, "", jerror.Wrap(jerror.RequestInvalidOptions, err, map[string]any{"json": fmt.Sprintf("%T", c.JSON)})
		}
		return bytes.NewReader(b), int64(len(b)), "application/json", nil
	case c.Body != nil:
		return bytes.NewReader(c.Body), int64(len(c.Body)), "", nil
	case c.BodyStream != nil:
		return c.BodyStream, -1, "", nil
	}
	return nil, 0, "", nil
}

func WithMethod(method string) RequestOption {
	return func(c *Config) { c.Method = method }
}

// WithHeader sets a request header, replacing earlier values.
func WithHeader(key, value string) RequestOption {
	return func(c *Config) { c.Header.Set(key, value) }
}

// WithHeaders adds every value of h.
func WithHeaders(h http.Header) RequestOption {
	return func(c *Config) {
		for k, vs := range h {
			for _, v := range vs {
				c.Header.Add(k, v)
			}
		}
	}
}

func WithBody(b []byte) RequestOption {
	return func(c *Config) { c.Body = b }
}

// WithForm sends an urlencoded body.
func WithForm(v url.Values) RequestOption {
	return func(c *Config) { c.Form = v }
}

// WithJSON sends v marshalled with encoding/json.
func WithJSON(v any) RequestOption {
	return func(c *Config) { c.JSON = v }
}

// WithBodyStream sends r with chunked encoding. Unless WithRedirectLimit
// is also given, redirects are not followed since r cannot be replayed.
func WithBodyStream(r io.Reader) RequestOption {
	return func(c *Config) { c.BodyStream = r }
}

func WithBasicAuth(user, password string) RequestOption {
	return func(c *Config) { c.BasicAuth = &BasicAuth{User: user, Password: password} }
}

// WithSocketPath sends HTTP requests over a Unix socket.
func WithSocketPath(path string) RequestOption {
	return func(c *Config) { c.SocketPath = path }
}

func WithTimeLimit(d time.Duration) RequestOption {
	return func(c *Config) { c.TimeLimit = d }
}

func WithChunkTimeLimit(d time.Duration) RequestOption {
	return func(c *Config) { c.ChunkTimeLimit = d }
}

func WithDataLimit(n int64) RequestOption {
	return func(c *Config) { c.DataLimit = n }
}

func WithDecompressedDataLimit(n int64) RequestOption {
	return func(c *Config) { c.DecompressedDataLimit = n }
}

func WithRedirectLimit(n int) RequestOption {
	return func(c *Config) {
		c.RedirectLimit = n
		c.redirectLimitSet = true
	}
}

// WithRedirectHeaderPolicy sets the redirect policy of one header.
func WithRedirectHeaderPolicy(header string, p HeaderPolicy) RequestOption {
	return func(c *Config) {
		if c.RedirectHeaderPolicy == nil {
			c.RedirectHeaderPolicy = make(map[string]HeaderPolicy)
		}
		c.RedirectHeaderPolicy[http.CanonicalHeaderKey(header)] = p
	}
}

func WithRefererUpdates(on bool) RequestOption {
	return func(c *Config) { c.RefererUpdates = on }
}

func WithChecksum(cs Checksum) RequestOption {
	return func(c *Config) { c.Checksum = &cs }
}

// WithCookies sends static cookies on the first hop and on same-site
// redirects.
func WithCookies(kv map[string]string) RequestOption {
	return func(c *Config) { c.Cookies = kv }
}

// WithCookieJar attaches and stores cookies through j. The jar's secure
// protocols replace the engine defaults.
func WithCookieJar(j *cookiejar.Jar) RequestOption {
	return func(c *Config) { c.CookieJar = j }
}

func WithTopLevelURL(u string) RequestOption {
	return func(c *Config) { c.TopLevelURL = u }
}

func WithTopLevelBrowsingContext(on bool) RequestOption {
	return func(c *Config) { c.TopLevelBrowsingContext = on }
}

func WithSecureProtocols(m map[string]bool) RequestOption {
	return func(c *Config) { c.SecureProtocols = copyBoolMap(m) }
}

// WithOutputFile writes the final body to path.
func WithOutputFile(path string) RequestOption {
	return func(c *Config) { c.OutputFile = path }
}

func WithResponseDataHandler(fn ResponseDataHandlerFunc) RequestOption {
	return func(c *Config) { c.ResponseDataHandler = fn }
}

// WithStoreData controls whether Result.Data is filled.
func WithStoreData(on bool) RequestOption {
	return func(c *Config) { c.StoreData = on }
}

// WithDecompression toggles Accept-Encoding and body decoding.
func WithDecompression(on bool) RequestOption {
	return func(c *Config) { c.Decompress = on }
}

func WithURLOptions(o urlutil.Options) RequestOption {
	return func(c *Config) { c.URLOptions = o }
}

func WithRateLimit(bytesPerSecond int64) RequestOption {
	return func(c *Config) { c.RateLimit = bytesPerSecond }
}

func WithHandlers(h *Handlers) RequestOption {
	return func(c *Config) { c.Handlers = h }
}
