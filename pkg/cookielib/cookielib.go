// Package cookielib parses and serializes Cookie and Set-Cookie headers
// following RFC 6265. It is stateless; the jar builds on it.
package cookielib

import (
	"regexp"
	"strings"
	"time"

	"github.com/danielbankhead/jetta/pkg/jerror"
	"github.com/danielbankhead/jetta/pkg/publicsuffix"
)

const (
	SecurePrefix = "__Secure-"
	HostPrefix   = "__Host-"
)

var (
	// cookie-name is an RFC 2616 token.
	validName = regexp.MustCompile(`^[\x21\x23-\x27\x2a\x2b\x2d\x2e\x30-\x39\x41-\x5a\x5e-\x7a\x7c\x7e]+$`)
	// cookie-octet, RFC 6265 section 4.1.1.
	validValue = regexp.MustCompile(`^[\x21\x23-\x2b\x2d-\x3a\x3c-\x5b\x5d-\x7e]*$`)
	// path-value, RFC 6265 section 4.1.1.
	validPath = regexp.MustCompile(`^[\x20-\x3a\x3c-\x7e]*$`)
)

var safeMethods = map[string]bool{
	"GET":     true,
	"HEAD":    true,
	"OPTIONS": true,
	"TRACE":   true,
}

// IsSafeMethod reports whether method is GET, HEAD, OPTIONS or TRACE.
func IsSafeMethod(method string) bool {
	return safeMethods[strings.ToUpper(method)]
}

// ValidName reports whether name is a valid cookie-name.
func ValidName(name string) bool {
	return validName.MatchString(name)
}

// ValidValue reports whether value, after removing one pair of surrounding
// double quotes, is made of cookie-octets.
func ValidValue(value string) bool {
	return validValue.MatchString(unquote(value))
}

// ValidPath reports whether path is a valid path-value.
func ValidPath(path string) bool {
	return validPath.MatchString(path)
}

// SameSite is the SameSite attribute of a cookie.
type SameSite int

const (
	SameSiteNone SameSite = iota
	SameSiteLax
	SameSiteStrict
)

func (s SameSite) String() string {
	switch s {
	case SameSiteLax:
		return "Lax"
	case SameSiteStrict:
		return "Strict"
	default:
		return "None"
	}
}

// ParseSameSite maps "lax" to Lax, "" and "none" to None and anything else
// to Strict.
func ParseSameSite(v string) SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "lax":
		return SameSiteLax
	case "", "none":
		return SameSiteNone
	default:
		return SameSiteStrict
	}
}

func (s SameSite) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SameSite) UnmarshalText(b []byte) error {
	*s = ParseSameSite(string(b))
	return nil
}

// Pair is one name=value entry of a Cookie header.
type Pair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Extension is an attribute the codec does not interpret.
type Extension struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
	// Flag is set when the attribute had no "=".
	Flag bool `json:"flag,omitempty"`
}

// Attributes is a parsed Set-Cookie header with every case-insensitive
// spelling collapsed into one field.
type Attributes struct {
	Name    string
	Value   string
	Expires *time.Time
	// MaxAge is in seconds.
	MaxAge *int64
	// Domain is the normalized hostname without leading dots; "" if absent.
	Domain string
	// Path is "" if absent.
	Path       string
	Secure     bool
	HttpOnly   bool
	SameSite   SameSite
	Extensions []Extension
}

// Clone returns a deep copy.
func (a *Attributes) Clone() *Attributes {
	c := *a
	if a.Expires != nil {
		t := *a.Expires
		c.Expires = &t
	}
	if a.MaxAge != nil {
		m := *a.MaxAge
		c.MaxAge = &m
	}
	c.Extensions = append([]Extension(nil), a.Extensions...)
	return &c
}

// Extension returns the value of an unknown attribute.
func (a *Attributes) Extension(name string) (Extension, bool) {
	for _, e := range a.Extensions {
		if e.Name == name {
			return e, true
		}
	}
	return Extension{}, false
}

func (a *Attributes) setExtension(e Extension) {
	for i := range a.Extensions {
		if a.Extensions[i].Name == e.Name {
			a.Extensions[i] = e
			return
		}
	}
	a.Extensions = append(a.Extensions, e)
}

// Context is the environment a Set-Cookie header is evaluated in.
// The zero value is an HTTP API write in an insecure environment that
// rejects expired cookies.
type Context struct {
	// RequestURL is the URL that produced the header. Leading dots are
	// ignored and a missing scheme is assumed to be https.
	RequestURL string
	// IsSecureEnv is true for TLS protected transports.
	IsSecureEnv bool
	// NonHTTPAPI marks writes from scripts and other non-HTTP sources.
	NonHTTPAPI bool
	// AllowExpiredSetCookie accepts past Expires and Max-Age < 1 so the
	// caller can treat them as deletions.
	AllowExpiredSetCookie bool
	// PublicSuffix rejects domains that are public suffixes. Optional.
	PublicSuffix publicsuffix.Checker
	// Now defaults to time.Now.
	Now func() time.Time
}

func (c *Context) now() time.Time {
	if c != nil && c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func unquote(v string) string {
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		return v[1 : len(v)-1]
	}
	return v
}

// splitPair splits "name=value", trimming both halves and unquoting value.
func splitPair(segment string) (name, value string, err error) {
	segment = strings.TrimSpace(segment)
	i := strings.IndexByte(segment, '=')
	if i < 0 {
		return "", "", jerror.New(jerror.CookieInvalidNameValuePair, nil)
	}
	name = strings.TrimSpace(segment[:i])
	value = unquote(strings.TrimSpace(segment[i+1:]))
	if !validName.MatchString(name) {
		return "", "", jerror.New(jerror.CookieInvalidName, map[string]any{"name": name})
	}
	if !validValue.MatchString(value) {
		return "", "", jerror.New(jerror.CookieInvalidValue, map[string]any{"name": name})
	}
	return name, value, nil
}

func segments(text string) []string {
	return strings.Split(strings.TrimSuffix(text, ";"), ";")
}
