// Package cookies reads cookies from browser cookie stores: Firefox
// cookies.sqlite, Chrome Cookies (unencrypted values only) and Netscape
// cookies.txt files. It also writes the Netscape format.
//
// Cookie values are never logged or formatted into errors.
package cookies

import (
	"strings"
	"time"

	"github.com/danielbankhead/jetta/pkg/cookielib"
)

// Format identifies a cookie store format.
type Format int

const (
	FormatUnknown Format = iota
	FormatFirefox
	FormatChrome
	FormatNetscape
)

func (f Format) String() string {
	switch f {
	case FormatFirefox:
		return "Firefox"
	case FormatChrome:
		return "Chrome"
	case FormatNetscape:
		return "Netscape"
	default:
		return "unknown"
	}
}

// Cookie is one cookie read from a store.
type Cookie struct {
	Name string
	// Value is sensitive.
	Value string
	// Domain keeps the leading dot of domain cookies.
	Domain string
	Path   string
	// Expiry is zero for session cookies.
	Expiry   time.Time
	Secure   bool
	HttpOnly bool
	SameSite cookielib.SameSite
}

// HostOnly reports whether the cookie is bound to exactly its host.
func (c Cookie) HostOnly() bool {
	return !strings.HasPrefix(c.Domain, ".")
}

// Session reports whether the cookie has no expiry.
func (c Cookie) Session() bool {
	return c.Expiry.IsZero()
}

// Source describes where cookies were read from.
type Source struct {
	Path   string
	Format Format
}

// matchesDomain reports whether cookieDomain is domain or one of its
// subdomains. An empty domain matches everything.
func matchesDomain(cookieDomain, domain string) bool {
	if domain == "" {
		return true
	}
	cookieDomain = strings.ToLower(strings.TrimLeft(cookieDomain, "."))
	domain = strings.ToLower(strings.TrimLeft(domain, "."))
	return cookieDomain == domain || strings.HasSuffix(cookieDomain, "."+domain)
}

func sameSiteFromStore(v int) cookielib.SameSite {
	switch v {
	case 1:
		return cookielib.SameSiteLax
	case 2:
		return cookielib.SameSiteStrict
	default:
		return cookielib.SameSiteNone
	}
}
