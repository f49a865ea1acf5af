package cookielib

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielbankhead/jetta/pkg/jerror"
	"github.com/danielbankhead/jetta/pkg/urlutil"
)

// maxSafeInteger is the largest Max-Age accepted, 2^53-1.
const maxSafeInteger = 1<<53 - 1

var expiresLayouts = []string{
	http.TimeFormat,
	time.RFC1123,
	time.RFC1123Z,
	"Mon, 02-Jan-2006 15:04:05 MST",
	"Mon, 02 Jan 2006 15:04:05 -0700",
	"Monday, 02-Jan-06 15:04:05 MST",
	time.ANSIC,
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 02-Jan-06 15:04:05 MST",
	time.RFC3339,
}

func parseExpires(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	for _, layout := range expiresLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseCookieHeader parses a Cookie request header into ordered pairs.
// It fails on the first malformed segment.
func ParseCookieHeader(text string) ([]Pair, error) {
	var pairs []Pair
	for _, seg := range segments(text) {
		name, value, err := splitPair(seg)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, Pair{Name: name, Value: value})
	}
	return pairs, nil
}

// ParseCookieHeaderKV is ParseCookieHeader keyed by name; later duplicates
// win.
func ParseCookieHeaderKV(text string) (map[string]string, error) {
	pairs, err := ParseCookieHeader(text)
	if err != nil {
		return nil, err
	}
	kv := make(map[string]string, len(pairs))
	for _, p := range pairs {
		kv[p.Name] = p.Value
	}
	return kv, nil
}

// ParseSetCookieHeader parses and validates a Set-Cookie header in ctx.
// A nil ctx is the zero Context.
func ParseSetCookieHeader(text string, ctx *Context) (*Attributes, error) {
	if ctx == nil {
		ctx = &Context{}
	}

	var request urlutil.Result
	if ctx.RequestURL != "" {
		request = urlutil.Normalize(strings.TrimLeft(ctx.RequestURL, "."), urlutil.Options{AddMissingProtocol: true})
		if !request.IsValid || request.Hostname == "" {
			return nil, jerror.New(jerror.CookieRequestURLInvalid, map[string]any{"url": urlutil.StripURLCredentials(ctx.RequestURL)})
		}
	}

	segs := segments(text)
	name, value, err := splitPair(segs[0])
	if err != nil {
		return nil, err
	}
	attrs := &Attributes{Name: name, Value: value}

	for _, seg := range segs[1:] {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		key, val, hasValue := strings.Cut(seg, "=")
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		if err := attrs.apply(key, val, hasValue, ctx); err != nil {
			return nil, err
		}
	}

	if err := attrs.checkPrefixes(ctx); err != nil {
		return nil, err
	}
	if attrs.Secure && !ctx.IsSecureEnv {
		return nil, jerror.New(jerror.CookieSecureAttributeNotSecureEnv, map[string]any{"name": attrs.Name})
	}

	if request.URL != nil && attrs.Path == "" {
		p := request.URL.EscapedPath()
		if !validPath.MatchString(p) {
			return nil, jerror.New(jerror.CookieInvalidPath, map[string]any{"path": p})
		}
		attrs.Path = DefaultPath(p)
	}

	if request.URL != nil && attrs.Domain != "" {
		if err := checkDomain(request.Hostname, attrs.Domain, ctx); err != nil {
			return nil, err
		}
	}
	return attrs, nil
}

func (a *Attributes) apply(key, val string, hasValue bool, ctx *Context) error {
	switch strings.ToLower(key) {
	case "expires":
		if !hasValue {
			return jerror.New(jerror.CookieInvalidExpires, nil)
		}
		t, ok := parseExpires(val)
		if !ok {
			return jerror.New(jerror.CookieInvalidExpires, map[string]any{"value": val})
		}
		if t.Before(ctx.now()) && !ctx.AllowExpiredSetCookie {
			return jerror.New(jerror.CookieExpired, map[string]any{"attribute": "Expires"})
		}
		a.Expires = &t
	case "max-age":
		if !hasValue || val == "" {
			return jerror.New(jerror.CookieInvalidMaxAge, nil)
		}
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil || n > maxSafeInteger || n < -maxSafeInteger {
			return jerror.Wrap(jerror.CookieInvalidMaxAge, err, map[string]any{"value": val})
		}
		if n < 1 && !ctx.AllowExpiredSetCookie {
			return jerror.New(jerror.CookieExpired, map[string]any{"attribute": "Max-Age"})
		}
		a.MaxAge = &n
	case "domain":
		candidate := strings.TrimLeft(val, ".")
		res := urlutil.Normalize(candidate, urlutil.Options{AddMissingProtocol: true})
		if !hasValue || !res.IsValid || res.Hostname == "" || res.URL.Path != "" || res.URL.RawQuery != "" {
			return jerror.New(jerror.CookieInvalidDomain, map[string]any{"domain": val})
		}
		a.Domain = res.Hostname
	case "path":
		if !hasValue || !validPath.MatchString(val) {
			return jerror.New(jerror.CookieInvalidPath, map[string]any{"path": val})
		}
		a.Path = val
	case "secure":
		if hasValue {
			return jerror.New(jerror.CookieInvalidSecure, map[string]any{"value": val})
		}
		a.Secure = true
	case "httponly":
		if hasValue {
			return jerror.New(jerror.CookieInvalidHttpOnly, map[string]any{"value": val})
		}
		if ctx.NonHTTPAPI {
			return jerror.New(jerror.CookieHttpOnlyFromNonHttpAPI, nil)
		}
		a.HttpOnly = true
	case "samesite":
		if hasValue && strings.EqualFold(val, "lax") {
			a.SameSite = SameSiteLax
		} else {
			a.SameSite = SameSiteStrict
		}
	default:
		a.setExtension(Extension{Name: key, Value: val, Flag: !hasValue})
	}
	return nil
}

func (a *Attributes) checkPrefixes(ctx *Context) error {
	details := map[string]any{"name": a.Name}
	switch {
	case strings.HasPrefix(a.Name, SecurePrefix):
		if !ctx.IsSecureEnv {
			return jerror.New(jerror.CookieSecurePrefixNotSecureEnv, details)
		}
		if !a.Secure {
			return jerror.New(jerror.CookieSecurePrefixMissingSecure, details)
		}
	case strings.HasPrefix(a.Name, HostPrefix):
		if !ctx.IsSecureEnv {
			return jerror.New(jerror.CookieHostPrefixNotSecureEnv, details)
		}
		if !a.Secure {
			return jerror.New(jerror.CookieHostPrefixMissingSecure, details)
		}
		if a.Domain != "" {
			return jerror.New(jerror.CookieHostPrefixNoDomain, details)
		}
		if a.Path != "/" {
			return jerror.New(jerror.CookieHostPrefixPathNotRoot, details)
		}
	}
	return nil
}

// checkDomain enforces RFC 6265 section 4.1.2.3: the request host must
// domain-match the Domain attribute, which must not be a public suffix
// unless it is the request host itself.
func checkDomain(hostname, domain string, ctx *Context) error {
	details := map[string]any{"hostname": hostname, "cookieDomain": domain}
	if !urlutil.DomainInOtherDomain(hostname, domain) {
		return jerror.New(jerror.CookieHostnameNotInEnv, details)
	}
	if hostname != domain && ctx.PublicSuffix != nil {
		isSuffix, err := ctx.PublicSuffix.IsPublicSuffix(domain)
		if err != nil {
			return jerror.Wrap(jerror.CookiePublicSuffixError, err, details)
		}
		if isSuffix {
			return jerror.New(jerror.CookieHostnameIsPublicSuffix, details)
		}
	}
	return nil
}

// DefaultPath computes the RFC 6265 section 5.1.4 default-path of a
// request path: everything up to, not including, the last "/".
func DefaultPath(requestPath string) string {
	if requestPath == "" || requestPath[0] != '/' {
		return "/"
	}
	i := strings.LastIndexByte(requestPath, '/')
	if i == 0 {
		return "/"
	}
	return requestPath[:i]
}
