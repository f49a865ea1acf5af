// Package urlutil normalizes and validates URL-like input for the cookie jar
// and the request engine.
package urlutil

import (
	"net"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

// DefaultProtocolReplacement is prepended when AddMissingProtocol is set and
// the candidate has no scheme.
const DefaultProtocolReplacement = "https:"

var (
	schemePrefix        = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)
	dotOrDashAtEdge     = regexp.MustCompile(`(^[.-])|([.-]$)`)
	doubledDotOrDash    = regexp.MustCompile(`[.-][.-]`)
	loopbackV4          = regexp.MustCompile(`^127\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)
	numericOnlyHostname = regexp.MustCompile(`^\d+$`)
)

// Options control Normalize. The zero value accepts any scheme, IP addresses
// and localhost, and never adds a missing scheme.
type Options struct {
	// AddMissingProtocol prefixes ProtocolReplacement once when the
	// candidate has no scheme.
	AddMissingProtocol bool
	// ProtocolReplacement defaults to DefaultProtocolReplacement.
	ProtocolReplacement string
	// ProtocolsAllowed restricts schemes (lowercase, without ':'). nil allows all.
	ProtocolsAllowed map[string]bool
	// DisallowIPAddresses rejects hosts that are IP literals.
	DisallowIPAddresses bool
	// DisallowLocalhost rejects localhost, ::1 and 127.0.0.0/8.
	DisallowLocalhost bool
}

// Result is the outcome of Normalize.
type Result struct {
	IsValid     bool
	IsLocalhost bool
	// URL is the parsed URL; it may be set even when IsValid is false.
	URL *url.URL
	// Hostname is the lowercase ASCII hostname without port.
	Hostname string
	Scheme   string
}

// String returns the normalized URL or "".
func (r Result) String() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.String()
}

// Normalize parses candidate and validates its scheme and hostname.
// data: and file: URLs are valid without a host.
func Normalize(candidate string, opts Options) Result {
	return normalize(strings.TrimSpace(candidate), opts, false)
}

func normalize(candidate string, opts Options, protocolAdded bool) Result {
	var res Result
	if candidate == "" || strings.ContainsAny(candidate, " \t\r\n") {
		return res
	}

	lower := strings.ToLower(candidate)
	if strings.HasPrefix(lower, "data:") || strings.HasPrefix(lower, "file:") {
		u, err := url.Parse(candidate)
		if err != nil {
			return res
		}
		res.URL = u
		res.Scheme = strings.ToLower(u.Scheme)
		res.IsValid = schemeAllowed(opts, res.Scheme)
		return res
	}

	if !schemePrefix.MatchString(candidate) {
		if !opts.AddMissingProtocol || protocolAdded {
			return res
		}
		replacement := opts.ProtocolReplacement
		if replacement == "" {
			replacement = DefaultProtocolReplacement
		}
		return normalize(replacement+"//"+strings.TrimLeft(candidate, "/"), opts, true)
	}

	u, err := url.Parse(candidate)
	if err != nil {
		return res
	}
	u.Scheme = strings.ToLower(u.Scheme)
	res.URL = u
	res.Scheme = u.Scheme

	host := u.Hostname()
	if host == "" {
		return res
	}
	host, ok := toASCII(host)
	if !ok {
		return res
	}
	res.Hostname = host
	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		u.Host = "[" + host + "]"
	} else {
		u.Host = host
	}

	if !schemeAllowed(opts, res.Scheme) {
		return res
	}
	if opts.DisallowIPAddresses && IsIP(host) {
		return res
	}

	if IsLocalhost(host) {
		res.IsLocalhost = true
		if opts.DisallowLocalhost {
			return res
		}
	} else if dotOrDashAtEdge.MatchString(host) {
		return res
	}

	if !ValidHostname(host) {
		return res
	}
	res.IsValid = true
	return res
}

func schemeAllowed(opts Options, scheme string) bool {
	if opts.ProtocolsAllowed == nil {
		return true
	}
	return opts.ProtocolsAllowed[scheme]
}

func toASCII(host string) (string, bool) {
	host = strings.ToLower(host)
	if IsIP(host) {
		return host, true
	}
	for i := 0; i < len(host); i++ {
		if host[i] >= 0x80 {
			ascii, err := idna.Lookup.ToASCII(host)
			if err != nil {
				return "", false
			}
			return ascii, true
		}
	}
	return host, true
}

// ValidHostname reports whether every label of host is free of doubled or
// edge dots and dashes. Punycode labels (xn--) are exempt.
func ValidHostname(host string) bool {
	if IsIP(host) {
		return true
	}
	for _, label := range strings.Split(host, ".") {
		if strings.HasPrefix(label, "xn--") {
			continue
		}
		if doubledDotOrDash.MatchString(label) || dotOrDashAtEdge.MatchString(label) {
			return false
		}
	}
	return true
}

// IsIP reports whether host is an IP literal, including bare numeric hosts.
func IsIP(host string) bool {
	h := strings.Trim(host, "[]")
	if net.ParseIP(h) != nil {
		return true
	}
	stripped := strings.NewReplacer(":", "", ".", "").Replace(h)
	return stripped != "" && numericOnlyHostname.MatchString(stripped)
}

// IsLocalhost reports whether host refers to the loopback interface.
func IsLocalhost(host string) bool {
	h := strings.Trim(strings.ToLower(host), "[]")
	return h == "localhost" || h == "::1" || loopbackV4.MatchString(h)
}

// DomainInOtherDomain reports whether child equals parent or is a
// subdomain of it. Leading dots are ignored on both sides. IP addresses
// only match themselves.
func DomainInOtherDomain(child, parent string) bool {
	child = strings.TrimLeft(child, ".")
	parent = strings.TrimLeft(parent, ".")
	if child == "" || parent == "" {
		return false
	}
	if child == parent {
		return true
	}
	if IsIP(child) || IsIP(parent) {
		return false
	}
	return len(child) > len(parent) && strings.HasSuffix(child, "."+parent)
}

// RegistrableDomain returns the eTLD+1 of host, or host itself when it is an
// IP, localhost or a bare public suffix.
func RegistrableDomain(host string) string {
	host = strings.TrimLeft(strings.ToLower(host), ".")
	if IsIP(host) || IsLocalhost(host) {
		return host
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}

// SameSite reports whether a and b share a registrable domain.
func SameSite(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return RegistrableDomain(a) == RegistrableDomain(b)
}

// StripCredentials returns u without userinfo or fragment.
func StripCredentials(u *url.URL) *url.URL {
	if u == nil {
		return nil
	}
	c := *u
	c.User = nil
	c.Fragment = ""
	c.RawFragment = ""
	return &c
}

// StripURLCredentials removes userinfo from rawURL for logging.
// Unparseable input is returned unchanged.
func StripURLCredentials(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	parsed.User = nil
	return parsed.String()
}

// IsSecureScheme reports whether scheme is TLS protected by default.
func IsSecureScheme(scheme string) bool {
	switch strings.ToLower(scheme) {
	case "https", "wss", "ftps", "sftp":
		return true
	}
	return false
}
