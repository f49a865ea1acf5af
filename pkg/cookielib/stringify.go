package cookielib

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/danielbankhead/jetta/pkg/jerror"
)

// StringifyCookieHeader joins pairs into a Cookie header value after
// validating every name and value.
func StringifyCookieHeader(pairs []Pair) (string, error) {
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		s, err := stringifyPair(p.Name, p.Value)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "; "), nil
}

// StringifyCookieHeaderKV is StringifyCookieHeader for a map. Names are
// emitted in sorted order.
func StringifyCookieHeaderKV(kv map[string]string) (string, error) {
	names := make([]string, 0, len(kv))
	for name := range kv {
		names = append(names, name)
	}
	sort.Strings(names)
	pairs := make([]Pair, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, Pair{Name: name, Value: kv[name]})
	}
	return StringifyCookieHeader(pairs)
}

func stringifyPair(name, value string) (string, error) {
	if !validName.MatchString(name) {
		return "", jerror.New(jerror.CookieInvalidName, map[string]any{"name": name})
	}
	value = unquote(value)
	if !validValue.MatchString(value) {
		return "", jerror.New(jerror.CookieInvalidValue, map[string]any{"name": name})
	}
	return name + "=" + value, nil
}

// StringifySetCookieHeader serializes attrs in canonical order: name=value,
// Expires, Max-Age, Domain, Path, Secure, HttpOnly, SameSite, then
// extensions in insertion order. The output is parsed again in ctx and
// re-serialized, so only headers that parse are ever returned. A nil ctx
// checks syntax only: secure attributes and past expiry are accepted.
func StringifySetCookieHeader(attrs *Attributes, ctx *Context) (string, error) {
	if ctx == nil {
		ctx = &Context{IsSecureEnv: true, AllowExpiredSetCookie: true}
	}
	raw, err := format(attrs)
	if err != nil {
		return "", err
	}
	parsed, err := ParseSetCookieHeader(raw, ctx)
	if err != nil {
		return "", err
	}
	return format(parsed)
}

func format(a *Attributes) (string, error) {
	if a == nil {
		return "", jerror.New(jerror.CookieInvalidNameValuePair, nil)
	}
	head, err := stringifyPair(a.Name, a.Value)
	if err != nil {
		return "", err
	}
	parts := []string{head}
	if a.Expires != nil {
		parts = append(parts, "Expires="+a.Expires.UTC().Format(http.TimeFormat))
	}
	if a.MaxAge != nil {
		parts = append(parts, "Max-Age="+strconv.FormatInt(*a.MaxAge, 10))
	}
	if a.Domain != "" {
		parts = append(parts, "Domain="+a.Domain)
	}
	if a.Path != "" {
		parts = append(parts, "Path="+a.Path)
	}
	if a.Secure {
		parts = append(parts, "Secure")
	}
	if a.HttpOnly {
		parts = append(parts, "HttpOnly")
	}
	if a.SameSite != SameSiteNone {
		parts = append(parts, "SameSite="+a.SameSite.String())
	}
	for _, e := range a.Extensions {
		if e.Flag {
			parts = append(parts, e.Name)
		} else {
			parts = append(parts, e.Name+"="+e.Value)
		}
	}
	return strings.Join(parts, "; "), nil
}
