package cmd

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/danielbankhead/jetta/pkg/jettalib"
)

// ParseCookieFlags converts --cookie values into static request cookies.
// Input: ["session=abc", "user=xyz"]
func ParseCookieFlags(flags []string) (map[string]string, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	cookies := make(map[string]string, len(flags))
	for _, flag := range flags {
		name, value, ok := strings.Cut(strings.TrimSpace(flag), "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid cookie format: %q (expected 'name=value')", flag)
		}
		cookies[name] = value
	}
	return cookies, nil
}

// ParseHeaderFlags converts "Key: Value" pairs into a header.
func ParseHeaderFlags(flags []string) (http.Header, error) {
	h := make(http.Header)
	for _, flag := range flags {
		k, v, ok := strings.Cut(flag, ":")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid header format: %q (expected 'Key: Value')", flag)
		}
		h.Add(k, strings.TrimSpace(v))
	}
	return h, nil
}

// ParseFormFlags converts "key=value" pairs into form values.
func ParseFormFlags(flags []string) (url.Values, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	v := make(url.Values)
	for _, flag := range flags {
		k, val, ok := strings.Cut(flag, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid form field: %q (expected 'key=value')", flag)
		}
		v.Add(k, val)
	}
	return v, nil
}

// ParseRedirectPolicyFlags reads "Header=never|always|samesite" pairs.
func ParseRedirectPolicyFlags(flags []string) (map[string]jettalib.HeaderPolicy, error) {
	policies := make(map[string]jettalib.HeaderPolicy, len(flags))
	for _, flag := range flags {
		k, v, ok := strings.Cut(flag, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid redirect header policy: %q (expected 'Header=policy')", flag)
		}
		p, err := jettalib.ParseHeaderPolicy(v)
		if err != nil {
			return nil, err
		}
		policies[strings.TrimSpace(k)] = p
	}
	return policies, nil
}

// parseSizeFlag returns 0, false for an empty value.
func parseSizeFlag(name, v string) (int64, bool, error) {
	if v == "" {
		return 0, false, nil
	}
	n, err := jettalib.ParseSize(v)
	if err != nil {
		return 0, false, fmt.Errorf("--%s: %w", name, err)
	}
	return n, true, nil
}
