package jettalib

import (
	"errors"
	"net/url"
	"strings"
)

var (
	ErrEmptyProxyURL     = errors.New("proxy URL cannot be empty")
	ErrUnsupportedScheme = errors.New("unsupported proxy scheme")
	ErrInvalidProxyURL   = errors.New("invalid proxy URL")
)

// ProxyConfig is a validated http, https or socks5 proxy.
type ProxyConfig struct {
	Scheme   string
	Host     string
	Username string
	Password string
}

func (p *ProxyConfig) url() *url.URL {
	u := &url.URL{Scheme: p.Scheme, Host: p.Host}
	switch {
	case p.Password != "":
		u.User = url.UserPassword(p.Username, p.Password)
	case p.Username != "":
		u.User = url.User(p.Username)
	}
	return u
}

// URL returns the proxy URL including credentials.
func (p *ProxyConfig) URL() string {
	return p.url().String()
}

// Redacted masks the password so the proxy can be logged.
func (p *ProxyConfig) Redacted() string {
	return p.url().Redacted()
}

// ParseProxyURL accepts scheme://[user[:password]@]host[:port] with an
// http, https or socks5 scheme.
func ParseProxyURL(raw string) (*ProxyConfig, error) {
	if raw == "" {
		return nil, ErrEmptyProxyURL
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, ErrInvalidProxyURL
	}
	p := &ProxyConfig{Scheme: strings.ToLower(u.Scheme), Host: u.Host}
	switch p.Scheme {
	case "http", "https", "socks5":
	default:
		return nil, ErrUnsupportedScheme
	}
	if u.User != nil {
		p.Username = u.User.Username()
		p.Password, _ = u.User.Password()
	}
	return p, nil
}
