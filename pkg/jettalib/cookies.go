package jettalib

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielbankhead/jetta/pkg/cookiejar"
	"github.com/danielbankhead/jetta/pkg/cookielib"
	"github.com/danielbankhead/jetta/pkg/jerror"
	"github.com/danielbankhead/jetta/pkg/urlutil"
)

// waitJar suspends the request until the jar can match cookies. It waits
// once; a failed jar ends the request.
func (e *Engine) waitJar(ctx context.Context, id string, cfg *Config) error {
	j := cfg.CookieJar
	if j == nil {
		return nil
	}
	select {
	case <-j.Ready():
	default:
		e.log.Debug("%s: waiting for the cookie jar", id)
	}
	if err := j.WaitReady(ctx); err != nil {
		if ctx.Err() != nil {
			return jerror.Wrap(jerror.RequestAborted, ctx.Err(), nil)
		}
		return jerror.Wrap(jerror.RequestCookieManagerSetupError, err, nil)
	}
	return nil
}

// cookieHeader joins an explicit Cookie header, the static cookies and
// the jar cookies for the hop URL.
func cookieHeader(cfg *Config, norm urlutil.Result, hopURL string) (string, error) {
	var parts []string
	if v := cfg.Header.Get("Cookie"); v != "" {
		parts = append(parts, v)
	}
	if len(cfg.Cookies) > 0 {
		static, err := cookielib.StringifyCookieHeaderKV(cfg.Cookies)
		if err != nil {
			return "", jerror.Wrap(jerror.RequestErrorProcessingCookieHeader, err, nil)
		}
		if static != "" {
			parts = append(parts, static)
		}
	}
	if cfg.CookieJar != nil && norm.Hostname != "" {
		fromJar, err := cfg.CookieJar.GenerateCookieHeader(hopURL, &cookiejar.MatchOptions{
			Method:                  cfg.Method,
			IsSecureEnv:             cfg.SecureProtocols[norm.Scheme],
			TopLevelURL:             cfg.TopLevelURL,
			TopLevelBrowsingContext: cfg.TopLevelBrowsingContext,
		})
		if err != nil {
			return "", jerror.Wrap(jerror.RequestErrorProcessingCookieHeader, err, nil)
		}
		if fromJar != "" {
			parts = append(parts, fromJar)
		}
	}
	return strings.Join(parts, "; "), nil
}

// storeCookies feeds every Set-Cookie of a hop to the jar. The first
// rejected cookie aborts the hop.
func storeCookies(cfg *Config, norm urlutil.Result, hopURL string, h http.Header) error {
	if cfg.CookieJar == nil || norm.Hostname == "" {
		return nil
	}
	opts := &cookiejar.SetOptions{
		RequestURL:  hopURL,
		TopLevelURL: cfg.TopLevelURL,
		IsSecureEnv: cfg.SecureProtocols[norm.Scheme],
	}
	for _, raw := range h.Values("Set-Cookie") {
		if _, err := cfg.CookieJar.AddCookie(raw, opts); err != nil {
			return jerror.Wrap(jerror.RequestErrorSettingCookie, err, map[string]any{"url": hopURL})
		}
	}
	return nil
}
