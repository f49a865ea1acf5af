package jettalib

import (
	"net/http"
	"net/url"

	"github.com/danielbankhead/jetta/pkg/jerror"
	"github.com/danielbankhead/jetta/pkg/urlutil"
)

// hopState is everything needed to dispatch one hop.
type hopState struct {
	cfg  *Config
	norm urlutil.Result
}

// isRedirect reports whether a hop should be followed.
func isRedirect(status int, location string) bool {
	return status >= 300 && status < 400 && location != ""
}

// nextHop derives the configuration of the hop that follows a redirect
// from cur. cur is not modified.
func nextHop(cur *hopState, status int, location string) (*hopState, error) {
	ref, err := url.Parse(location)
	if err != nil {
		return nil, jerror.Wrap(jerror.RequestInvalidURL, err, map[string]any{"location": urlutil.StripURLCredentials(location)})
	}
	target := cur.norm.URL.ResolveReference(ref)
	norm := urlutil.Normalize(target.String(), cur.cfg.URLOptions)
	if !norm.IsValid {
		return nil, jerror.New(jerror.RequestInvalidURL, map[string]any{"location": urlutil.StripURLCredentials(target.String())})
	}
	if isLocalScheme(norm.Scheme) {
		return nil, jerror.New(jerror.RequestUnsupportedProtocol, map[string]any{
			"protocol": norm.Scheme,
			"reason":   "redirects to local schemes are not followed",
		})
	}

	cfg := cur.cfg.clone()
	sameSite := urlutil.SameSite(cur.norm.Hostname, norm.Hostname)

	if status != http.StatusTemporaryRedirect && status != http.StatusPermanentRedirect {
		cfg.dropBody()
		if cfg.Method != http.MethodGet && cfg.Method != http.MethodHead {
			cfg.Method = http.MethodGet
		}
	} else if cfg.BodyStream != nil {
		return nil, jerror.New(jerror.RequestStreamError, map[string]any{"reason": "a streamed body cannot be resent"})
	}

	explicitAuth := cfg.Header.Get("Authorization") != ""
	for name := range cfg.Header {
		switch name {
		case "Authorization", "Referer":
			continue
		case "Host":
			cfg.Header.Del(name)
			continue
		}
		p := cfg.RedirectHeaderPolicy[name]
		if p == HeaderNever || (p == HeaderSameSite && !sameSite) {
			cfg.Header.Del(name)
		}
	}

	if !sameSite {
		cfg.Cookies = nil
		cfg.Header.Del("Cookie")
		cfg.SocketPath = ""
	}

	switch {
	case norm.URL.User != nil:
		cfg.Header.Del("Authorization")
		cfg.BasicAuth = userinfoAuth(norm.URL.User)
	case explicitAuth:
		cfg.Header.Del("Authorization")
		cfg.BasicAuth = nil
	case cfg.BasicAuth != nil && sameSite:
	default:
		cfg.BasicAuth = nil
	}

	cfg.Header.Del("Referer")
	if cfg.RefererUpdates && refererAllowed(cfg, cur.norm, norm) {
		cfg.Header.Set("Referer", urlutil.StripCredentials(cur.norm.URL).String())
	}

	return &hopState{cfg: cfg, norm: norm}, nil
}

// refererAllowed withholds local and localhost origins and never leaks a
// secure URL to an insecure one.
func refererAllowed(cfg *Config, from, to urlutil.Result) bool {
	if isLocalScheme(from.Scheme) || from.IsLocalhost {
		return false
	}
	return !(cfg.SecureProtocols[from.Scheme] && !cfg.SecureProtocols[to.Scheme])
}

func userinfoAuth(u *url.Userinfo) *BasicAuth {
	pass, _ := u.Password()
	return &BasicAuth{User: u.Username(), Password: pass}
}
