package cookiejar

import (
	"sort"
	"strings"

	"github.com/danielbankhead/jetta/pkg/cookielib"
	"github.com/danielbankhead/jetta/pkg/jerror"
	"github.com/danielbankhead/jetta/pkg/urlutil"
)

type match struct {
	key Key
	sc  *StoredCookie
}

// GenerateCookieHeader returns the Cookie header value for a request to
// requestURL, or "" when no cookie applies. Longer paths come first;
// equal paths keep creation order. Every returned cookie has its last
// access time updated.
func (j *Jar) GenerateCookieHeader(requestURL string, opts *MatchOptions) (string, error) {
	if opts == nil {
		opts = &MatchOptions{}
	}
	req := urlutil.Normalize(requestURL, urlutil.Options{AddMissingProtocol: true})
	if !req.IsValid || req.Hostname == "" {
		return "", jerror.New(jerror.CookieRequestURLInvalid, map[string]any{"url": urlutil.StripURLCredentials(requestURL)})
	}
	reqPath := req.URL.EscapedPath()
	if reqPath == "" {
		reqPath = "/"
	}

	var topHost string
	if opts.TopLevelURL != "" {
		top := urlutil.Normalize(opts.TopLevelURL, urlutil.Options{AddMissingProtocol: true})
		if !top.IsValid || top.Hostname == "" {
			return "", jerror.New(jerror.CookieTopLevelURLInvalid, map[string]any{"url": urlutil.StripURLCredentials(opts.TopLevelURL)})
		}
		topHost = top.Hostname
	}
	method := opts.Method
	if method == "" {
		method = "GET"
	}

	j.mu.Lock()
	now := j.nowMs()
	events := j.sweepLocked(now)

	var matches []match
	j.rangeLocked(func(k Key, sc *StoredCookie) {
		if sc.HostOnly {
			if k.Domain != req.Hostname {
				return
			}
		} else if !urlutil.DomainInOtherDomain(req.Hostname, k.Domain) {
			return
		}
		if !pathMatch(reqPath, k.Path) {
			return
		}
		if sc.SecureOnly && !opts.IsSecureEnv {
			return
		}
		if sc.HttpOnly && opts.NonHTTPAPI {
			return
		}
		if sc.SameSite != cookielib.SameSiteNone {
			if sc.SameSite == cookielib.SameSiteLax && (!cookielib.IsSafeMethod(method) || !opts.TopLevelBrowsingContext) {
				return
			}
			if topHost != "" && !urlutil.DomainInOtherDomain(topHost, k.Domain) {
				return
			}
		}
		if j.blockThirdParty && topHost != "" && !urlutil.DomainInOtherDomain(topHost, k.Domain) {
			return
		}
		matches = append(matches, match{key: k, sc: sc})
	})

	sort.Slice(matches, func(a, b int) bool {
		ma, mb := matches[a], matches[b]
		if len(ma.key.Path) != len(mb.key.Path) {
			return len(ma.key.Path) > len(mb.key.Path)
		}
		if ma.sc.CreationTime != mb.sc.CreationTime {
			return ma.sc.CreationTime < mb.sc.CreationTime
		}
		return ma.sc.seq < mb.sc.seq
	})

	pairs := make([]cookielib.Pair, len(matches))
	for i, m := range matches {
		m.sc.LastAccessTime = now
		pairs[i] = cookielib.Pair{Name: m.key.Name, Value: m.sc.Value}
	}
	j.mu.Unlock()
	j.emit(events)

	return cookielib.StringifyCookieHeader(pairs)
}

// pathMatch reports whether a cookie scoped to cookiePath applies to
// reqPath: equal, or reqPath continues cookiePath at a "/" boundary.
func pathMatch(reqPath, cookiePath string) bool {
	if reqPath == cookiePath {
		return true
	}
	normalized := reqPath
	if !strings.HasSuffix(normalized, "/") {
		normalized += "/"
	}
	if !strings.HasPrefix(normalized, cookiePath) {
		return false
	}
	if strings.HasSuffix(cookiePath, "/") {
		return true
	}
	return len(reqPath) > len(cookiePath) && reqPath[len(cookiePath)] == '/'
}
