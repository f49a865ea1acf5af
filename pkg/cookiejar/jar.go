// Package cookiejar stores cookies received over HTTP and generates the
// Cookie header for outgoing requests following RFC 6265.
//
// Cookies are kept in a domain, path, name tree. Expired cookies are
// swept lazily at the start of every operation. Capacity is enforced by
// clearing: a new cookie for a full domain clears that domain, and a new
// cookie for a full jar clears the whole jar. This is not an LRU.
package cookiejar

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/danielbankhead/jetta/pkg/cookielib"
	"github.com/danielbankhead/jetta/pkg/jerror"
	"github.com/danielbankhead/jetta/pkg/logger"
	"github.com/danielbankhead/jetta/pkg/publicsuffix"
	"github.com/danielbankhead/jetta/pkg/urlutil"
)

// RFC 6265 section 6.1 minimum capabilities.
const (
	DefaultMaxCookies          = 3000
	DefaultMaxCookiesPerDomain = 50
	DefaultMaxCookieByteLength = 4096
)

// DefaultSecureProtocols are the schemes treated as secure environments.
var DefaultSecureProtocols = map[string]bool{
	"https": true,
	"wss":   true,
	"ftps":  true,
	"sftp":  true,
}

// Options configure a Jar. The zero value is usable.
type Options struct {
	MaxCookies          int
	MaxCookiesPerDomain int
	MaxCookieByteLength int
	// BlockThirdPartyCookies rejects and withholds cookies whose domain
	// does not match the top-level URL.
	BlockThirdPartyCookies bool
	// SecureProtocols are suggested to the request engine through
	// RequestDefaults. Defaults to DefaultSecureProtocols.
	SecureProtocols map[string]bool
	// PublicSuffix rejects Domain attributes naming a public suffix.
	// Defaults to publicsuffix.Static. A checker that also implements
	// publicsuffix.Readiness makes the jar's readiness follow it.
	PublicSuffix publicsuffix.Checker
	Handlers     *Handlers
	Logger       logger.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// SetOptions describe where a Set-Cookie header came from.
type SetOptions struct {
	// RequestURL is the URL that returned the header. Required for
	// cookies without a Domain attribute.
	RequestURL string
	// TopLevelURL is the URL of the top-level navigation, if any.
	TopLevelURL string
	IsSecureEnv bool
	// NonHTTPAPI marks writes from scripts and other non-HTTP sources.
	NonHTTPAPI bool
}

// MatchOptions describe the request a Cookie header is generated for.
type MatchOptions struct {
	// Method defaults to GET.
	Method      string
	IsSecureEnv bool
	NonHTTPAPI  bool
	TopLevelURL string
	// TopLevelBrowsingContext must be true for SameSite=Lax cookies.
	TopLevelBrowsingContext bool
}

// Defaults are the request settings a jar suggests to the engine.
type Defaults struct {
	SecureProtocols          map[string]bool
	ThirdPartyCookiesAllowed bool
}

type store map[string]map[string]map[string]*StoredCookie

// Jar is a concurrency safe cookie store.
type Jar struct {
	mu      sync.Mutex
	cookies store
	count   int
	seq     uint64

	maxCookies      int
	maxPerDomain    int
	maxByteLength   int
	blockThirdParty bool
	secureProtocols map[string]bool

	suffix      publicsuffix.Checker
	readiness   publicsuffix.Readiness
	unsubscribe func()

	handlers *Handlers
	log      logger.Logger
	now      func() time.Time
}

// New creates an empty jar.
func New(opts *Options) *Jar {
	if opts == nil {
		opts = &Options{}
	}
	j := &Jar{
		cookies:         store{},
		maxCookies:      opts.MaxCookies,
		maxPerDomain:    opts.MaxCookiesPerDomain,
		maxByteLength:   opts.MaxCookieByteLength,
		blockThirdParty: opts.BlockThirdPartyCookies,
		secureProtocols: opts.SecureProtocols,
		suffix:          opts.PublicSuffix,
		handlers:        opts.Handlers,
		log:             logger.OrNop(opts.Logger),
		now:             opts.Now,
	}
	if j.maxCookies <= 0 {
		j.maxCookies = DefaultMaxCookies
	}
	if j.maxPerDomain <= 0 {
		j.maxPerDomain = DefaultMaxCookiesPerDomain
	}
	if j.maxByteLength <= 0 {
		j.maxByteLength = DefaultMaxCookieByteLength
	}
	if j.secureProtocols == nil {
		j.secureProtocols = DefaultSecureProtocols
	}
	if j.suffix == nil {
		j.suffix = publicsuffix.Static{}
	}
	if j.handlers == nil {
		j.handlers = &Handlers{}
	}
	j.handlers.setDefault(j.log)
	if j.now == nil {
		j.now = time.Now
	}

	if r, ok := j.suffix.(publicsuffix.Readiness); ok {
		j.readiness = r
		j.unsubscribe = r.Subscribe(func(ev publicsuffix.Event, err error) {
			switch ev {
			case publicsuffix.EventUpdated:
				j.handlers.PublicSuffixUpdatedHandler()
			case publicsuffix.EventError:
				j.handlers.ErrorHandler(jerror.Wrap(jerror.CookiePublicSuffixError, err, nil))
			}
		})
	}
	return j
}

var closedChan = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// State follows the public suffix checker. Jars without an asynchronous
// checker are always ready.
func (j *Jar) State() publicsuffix.State {
	if j.readiness == nil {
		return publicsuffix.StateReady
	}
	return j.readiness.State()
}

// Ready is closed once the jar leaves the not ready state.
func (j *Jar) Ready() <-chan struct{} {
	if j.readiness == nil {
		return closedChan
	}
	return j.readiness.Ready()
}

// WaitReady blocks until the jar is ready or failed.
func (j *Jar) WaitReady(ctx context.Context) error {
	select {
	case <-j.Ready():
	case <-ctx.Done():
		return ctx.Err()
	}
	if j.State() == publicsuffix.StateFailed {
		return jerror.Wrap(jerror.CookiePublicSuffixError, j.readiness.Err(), nil)
	}
	return nil
}

// Close detaches the jar from its public suffix checker. The checker
// itself is left running since it may be shared.
func (j *Jar) Close() error {
	if j.unsubscribe != nil {
		j.unsubscribe()
	}
	return nil
}

// RequestDefaults returns the settings the request engine should apply
// to requests using this jar unless the caller overrides them.
func (j *Jar) RequestDefaults() Defaults {
	sp := make(map[string]bool, len(j.secureProtocols))
	for k, v := range j.secureProtocols {
		sp[k] = v
	}
	return Defaults{SecureProtocols: sp, ThirdPartyCookiesAllowed: !j.blockThirdParty}
}

func (j *Jar) nowMs() int64 {
	return j.now().UnixMilli()
}

// AddCookie parses a Set-Cookie header and stores, updates or deletes the
// cookie it describes. Expired cookies and Max-Age <= 0 delete any stored
// cookie with the same key. The returned cookie describes the write.
func (j *Jar) AddCookie(raw string, opts *SetOptions) (*Cookie, error) {
	if opts == nil {
		opts = &SetOptions{}
	}
	if len(raw) > j.maxByteLength {
		return nil, jerror.New(jerror.CookieExceededMaxByteLength, map[string]any{"limit": j.maxByteLength})
	}

	var topHost string
	if opts.TopLevelURL != "" {
		res := urlutil.Normalize(opts.TopLevelURL, urlutil.Options{AddMissingProtocol: true})
		if !res.IsValid || res.Hostname == "" {
			return nil, jerror.New(jerror.CookieTopLevelURLInvalid, map[string]any{"url": urlutil.StripURLCredentials(opts.TopLevelURL)})
		}
		topHost = res.Hostname
	}
	var requestHost string
	if opts.RequestURL != "" {
		res := urlutil.Normalize(strings.TrimLeft(opts.RequestURL, "."), urlutil.Options{AddMissingProtocol: true})
		if !res.IsValid || res.Hostname == "" {
			return nil, jerror.New(jerror.CookieRequestURLInvalid, map[string]any{"url": urlutil.StripURLCredentials(opts.RequestURL)})
		}
		requestHost = res.Hostname
	}

	attrs, err := cookielib.ParseSetCookieHeader(raw, j.parseContext(opts))
	if err != nil {
		return nil, err
	}

	sc := &StoredCookie{
		Value:      attrs.Value,
		SecureOnly: attrs.Secure,
		HttpOnly:   attrs.HttpOnly,
		SameSite:   attrs.SameSite,
		Persistent: attrs.MaxAge != nil || attrs.Expires != nil,
	}

	key := Key{Domain: attrs.Domain, Path: attrs.Path, Name: attrs.Name}
	if key.Path == "" {
		key.Path = "/"
	}
	if key.Domain == "" {
		sc.HostOnly = true
		if requestHost == "" {
			return nil, jerror.New(jerror.CookieNoValidDomainForUse, map[string]any{"name": attrs.Name})
		}
		key.Domain = requestHost
	}

	if sc.SameSite != cookielib.SameSiteNone && topHost != "" && !urlutil.DomainInOtherDomain(topHost, key.Domain) {
		return nil, jerror.New(jerror.CookieCrossSiteOnSameSite, map[string]any{"name": key.Name, "topLevelHostname": topHost})
	}
	if j.blockThirdParty && topHost != "" && topHost != key.Domain {
		return nil, jerror.New(jerror.CookieNoThirdPartyCookiesAllowed, map[string]any{"name": key.Name, "topLevelHostname": topHost})
	}

	j.mu.Lock()
	now := j.nowMs()
	sc.CreationTime, sc.LastAccessTime = now, now
	remove := false
	switch {
	case attrs.MaxAge != nil:
		if *attrs.MaxAge > 0 {
			exp := now + *attrs.MaxAge*1000
			sc.ExpiryTime = &exp
		} else {
			remove = true
		}
	case attrs.Expires != nil:
		if exp := attrs.Expires.UnixMilli(); exp > now {
			sc.ExpiryTime = &exp
		} else {
			remove = true
		}
	}
	events := j.sweepLocked(now)
	existing := j.getLocked(key)
	if existing != nil && existing.HttpOnly && !sc.HttpOnly {
		j.mu.Unlock()
		j.emit(events)
		return nil, jerror.New(jerror.CookieNonHttpNoOverwriteHttpOnly, map[string]any{"name": key.Name, "domain": key.Domain})
	}
	if existing != nil {
		sc.CreationTime = existing.CreationTime
		sc.seq = existing.seq
	}
	result := sc.cookie(key)

	if remove {
		if ev, ok := j.deleteLocked(key); ok {
			events = append(events, ev)
		}
	} else {
		if existing == nil {
			events = append(events, j.makeRoomLocked(key.Domain)...)
			j.seq++
			sc.seq = j.seq
		}
		j.putLocked(key, sc)
		if existing != nil {
			events = append(events, event{kind: eventUpdated, cookie: result})
		} else {
			events = append(events, event{kind: eventAdded, cookie: result})
		}
	}
	j.mu.Unlock()
	j.emit(events)
	return result, nil
}

// AddAttributes serializes attrs and stores it like AddCookie. The
// serialized form counts against the byte length limit.
func (j *Jar) AddAttributes(attrs *cookielib.Attributes, opts *SetOptions) (*Cookie, error) {
	if opts == nil {
		opts = &SetOptions{}
	}
	raw, err := cookielib.StringifySetCookieHeader(attrs, j.parseContext(opts))
	if err != nil {
		return nil, err
	}
	return j.AddCookie(raw, opts)
}

func (j *Jar) parseContext(opts *SetOptions) *cookielib.Context {
	return &cookielib.Context{
		RequestURL:            opts.RequestURL,
		IsSecureEnv:           opts.IsSecureEnv,
		NonHTTPAPI:            opts.NonHTTPAPI,
		AllowExpiredSetCookie: true,
		PublicSuffix:          j.suffix,
		Now:                   j.now,
	}
}

// makeRoomLocked applies the capacity policy before a new cookie is
// inserted into domain.
func (j *Jar) makeRoomLocked(domain string) []event {
	var events []event
	if j.domainCountLocked(domain) >= j.maxPerDomain {
		j.log.Warning("cookiejar: %s reached %d cookies, clearing domain", domain, j.maxPerDomain)
		for path, names := range j.cookies[domain] {
			for name, sc := range names {
				events = append(events, event{kind: eventDeleted, cookie: sc.cookie(Key{domain, path, name})})
			}
		}
		j.count -= j.domainCountLocked(domain)
		delete(j.cookies, domain)
	}
	if j.count >= j.maxCookies {
		j.log.Warning("cookiejar: jar reached %d cookies, clearing all", j.maxCookies)
		j.rangeLocked(func(k Key, sc *StoredCookie) {
			events = append(events, event{kind: eventDeleted, cookie: sc.cookie(k)})
		})
		j.cookies = store{}
		j.count = 0
	}
	return events
}

func (j *Jar) domainCountLocked(domain string) int {
	n := 0
	for _, names := range j.cookies[domain] {
		n += len(names)
	}
	return n
}

func (j *Jar) getLocked(k Key) *StoredCookie {
	return j.cookies[k.Domain][k.Path][k.Name]
}

func (j *Jar) putLocked(k Key, sc *StoredCookie) {
	paths, ok := j.cookies[k.Domain]
	if !ok {
		paths = map[string]map[string]*StoredCookie{}
		j.cookies[k.Domain] = paths
	}
	names, ok := paths[k.Path]
	if !ok {
		names = map[string]*StoredCookie{}
		paths[k.Path] = names
	}
	if _, ok := names[k.Name]; !ok {
		j.count++
	}
	names[k.Name] = sc
}

// deleteLocked removes k and prunes empty path and domain buckets.
func (j *Jar) deleteLocked(k Key) (event, bool) {
	sc := j.getLocked(k)
	if sc == nil {
		return event{}, false
	}
	delete(j.cookies[k.Domain][k.Path], k.Name)
	if len(j.cookies[k.Domain][k.Path]) == 0 {
		delete(j.cookies[k.Domain], k.Path)
	}
	if len(j.cookies[k.Domain]) == 0 {
		delete(j.cookies, k.Domain)
	}
	j.count--
	return event{kind: eventDeleted, cookie: sc.cookie(k)}, true
}

func (j *Jar) rangeLocked(fn func(k Key, sc *StoredCookie)) {
	for domain, paths := range j.cookies {
		for path, names := range paths {
			for name, sc := range names {
				fn(Key{Domain: domain, Path: path, Name: name}, sc)
			}
		}
	}
}

func (j *Jar) removeWhereLocked(pred func(*StoredCookie) bool) []event {
	var doomed []Key
	j.rangeLocked(func(k Key, sc *StoredCookie) {
		if pred(sc) {
			doomed = append(doomed, k)
		}
	})
	sortKeys(doomed)
	events := make([]event, 0, len(doomed))
	for _, k := range doomed {
		if ev, ok := j.deleteLocked(k); ok {
			events = append(events, ev)
		}
	}
	return events
}

func (j *Jar) sweepLocked(nowMs int64) []event {
	return j.removeWhereLocked(func(sc *StoredCookie) bool { return sc.expired(nowMs) })
}

// DeleteExpiredCookies removes every cookie whose expiry time has passed
// and returns how many were removed.
func (j *Jar) DeleteExpiredCookies() int {
	j.mu.Lock()
	events := j.sweepLocked(j.nowMs())
	j.mu.Unlock()
	j.emit(events)
	return len(events)
}

// DeleteSessionCookies removes every non-persistent cookie.
func (j *Jar) DeleteSessionCookies() int {
	j.mu.Lock()
	events := j.sweepLocked(j.nowMs())
	swept := len(events)
	events = append(events, j.removeWhereLocked(func(sc *StoredCookie) bool { return !sc.Persistent })...)
	j.mu.Unlock()
	j.emit(events)
	return len(events) - swept
}

// DeleteCookie removes the cookie stored under k.
func (j *Jar) DeleteCookie(k Key) bool {
	j.mu.Lock()
	events := j.sweepLocked(j.nowMs())
	ev, ok := j.deleteLocked(k)
	if ok {
		events = append(events, ev)
	}
	j.mu.Unlock()
	j.emit(events)
	return ok
}

// GetCookie returns a copy of the cookie stored under k.
func (j *Jar) GetCookie(k Key) (*Cookie, bool) {
	j.mu.Lock()
	events := j.sweepLocked(j.nowMs())
	sc := j.getLocked(k)
	var c *Cookie
	if sc != nil {
		c = sc.cookie(k)
	}
	j.mu.Unlock()
	j.emit(events)
	return c, c != nil
}

// GetCookies returns copies of the cookies matching f, ordered by domain,
// path and name.
func (j *Jar) GetCookies(f Filter) []*Cookie {
	j.mu.Lock()
	events := j.sweepLocked(j.nowMs())
	var keys []Key
	j.rangeLocked(func(k Key, _ *StoredCookie) {
		if f.match(k) {
			keys = append(keys, k)
		}
	})
	sortKeys(keys)
	out := make([]*Cookie, 0, len(keys))
	for _, k := range keys {
		out = append(out, j.getLocked(k).cookie(k))
	}
	j.mu.Unlock()
	j.emit(events)
	return out
}

// Len returns the number of stored cookies, expired ones excluded.
func (j *Jar) Len() int {
	j.mu.Lock()
	events := j.sweepLocked(j.nowMs())
	n := j.count
	j.mu.Unlock()
	j.emit(events)
	return n
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(a, b int) bool {
		if keys[a].Domain != keys[b].Domain {
			return keys[a].Domain < keys[b].Domain
		}
		if keys[a].Path != keys[b].Path {
			return keys[a].Path < keys[b].Path
		}
		return keys[a].Name < keys[b].Name
	})
}
