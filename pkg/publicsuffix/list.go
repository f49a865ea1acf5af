// Package publicsuffix answers whether a domain is a public suffix.
//
// List keeps a rule trie built from the publicsuffix.org list, caches it in
// a JSON file and refreshes it from remote sources. Static answers from the
// list compiled into golang.org/x/net/publicsuffix and is always ready.
package publicsuffix

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/danielbankhead/jetta/internal/fsutil"
	"github.com/danielbankhead/jetta/pkg/jerror"
	"github.com/danielbankhead/jetta/pkg/logger"
	"github.com/spf13/afero"
)

const (
	// DEF_CACHE_LIMIT is how long a cached list stays fresh.
	DEF_CACHE_LIMIT = 24 * time.Hour
	// NeverExpire disables refreshing; the list is ready immediately.
	NeverExpire time.Duration = -1
)

// DefaultSources are tried in order.
var DefaultSources = []string{
	"https://publicsuffix.org/list/public_suffix_list.dat",
	"https://raw.githubusercontent.com/publicsuffix/list/master/public_suffix_list.dat",
}

// Checker is implemented by anything that can classify public suffixes.
type Checker interface {
	// IsPublicSuffix fails with jetta-public-suffix-not-ready until the
	// checker has rules loaded.
	IsPublicSuffix(domain string) (bool, error)
}

// Fetcher downloads a list from a source URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, rawURL string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	return f(ctx, rawURL)
}

// State is the readiness of a List.
type State int32

const (
	StateNotReady State = iota
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "not-ready"
	}
}

// Event is delivered to subscribers.
type Event int

const (
	// EventReady fires once, the first time rules become available.
	EventReady Event = iota
	// EventUpdated fires on every later successful refresh.
	EventUpdated
	// EventError fires when a refresh fails; the error is passed along.
	EventError
)

// Options configure a List.
type Options struct {
	// List is raw list text. When set, Path is ignored and the list is
	// ready immediately; it is refreshed from Sources once stale when a
	// Fetcher is configured.
	List string
	// Path of the JSON cache file. Empty disables the cache.
	Path string
	// Fs defaults to the OS filesystem.
	Fs afero.Fs
	// CacheLimit defaults to DEF_CACHE_LIMIT. NeverExpire disables refreshes.
	CacheLimit time.Duration
	// Sources defaults to DefaultSources. An empty non-nil slice means none.
	Sources []string
	// Fetcher is required unless List is set or CacheLimit is NeverExpire.
	Fetcher Fetcher
	// LastUpdated overrides the cache timestamp for List.
	LastUpdated time.Time
	Logger      logger.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

type cacheFile struct {
	LastUpdated int64  `json:"lastUpdated"`
	List        string `json:"list"`
}

// List is a refreshable public suffix list.
type List struct {
	opts Options
	fs   afero.Fs
	l    logger.Logger
	now  func() time.Time

	mu          sync.RWMutex
	rules       *ruleSet
	raw         string
	lastUpdated time.Time
	state       State
	err         error
	settled     chan struct{}
	settleOnce  sync.Once
	subs        map[int]func(Event, error)
	nextSub     int
	updating    bool
	timer       *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
}

// New loads the list from opts.List or the cache file and, when the cache is
// missing or stale, starts a background refresh. Call Close to stop the
// refresh timer.
func New(opts Options) *List {
	if opts.CacheLimit == 0 {
		opts.CacheLimit = DEF_CACHE_LIMIT
	}
	if opts.Sources == nil {
		opts.Sources = DefaultSources
	}
	l := &List{
		opts:    opts,
		fs:      fsutil.OrOs(opts.Fs),
		l:       logger.OrNop(opts.Logger),
		now:     opts.Now,
		settled: make(chan struct{}),
		subs:    make(map[int]func(Event, error)),
	}
	if l.now == nil {
		l.now = time.Now
	}
	l.ctx, l.cancel = context.WithCancel(context.Background())

	if opts.List != "" {
		l.opts.Path = ""
		l.setRules(opts.List, opts.LastUpdated)
	} else if opts.Path != "" {
		l.loadCache()
	}

	switch {
	case opts.CacheLimit == NeverExpire:
		l.markReady()
	case opts.List != "":
		l.markReady()
		if l.fresh() {
			l.schedule(l.opts.CacheLimit - l.now().Sub(l.lastUpdated))
		} else if opts.Fetcher != nil {
			go l.Refresh(l.ctx)
		}
	case l.rules != nil && l.fresh():
		l.markReady()
		l.schedule(l.opts.CacheLimit - l.now().Sub(l.lastUpdated))
	default:
		go l.Refresh(l.ctx)
	}
	return l
}

func (l *List) loadCache() {
	data, err := afero.ReadFile(l.fs, l.opts.Path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			l.l.Warning("public suffix cache %s unreadable: %v", l.opts.Path, err)
		}
		return
	}
	var cf cacheFile
	if err := json.Unmarshal(data, &cf); err != nil {
		l.l.Warning("public suffix cache %s is corrupt: %v", l.opts.Path, err)
		return
	}
	updated := time.UnixMilli(cf.LastUpdated)
	if l.now().Sub(updated) >= l.opts.CacheLimit && l.opts.CacheLimit != NeverExpire {
		l.l.Debug("public suffix cache %s is stale", l.opts.Path)
		return
	}
	l.setRules(cf.List, updated)
}

func (l *List) fresh() bool {
	return l.now().Sub(l.lastUpdated) < l.opts.CacheLimit
}

func (l *List) setRules(list string, updated time.Time) {
	rs := parseRules(list)
	l.mu.Lock()
	l.rules = rs
	l.raw = list
	l.lastUpdated = updated
	l.mu.Unlock()
}

// IsPublicSuffix reports whether domain is exactly a public suffix.
func (l *List) IsPublicSuffix(domain string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.state != StateReady {
		return false, jerror.Wrap(jerror.PublicSuffixNotReady, l.err, map[string]any{"state": l.state.String()})
	}
	if l.rules == nil {
		return false, nil
	}
	return l.rules.isPublicSuffix(domain), nil
}

// State returns the current readiness.
func (l *List) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Err returns the last refresh error, if any.
func (l *List) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.err
}

// Ready is closed once the list first leaves StateNotReady, after
// subscribers have been notified.
func (l *List) Ready() <-chan struct{} {
	return l.settled
}

// Wait blocks until the list settles. It returns nil when ready and the
// refresh error when failed.
func (l *List) Wait(ctx context.Context) error {
	select {
	case <-l.settled:
	case <-ctx.Done():
		return ctx.Err()
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.state == StateReady {
		return nil
	}
	return l.err
}

// Subscribe registers fn for events. The returned func unsubscribes.
func (l *List) Subscribe(fn func(Event, error)) func() {
	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = fn
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		delete(l.subs, id)
		l.mu.Unlock()
	}
}

func (l *List) notify(ev Event, err error) {
	l.mu.RLock()
	fns := make([]func(Event, error), 0, len(l.subs))
	for _, fn := range l.subs {
		fns = append(fns, fn)
	}
	l.mu.RUnlock()
	for _, fn := range fns {
		fn(ev, err)
	}
}

func (l *List) markReady() {
	l.mu.Lock()
	first := l.state != StateReady
	l.state = StateReady
	l.err = nil
	l.mu.Unlock()
	if first {
		l.notify(EventReady, nil)
	} else {
		l.notify(EventUpdated, nil)
	}
	l.settleOnce.Do(func() { close(l.settled) })
}

func (l *List) markFailed(err error) {
	l.mu.Lock()
	if l.state != StateReady {
		l.state = StateFailed
	}
	l.err = err
	l.mu.Unlock()
	l.notify(EventError, err)
	l.settleOnce.Do(func() { close(l.settled) })
}

// LastUpdated returns when the rules were last fetched.
func (l *List) LastUpdated() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastUpdated
}

// Text returns the raw list text currently indexed.
func (l *List) Text() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.raw
}

// Len returns the number of rules, exceptions included.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.rules == nil {
		return 0
	}
	return l.rules.count
}

// Refresh pulls the list from the configured sources in order and stops at
// the first success. Concurrent calls while a refresh runs return nil
// immediately.
func (l *List) Refresh(ctx context.Context) error {
	l.mu.Lock()
	if l.updating {
		l.mu.Unlock()
		return nil
	}
	l.updating = true
	if l.timer != nil {
		l.timer.Stop()
	}
	l.mu.Unlock()

	err := l.refresh(ctx)

	l.mu.Lock()
	l.updating = false
	l.mu.Unlock()
	if ctx.Err() == nil && l.opts.CacheLimit != NeverExpire {
		l.schedule(l.opts.CacheLimit)
	}
	if err != nil {
		l.l.Error("public suffix refresh failed: %v", err)
		l.markFailed(err)
		return err
	}
	l.l.Info("public suffix list refreshed (%d rules)", l.Len())
	l.markReady()
	return nil
}

func (l *List) refresh(ctx context.Context) error {
	if len(l.opts.Sources) == 0 || l.opts.Fetcher == nil {
		return jerror.New(jerror.PublicSuffixFailedToUpdateNoSources, nil)
	}

	var errs []error
	messages := make([]string, 0, len(l.opts.Sources))
	for _, src := range l.opts.Sources {
		data, err := l.opts.Fetcher.Fetch(ctx, src)
		if err == nil && parseRules(string(data)).count == 0 {
			err = jerror.New(jerror.PublicSuffixInvalidList, map[string]any{"source": src})
		}
		if err != nil {
			l.l.Warning("public suffix source %s failed: %v", src, err)
			errs = append(errs, err)
			messages = append(messages, src+": "+err.Error())
			if ctx.Err() != nil {
				break
			}
			continue
		}

		list := string(data)
		updated := l.now()
		if l.opts.Path != "" {
			raw, _ := json.Marshal(cacheFile{LastUpdated: updated.UnixMilli(), List: list})
			if err := fsutil.WriteFileAtomic(l.fs, l.opts.Path, raw, 0644); err != nil {
				return jerror.Wrap(jerror.PublicSuffixFailedToWriteFile, err, map[string]any{"path": l.opts.Path})
			}
		}
		l.setRules(list, updated)
		return nil
	}
	return jerror.Wrap(jerror.PublicSuffixFailedToUpdateFromSource, errors.Join(errs...), map[string]any{"sources": messages})
}

func (l *List) schedule(d time.Duration) {
	if d < 0 {
		d = 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx.Err() != nil {
		return
	}
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(d, func() { l.Refresh(l.ctx) })
}

// Close stops background refreshes.
func (l *List) Close() error {
	l.cancel()
	l.mu.Lock()
	if l.timer != nil {
		l.timer.Stop()
	}
	l.mu.Unlock()
	return nil
}

var _ Checker = (*List)(nil)
