package cookiejar

import (
	"encoding/json"
	"sort"

	"github.com/danielbankhead/jetta/common"
	"github.com/danielbankhead/jetta/pkg/cookielib"
	"github.com/danielbankhead/jetta/pkg/jerror"
)

// Snapshot is the serializable state of a jar: its cookies keyed by
// domain, path and name, and its limits. A missing
// thirdPartyCookiesAllowed field reads as allowed.
type Snapshot struct {
	Cookies                  map[string]map[string]map[string]*StoredCookie `json:"cookies"`
	MaxCookies               int                                            `json:"maxCookies"`
	MaxCookiesPerDomain      int                                            `json:"maxCookiesPerDomain"`
	MaxCookieByteLength      int                                            `json:"maxCookieByteLength"`
	ThirdPartyCookiesAllowed *bool                                          `json:"thirdPartyCookiesAllowed"`
	JettaVersion             string                                         `json:"jettaVersion"`
}

// Export sweeps expired cookies and returns a deep copy of the jar.
func (j *Jar) Export() *Snapshot {
	j.mu.Lock()
	events := j.sweepLocked(j.nowMs())
	allowed := !j.blockThirdParty
	s := &Snapshot{
		Cookies:                  map[string]map[string]map[string]*StoredCookie{},
		MaxCookies:               j.maxCookies,
		MaxCookiesPerDomain:      j.maxPerDomain,
		MaxCookieByteLength:      j.maxByteLength,
		ThirdPartyCookiesAllowed: &allowed,
		JettaVersion:             common.Version,
	}
	j.rangeLocked(func(k Key, sc *StoredCookie) {
		paths, ok := s.Cookies[k.Domain]
		if !ok {
			paths = map[string]map[string]*StoredCookie{}
			s.Cookies[k.Domain] = paths
		}
		names, ok := paths[k.Path]
		if !ok {
			names = map[string]*StoredCookie{}
			paths[k.Path] = names
		}
		names[k.Name] = sc.clone()
	})
	j.mu.Unlock()
	j.emit(events)
	return s
}

// Import merges the cookies of s into the jar, replacing cookies with the
// same key. Limits of s are ignored and no capacity clearing happens. The
// snapshot is validated as a whole before anything is stored.
func (j *Jar) Import(s *Snapshot) error {
	if s == nil {
		return jerror.New(jerror.CookieInvalidSnapshot, nil)
	}
	type item struct {
		key Key
		sc  *StoredCookie
	}
	var items []item
	for domain, paths := range s.Cookies {
		for path, names := range paths {
			for name, sc := range names {
				k := Key{Domain: domain, Path: path, Name: name}
				if err := validateStored(k, sc); err != nil {
					return err
				}
				items = append(items, item{key: k, sc: sc.clone()})
			}
		}
	}
	// stable seq assignment keeps header order deterministic
	sort.Slice(items, func(a, b int) bool {
		if items[a].sc.CreationTime != items[b].sc.CreationTime {
			return items[a].sc.CreationTime < items[b].sc.CreationTime
		}
		ka, kb := items[a].key, items[b].key
		if ka.Domain != kb.Domain {
			return ka.Domain < kb.Domain
		}
		if ka.Path != kb.Path {
			return ka.Path < kb.Path
		}
		return ka.Name < kb.Name
	})

	imported := 0
	j.mu.Lock()
	now := j.nowMs()
	events := j.sweepLocked(now)
	for _, it := range items {
		if it.sc.expired(now) {
			continue
		}
		j.seq++
		it.sc.seq = j.seq
		j.putLocked(it.key, it.sc)
		imported++
	}
	j.mu.Unlock()
	j.emit(events)
	j.log.Info("cookiejar: imported %d cookies", imported)
	return nil
}

func validateStored(k Key, sc *StoredCookie) error {
	details := map[string]any{"domain": k.Domain, "path": k.Path, "name": k.Name}
	switch {
	case sc == nil:
		return jerror.New(jerror.CookieInvalidSnapshot, details)
	case k.Domain == "" || len(k.Path) == 0 || k.Path[0] != '/':
		return jerror.New(jerror.CookieInvalidSnapshot, details)
	case !cookielib.ValidName(k.Name) || !cookielib.ValidValue(sc.Value) || !cookielib.ValidPath(k.Path):
		return jerror.New(jerror.CookieInvalidSnapshot, details)
	}
	return nil
}

// FromSnapshot creates a jar with the limits of s and imports its
// cookies. Fields already set in opts take precedence.
func FromSnapshot(s *Snapshot, opts *Options) (*Jar, error) {
	if s == nil {
		return nil, jerror.New(jerror.CookieInvalidSnapshot, nil)
	}
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if o.MaxCookies == 0 {
		o.MaxCookies = s.MaxCookies
	}
	if o.MaxCookiesPerDomain == 0 {
		o.MaxCookiesPerDomain = s.MaxCookiesPerDomain
	}
	if o.MaxCookieByteLength == 0 {
		o.MaxCookieByteLength = s.MaxCookieByteLength
	}
	if s.ThirdPartyCookiesAllowed != nil && !*s.ThirdPartyCookiesAllowed {
		o.BlockThirdPartyCookies = true
	}
	j := New(&o)
	if err := j.Import(s); err != nil {
		j.Close()
		return nil, err
	}
	return j, nil
}

// MarshalSnapshot encodes the jar as JSON.
func (j *Jar) MarshalSnapshot() ([]byte, error) {
	return EncodeSnapshot(j.Export())
}

// EncodeSnapshot encodes s as JSON.
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	if s == nil {
		return nil, jerror.New(jerror.CookieInvalidSnapshot, nil)
	}
	return json.Marshal(s)
}

// UnmarshalSnapshot decodes a JSON snapshot.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, jerror.Wrap(jerror.CookieInvalidSnapshot, err, nil)
	}
	return &s, nil
}
