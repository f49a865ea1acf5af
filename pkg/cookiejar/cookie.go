package cookiejar

import (
	"time"

	"github.com/danielbankhead/jetta/pkg/cookielib"
)

// Key identifies a stored cookie. A jar holds at most one cookie per key.
type Key struct {
	Domain string `json:"domain"`
	Path   string `json:"path"`
	Name   string `json:"name"`
}

// Filter selects cookies in GetCookies. Empty fields match anything.
type Filter struct {
	Domain string
	Path   string
	Name   string
}

func (f Filter) match(k Key) bool {
	return (f.Domain == "" || f.Domain == k.Domain) &&
		(f.Path == "" || f.Path == k.Path) &&
		(f.Name == "" || f.Name == k.Name)
}

// Cookie is a copy of a stored cookie. Changing it does not change the jar.
type Cookie struct {
	Key
	Value string `json:"value"`
	// ExpiryTime is nil for session cookies.
	ExpiryTime     *time.Time         `json:"expiryTime,omitempty"`
	CreationTime   time.Time          `json:"creationTime"`
	LastAccessTime time.Time          `json:"lastAccessTime"`
	Persistent     bool               `json:"persistent"`
	HostOnly       bool               `json:"hostOnly"`
	SecureOnly     bool               `json:"secureOnly"`
	HttpOnly       bool               `json:"httpOnly"`
	SameSite       cookielib.SameSite `json:"sameSite"`
}

// StoredCookie is the persisted form of a cookie inside a Snapshot.
// Times are epoch milliseconds.
type StoredCookie struct {
	Value          string             `json:"value"`
	ExpiryTime     *int64             `json:"expiry-time"`
	CreationTime   int64              `json:"creation-time"`
	LastAccessTime int64              `json:"last-access-time"`
	Persistent     bool               `json:"persistent-flag"`
	HostOnly       bool               `json:"host-only-flag"`
	SecureOnly     bool               `json:"secure-only-flag"`
	HttpOnly       bool               `json:"http-only-flag"`
	SameSite       cookielib.SameSite `json:"samesite-flag"`

	// seq breaks creation time ties in header ordering.
	seq uint64
}

func (s *StoredCookie) expired(nowMs int64) bool {
	return s.ExpiryTime != nil && *s.ExpiryTime < nowMs
}

func (s *StoredCookie) clone() *StoredCookie {
	c := *s
	if s.ExpiryTime != nil {
		e := *s.ExpiryTime
		c.ExpiryTime = &e
	}
	return &c
}

func (s *StoredCookie) cookie(k Key) *Cookie {
	c := &Cookie{
		Key:            k,
		Value:          s.Value,
		CreationTime:   time.UnixMilli(s.CreationTime),
		LastAccessTime: time.UnixMilli(s.LastAccessTime),
		Persistent:     s.Persistent,
		HostOnly:       s.HostOnly,
		SecureOnly:     s.SecureOnly,
		HttpOnly:       s.HttpOnly,
		SameSite:       s.SameSite,
	}
	if s.ExpiryTime != nil {
		t := time.UnixMilli(*s.ExpiryTime)
		c.ExpiryTime = &t
	}
	return c
}
