package cookiejar

import (
	"io"
	"strings"

	"github.com/danielbankhead/jetta/internal/cookies"
	"github.com/danielbankhead/jetta/pkg/cookielib"
	"github.com/danielbankhead/jetta/pkg/jerror"
)

// ImportBrowserStore copies the cookies of a Firefox, Chrome or Netscape
// cookie store into the jar. Only cookies for domain and its subdomains
// are imported; an empty domain imports everything. Stored cookies with
// the same key are replaced, HttpOnly included. Cookies with names or
// values the codec rejects are skipped.
func (j *Jar) ImportBrowserStore(path, domain string) (int, error) {
	read, src, err := cookies.Read(path, domain, j.now(), j.log)
	if err != nil {
		return 0, jerror.Wrap(jerror.CookieImportFailed, err, map[string]any{"path": path})
	}

	imported := 0
	j.mu.Lock()
	now := j.nowMs()
	events := j.sweepLocked(now)
	for _, c := range read {
		if !cookielib.ValidName(c.Name) || !cookielib.ValidValue(c.Value) {
			j.log.Debug("cookiejar: skipping %s from %s store", c.Name, src.Format)
			continue
		}
		key := Key{
			Domain: strings.ToLower(strings.TrimLeft(c.Domain, ".")),
			Path:   c.Path,
			Name:   c.Name,
		}
		if key.Path == "" || key.Path[0] != '/' {
			key.Path = "/"
		}
		if key.Domain == "" {
			continue
		}
		sc := &StoredCookie{
			Value:          c.Value,
			CreationTime:   now,
			LastAccessTime: now,
			Persistent:     !c.Session(),
			HostOnly:       c.HostOnly(),
			SecureOnly:     c.Secure,
			HttpOnly:       c.HttpOnly,
			SameSite:       c.SameSite,
		}
		if !c.Session() {
			exp := c.Expiry.UnixMilli()
			sc.ExpiryTime = &exp
		}
		existing := j.getLocked(key)
		if existing != nil {
			sc.CreationTime = existing.CreationTime
			sc.seq = existing.seq
			events = append(events, event{kind: eventUpdated, cookie: sc.cookie(key)})
		} else {
			events = append(events, j.makeRoomLocked(key.Domain)...)
			j.seq++
			sc.seq = j.seq
			events = append(events, event{kind: eventAdded, cookie: sc.cookie(key)})
		}
		j.putLocked(key, sc)
		imported++
	}
	j.mu.Unlock()
	j.emit(events)
	j.log.Info("cookiejar: imported %d cookies from %s store", imported, src.Format)
	return imported, nil
}

// WriteNetscape writes the cookies matching f in the Netscape
// cookies.txt format.
func (j *Jar) WriteNetscape(w io.Writer, f Filter) error {
	return cookies.WriteNetscape(w, browserCookies(j.GetCookies(f)))
}

func browserCookies(cs []*Cookie) []cookies.Cookie {
	out := make([]cookies.Cookie, 0, len(cs))
	for _, c := range cs {
		bc := cookies.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.SecureOnly,
			HttpOnly: c.HttpOnly,
			SameSite: c.SameSite,
		}
		if !c.HostOnly {
			bc.Domain = "." + c.Domain
		}
		if c.ExpiryTime != nil {
			bc.Expiry = *c.ExpiryTime
		}
		out = append(out, bc)
	}
	return out
}
