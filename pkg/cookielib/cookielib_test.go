package cookielib

import (
	"errors"
	"testing"
	"time"

	"github.com/danielbankhead/jetta/pkg/jerror"
)

type fakeSuffix struct {
	suffix bool
	err    error
}

func (f fakeSuffix) IsPublicSuffix(string) (bool, error) { return f.suffix, f.err }

func secure() *Context {
	return &Context{IsSecureEnv: true, AllowExpiredSetCookie: true}
}

func TestParseCookieHeader(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		pairs, err := ParseCookieHeader(`a=b; c="d"; e=f=g;`)
		if err != nil {
			t.Fatalf("ParseCookieHeader: %v", err)
		}
		want := []Pair{{"a", "b"}, {"c", "d"}, {"e", "f=g"}}
		if len(pairs) != len(want) {
			t.Fatalf("got %d pairs, want %d", len(pairs), len(want))
		}
		for i := range want {
			if pairs[i] != want[i] {
				t.Errorf("pair %d = %+v, want %+v", i, pairs[i], want[i])
			}
		}
	})

	tests := []struct {
		name string
		in   string
		code jerror.Code
	}{
		{"empty", "", jerror.CookieInvalidNameValuePair},
		{"lonely semicolon", ";", jerror.CookieInvalidNameValuePair},
		{"no equals", "a=b; c", jerror.CookieInvalidNameValuePair},
		{"bad name", "a b=c", jerror.CookieInvalidName},
		{"empty name", "=c", jerror.CookieInvalidName},
		{"non ascii value", "a=ø", jerror.CookieInvalidValue},
		{"comma in value", "a=b,c", jerror.CookieInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCookieHeader(tt.in)
			if !jerror.HasCode(err, tt.code) {
				t.Errorf("err = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestParseCookieHeaderKV(t *testing.T) {
	kv, err := ParseCookieHeaderKV("a=1; b=2; a=3")
	if err != nil {
		t.Fatalf("ParseCookieHeaderKV: %v", err)
	}
	if kv["a"] != "3" || kv["b"] != "2" || len(kv) != 2 {
		t.Errorf("kv = %v", kv)
	}
	if _, err := ParseCookieHeaderKV("nope"); err == nil {
		t.Error("expected error")
	}
}

func TestParseSetCookieHeaderInvalid(t *testing.T) {
	strict := &Context{IsSecureEnv: true}
	tests := []struct {
		in   string
		ctx  *Context
		code jerror.Code
	}{
		{";", secure(), jerror.CookieInvalidNameValuePair},
		{"example", secure(), jerror.CookieInvalidNameValuePair},
		{"ø=this", secure(), jerror.CookieInvalidName},
		{"test=ø", secure(), jerror.CookieInvalidValue},
		{"n=v;expires", secure(), jerror.CookieInvalidExpires},
		{"n=v; Expires=", secure(), jerror.CookieInvalidExpires},
		{"n=v; Expires=apple", secure(), jerror.CookieInvalidExpires},
		{"n=v; Expires=Tue, 27 Jun 2017 01:50:08 GMT;", strict, jerror.CookieExpired},
		{"n=v;max-Age", secure(), jerror.CookieInvalidMaxAge},
		{"n=v; Max-Age=", secure(), jerror.CookieInvalidMaxAge},
		{"n=v; Max-Age=apple", secure(), jerror.CookieInvalidMaxAge},
		{"n=v; Max-Age=9007199254740993", secure(), jerror.CookieInvalidMaxAge},
		{"n=v; Max-Age=0", strict, jerror.CookieExpired},
		{"n=v; Max-Age=-1", strict, jerror.CookieExpired},
		{"n=v;domain", secure(), jerror.CookieInvalidDomain},
		{"n=v; Domain=", secure(), jerror.CookieInvalidDomain},
		{"n=v; Domain=some--invalid--domain.com", secure(), jerror.CookieInvalidDomain},
		{"n=v;path", secure(), jerror.CookieInvalidPath},
		{"n=v; Path=\b", secure(), jerror.CookieInvalidPath},
		{"n=v; Secure=", secure(), jerror.CookieInvalidSecure},
		{"n=v; Secure=yes", secure(), jerror.CookieInvalidSecure},
		{"n=v; Secure", &Context{}, jerror.CookieSecureAttributeNotSecureEnv},
		{"n=v; HttpOnly=", secure(), jerror.CookieInvalidHttpOnly},
		{"n=v; HttpOnly=yes", secure(), jerror.CookieInvalidHttpOnly},
		{"n=v; HttpOnly", &Context{IsSecureEnv: true, NonHTTPAPI: true}, jerror.CookieHttpOnlyFromNonHttpAPI},
		{"__Secure-n=v", secure(), jerror.CookieSecurePrefixMissingSecure},
		{"__Secure-n=v; Secure", &Context{}, jerror.CookieSecurePrefixNotSecureEnv},
		{"__Host-n=v", secure(), jerror.CookieHostPrefixMissingSecure},
		{"__Host-n=v; Secure", secure(), jerror.CookieHostPrefixPathNotRoot},
		{"__Host-n=v; Secure; Domain=example.com", secure(), jerror.CookieHostPrefixNoDomain},
		{"__Host-n=v; Secure; Path=somewhere", secure(), jerror.CookieHostPrefixPathNotRoot},
		{"__Host-n=v; Secure; Path=/", &Context{}, jerror.CookieHostPrefixNotSecureEnv},
		{"n=v", &Context{RequestURL: "https://example/\b"}, jerror.CookieRequestURLInvalid},
		{"n=v", &Context{RequestURL: "."}, jerror.CookieRequestURLInvalid},
		{"n=v; Domain=example.com", &Context{RequestURL: "example.biz"}, jerror.CookieHostnameNotInEnv},
		{"n=v; Domain=example.com", &Context{RequestURL: "some-example.com"}, jerror.CookieHostnameNotInEnv},
		{"n=v; Domain=foo.example.com", &Context{RequestURL: "example.com"}, jerror.CookieHostnameNotInEnv},
		{"n=v; Domain=bar.example.com", &Context{RequestURL: "foo.example.com"}, jerror.CookieHostnameNotInEnv},
		{"n=v; Domain=bar.foo.example.com", &Context{RequestURL: "foo.example.com"}, jerror.CookieHostnameNotInEnv},
		{"n=v; Domain=2.3.4", &Context{RequestURL: "http://1.2.3.4/"}, jerror.CookieHostnameNotInEnv},
		{"com=test; Domain=com", &Context{RequestURL: "example.com", PublicSuffix: fakeSuffix{suffix: true}}, jerror.CookieHostnameIsPublicSuffix},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := ParseSetCookieHeader(tt.in, tt.ctx)
			if !jerror.HasCode(err, tt.code) {
				t.Errorf("err = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestParseSetCookieHeaderPublicSuffixError(t *testing.T) {
	notReady := jerror.New(jerror.PublicSuffixNotReady, nil)
	_, err := ParseSetCookieHeader("n=v; Domain=example.com", &Context{RequestURL: "a.example.com", PublicSuffix: fakeSuffix{err: notReady}})
	if !jerror.HasCode(err, jerror.CookiePublicSuffixError) {
		t.Fatalf("err = %v", err)
	}
	if !errors.Is(err, notReady) {
		t.Error("checker error should be the cause")
	}

	// same host never consults the checker
	attrs, err := ParseSetCookieHeader("n=v; Domain=com", &Context{RequestURL: "com", PublicSuffix: fakeSuffix{suffix: true}})
	if err != nil || attrs.Domain != "com" {
		t.Errorf("attrs = %+v, err = %v", attrs, err)
	}
}

func TestParseSetCookieHeaderValid(t *testing.T) {
	t.Run("quoted and empty values", func(t *testing.T) {
		for in, want := range map[string]string{"ok=": "", `ok="example"`: "example", "ok=example;;": "example"} {
			a, err := ParseSetCookieHeader(in, nil)
			if err != nil {
				t.Fatalf("%q: %v", in, err)
			}
			if a.Name != "ok" || a.Value != want {
				t.Errorf("%q parsed to %q=%q", in, a.Name, a.Value)
			}
		}
	})

	t.Run("extensions keep order", func(t *testing.T) {
		a, err := ParseSetCookieHeader("test=; someNewAttribute=; someNewFlag; Priority=High", nil)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		want := []Extension{{Name: "someNewAttribute"}, {Name: "someNewFlag", Flag: true}, {Name: "Priority", Value: "High"}}
		if len(a.Extensions) != len(want) {
			t.Fatalf("extensions = %+v", a.Extensions)
		}
		for i := range want {
			if a.Extensions[i] != want[i] {
				t.Errorf("extension %d = %+v, want %+v", i, a.Extensions[i], want[i])
			}
		}
	})

	t.Run("expires and max-age", func(t *testing.T) {
		a, err := ParseSetCookieHeader("n=v; expires=Tue, 27 Jun 2032 01:50:08 GMT; max-Age=900719925474", nil)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if a.Expires == nil || a.Expires.Unix() != time.Date(2032, 6, 27, 1, 50, 8, 0, time.UTC).Unix() {
			t.Errorf("Expires = %v", a.Expires)
		}
		if a.MaxAge == nil || *a.MaxAge != 900719925474 {
			t.Errorf("MaxAge = %v", a.MaxAge)
		}

		past, err := ParseSetCookieHeader("n=v; Max-Age=-1", secure())
		if err != nil || *past.MaxAge != -1 {
			t.Errorf("expired max-age with AllowExpiredSetCookie: %v, %v", past, err)
		}
	})

	t.Run("samesite", func(t *testing.T) {
		tests := map[string]SameSite{
			"n=v; samesite=lax":                SameSiteLax,
			"n=v;SameSite=LaX":                 SameSiteLax,
			"n=v; samesite":                    SameSiteStrict,
			"n=v; SameSite=":                   SameSiteStrict,
			"n=v; SameSite=STRICT":             SameSiteStrict,
			"n=v; SameSite=SomethingSomething": SameSiteStrict,
			"n=v":                              SameSiteNone,
		}
		for in, want := range tests {
			a, err := ParseSetCookieHeader(in, nil)
			if err != nil {
				t.Fatalf("%q: %v", in, err)
			}
			if a.SameSite != want {
				t.Errorf("%q SameSite = %v, want %v", in, a.SameSite, want)
			}
		}
	})

	t.Run("prefixes", func(t *testing.T) {
		if _, err := ParseSetCookieHeader("__Secure-n=v; Secure", secure()); err != nil {
			t.Errorf("__Secure-: %v", err)
		}
		a, err := ParseSetCookieHeader("__Host-n=v; Secure; Path=/", secure())
		if err != nil || a.Path != "/" {
			t.Errorf("__Host-: %+v, %v", a, err)
		}
	})

	t.Run("default path", func(t *testing.T) {
		tests := []struct{ url, want string }{
			{"example.com/somewhere?foo=bar", "/"},
			{"https://example.com/somewhere/?foo=bar", "/somewhere"},
			{"https://example.com/a/b/c", "/a/b"},
			{"https://example.com/", "/"},
			{"https://example.com", "/"},
		}
		for _, tt := range tests {
			a, err := ParseSetCookieHeader("n=v", &Context{RequestURL: tt.url})
			if err != nil {
				t.Fatalf("%s: %v", tt.url, err)
			}
			if a.Path != tt.want {
				t.Errorf("%s: Path = %q, want %q", tt.url, a.Path, tt.want)
			}
		}
		a, _ := ParseSetCookieHeader("n=v; Path=/explicit", &Context{RequestURL: "https://example.com/a/b"})
		if a.Path != "/explicit" {
			t.Errorf("explicit path overwritten: %q", a.Path)
		}
	})

	t.Run("domain matching", func(t *testing.T) {
		tests := []struct{ header, url, want string }{
			{"n=v; Domain=example.com", "example.com", "example.com"},
			{"n=v; Domain=example.com", "foo.example.com", "example.com"},
			{"n=v; Domain=.example.com", ".example.com", "example.com"},
			{"n=v; Domain=.example.com", ".foo.example.com", "example.com"},
			{"n=v; Domain=.foo.example.com", ".foo.example.com", "foo.example.com"},
			{"n=v; Domain=EXAMPLE.com", "https://www.example.com/", "example.com"},
		}
		for _, tt := range tests {
			a, err := ParseSetCookieHeader(tt.header, &Context{RequestURL: tt.url, PublicSuffix: fakeSuffix{}})
			if err != nil {
				t.Fatalf("%s from %s: %v", tt.header, tt.url, err)
			}
			if a.Domain != tt.want {
				t.Errorf("%s from %s: Domain = %q, want %q", tt.header, tt.url, a.Domain, tt.want)
			}
		}
	})

	t.Run("real world", func(t *testing.T) {
		in := "NID=106=qlMlHK1TVTfnsiVYMERjFeXekZs14vzn4uA3Q9et4lry-D3Lb2ZstZaljOyHMWsxUduFuhXYGx2BMqBVcXh2OQGUD7zC1m9dUJZ4D9xhIfcbTvnOX1KCge0xs7JgBqyEO_l00KpJqrzvFexwAg; expires=Wed, 27-Dec-2017 14:28:35 GMT; path=/; domain=.google.com; HttpOnly"
		a, err := ParseSetCookieHeader(in, &Context{RequestURL: "google.com", AllowExpiredSetCookie: true})
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if a.Name != "NID" || a.Path != "/" || a.Domain != "google.com" || !a.HttpOnly {
			t.Errorf("attrs = %+v", a)
		}
		if a.Expires.UnixMilli() != 1514384915000 {
			t.Errorf("Expires = %v", a.Expires)
		}
	})
}

func TestStringifyCookieHeader(t *testing.T) {
	got, err := StringifyCookieHeader([]Pair{{"a", `"b"`}, {"c", "d"}})
	if err != nil || got != "a=b; c=d" {
		t.Errorf("StringifyCookieHeader = %q, %v", got, err)
	}
	if _, err := StringifyCookieHeader([]Pair{{"", "x"}}); !jerror.HasCode(err, jerror.CookieInvalidName) {
		t.Errorf("empty name err = %v", err)
	}
	if _, err := StringifyCookieHeader([]Pair{{"a", "\b"}}); !jerror.HasCode(err, jerror.CookieInvalidValue) {
		t.Errorf("bad value err = %v", err)
	}

	kv, err := StringifyCookieHeaderKV(map[string]string{"z": "1", "a": "2"})
	if err != nil || kv != "a=2; z=1" {
		t.Errorf("StringifyCookieHeaderKV = %q, %v", kv, err)
	}
	empty, err := StringifyCookieHeaderKV(nil)
	if err != nil || empty != "" {
		t.Errorf("empty map = %q, %v", empty, err)
	}
}

func TestStringifySetCookieHeader(t *testing.T) {
	ts := time.UnixMilli(1498591378533)
	zero := int64(0)
	tests := []struct {
		name  string
		attrs *Attributes
		want  string
	}{
		{"unquotes value", &Attributes{Name: "n", Value: `"v"`}, "n=v"},
		{"epoch", &Attributes{Name: "n", Value: "v", Expires: ptrTime(time.Unix(0, 0))}, "n=v; Expires=Thu, 01 Jan 1970 00:00:00 GMT"},
		{"expires and max-age", &Attributes{Name: "n", Value: "v", Expires: &ts, MaxAge: &zero}, "n=v; Expires=Tue, 27 Jun 2017 19:22:58 GMT; Max-Age=0"},
		{"leading dot domain", &Attributes{Name: "n", Value: "v", Domain: ".foo.example.com"}, "n=v; Domain=foo.example.com"},
		{"path kept verbatim", &Attributes{Name: "n", Value: "v", Path: "/foo/bar/"}, "n=v; Path=/foo/bar/"},
		{"flags", &Attributes{Name: "n", Value: "v", Secure: true, HttpOnly: true}, "n=v; Secure; HttpOnly"},
		{"samesite lax", &Attributes{Name: "n", Value: "v", SameSite: SameSiteLax}, "n=v; SameSite=Lax"},
		{"samesite strict", &Attributes{Name: "n", Value: "v", SameSite: SameSiteStrict}, "n=v; SameSite=Strict"},
		{
			"canonical order",
			&Attributes{
				Name: "n", Value: "v", SameSite: SameSiteLax, HttpOnly: true, Secure: true, Path: "/", Domain: "example.com", MaxAge: &zero,
				Extensions: []Extension{{Name: "someNewAttribute"}, {Name: "someNewAttribute2", Value: "nv2"}, {Name: "someNewFlag", Flag: true}},
			},
			"n=v; Max-Age=0; Domain=example.com; Path=/; Secure; HttpOnly; SameSite=Lax; someNewAttribute=; someNewAttribute2=nv2; someNewFlag",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := StringifySetCookieHeader(tt.attrs, nil)
			if err != nil {
				t.Fatalf("StringifySetCookieHeader: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	invalid := []*Attributes{nil, {}, {Name: "ø"}, {Name: "n", Value: "ø"}, {Name: "n", Value: "\b"}}
	for i, a := range invalid {
		if _, err := StringifySetCookieHeader(a, nil); err == nil {
			t.Errorf("invalid %d: expected error", i)
		}
	}

	if _, err := StringifySetCookieHeader(&Attributes{Name: "n", Value: "v", Secure: true}, &Context{}); !jerror.HasCode(err, jerror.CookieSecureAttributeNotSecureEnv) {
		t.Errorf("re-parse should apply the context, err = %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	maxAge := int64(3600)
	exp := time.Date(2040, 1, 2, 3, 4, 5, 0, time.UTC)
	in := &Attributes{
		Name: "sid", Value: "abc", Expires: &exp, MaxAge: &maxAge, Domain: ".foo.example.com", Path: "/app",
		Secure: true, HttpOnly: true, SameSite: SameSiteStrict, Extensions: []Extension{{Name: "Priority", Value: "High"}},
	}
	text, err := StringifySetCookieHeader(in, nil)
	if err != nil {
		t.Fatalf("stringify: %v", err)
	}
	out, err := ParseSetCookieHeader(text, secure())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out.Domain != "foo.example.com" {
		t.Errorf("Domain = %q", out.Domain)
	}
	if !out.Expires.Equal(exp) || *out.MaxAge != maxAge || out.Path != "/app" || !out.Secure || !out.HttpOnly || out.SameSite != SameSiteStrict {
		t.Errorf("round trip mismatch: %+v", out)
	}
	if e, ok := out.Extension("Priority"); !ok || e.Value != "High" {
		t.Errorf("extension lost: %+v", out.Extensions)
	}
	again, _ := StringifySetCookieHeader(out, nil)
	if again != text {
		t.Errorf("stringify not stable: %q vs %q", again, text)
	}
}

func TestHelpers(t *testing.T) {
	for _, m := range []string{"GET", "head", "OPTIONS", "TRACE"} {
		if !IsSafeMethod(m) {
			t.Errorf("%s should be safe", m)
		}
	}
	if IsSafeMethod("POST") {
		t.Error("POST is not safe")
	}
	if ParseSameSite("LAX") != SameSiteLax || ParseSameSite("none") != SameSiteNone || ParseSameSite("x") != SameSiteStrict {
		t.Error("ParseSameSite mapping wrong")
	}
	var s SameSite
	if err := s.UnmarshalText([]byte("Lax")); err != nil || s != SameSiteLax {
		t.Errorf("UnmarshalText = %v, %v", s, err)
	}
	a := &Attributes{Name: "n", Expires: ptrTime(time.Now()), Extensions: []Extension{{Name: "x"}}}
	c := a.Clone()
	*c.Expires = time.Time{}
	c.Extensions[0].Name = "y"
	if a.Expires.IsZero() || a.Extensions[0].Name != "x" {
		t.Error("Clone shares state with the original")
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
