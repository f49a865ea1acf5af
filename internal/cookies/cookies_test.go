package cookies

import (
	"bytes"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danielbankhead/jetta/pkg/cookielib"
	"github.com/danielbankhead/jetta/pkg/logger"
	_ "modernc.org/sqlite"
)

var now = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

type row struct {
	name, value, host, path string
	expiry                  int64
	secure, httpOnly        int
	sameSite                int
}

func createFirefoxFixture(t *testing.T, dir string, rows []row) string {
	t.Helper()
	dbPath := filepath.Join(dir, "cookies.sqlite")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE moz_cookies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		value TEXT NOT NULL,
		host TEXT NOT NULL,
		path TEXT NOT NULL DEFAULT '/',
		expiry INTEGER NOT NULL DEFAULT 0,
		isSecure INTEGER NOT NULL DEFAULT 0,
		isHttpOnly INTEGER NOT NULL DEFAULT 0,
		sameSite INTEGER NOT NULL DEFAULT 0
	)`); err != nil {
		t.Fatalf("failed to create moz_cookies: %v", err)
	}
	for _, r := range rows {
		if _, err := db.Exec(`INSERT INTO moz_cookies (name, value, host, path, expiry, isSecure, isHttpOnly, sameSite) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.name, r.value, r.host, r.path, r.expiry, r.secure, r.httpOnly, r.sameSite); err != nil {
			t.Fatalf("failed to insert row: %v", err)
		}
	}
	return dbPath
}

func createChromeFixture(t *testing.T, dir string, rows []row) string {
	t.Helper()
	dbPath := filepath.Join(dir, "Cookies")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE cookies (
		creation_utc INTEGER NOT NULL DEFAULT 0,
		host_key TEXT NOT NULL,
		name TEXT NOT NULL,
		value TEXT NOT NULL,
		encrypted_value BLOB NOT NULL DEFAULT x'',
		path TEXT NOT NULL DEFAULT '/',
		expires_utc INTEGER NOT NULL DEFAULT 0,
		is_secure INTEGER NOT NULL DEFAULT 0,
		is_httponly INTEGER NOT NULL DEFAULT 0,
		samesite INTEGER NOT NULL DEFAULT -1
	)`); err != nil {
		t.Fatalf("failed to create cookies: %v", err)
	}
	for _, r := range rows {
		expires := int64(0)
		if r.expiry > 0 {
			expires = (r.expiry + chromeEpochOffsetSeconds) * 1_000_000
		}
		if _, err := db.Exec(`INSERT INTO cookies (host_key, name, value, path, expires_utc, is_secure, is_httponly, samesite) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.host, r.name, r.value, r.path, expires, r.secure, r.httpOnly, r.sameSite); err != nil {
			t.Fatalf("failed to insert row: %v", err)
		}
	}
	return dbPath
}

func TestReadFirefox(t *testing.T) {
	future := now.Add(24 * time.Hour).Unix()
	dbPath := createFirefoxFixture(t, t.TempDir(), []row{
		{"sid", "abc123", ".example.com", "/", future, 1, 1, 2},
		{"lang", "en", "www.example.com", "/settings", future, 0, 0, 1},
		{"old", "x", ".example.com", "/", now.Add(-time.Hour).Unix(), 0, 0, 0},
		{"other", "y", ".other.org", "/", future, 0, 0, 0},
	})

	cookies, src, err := Read(dbPath, "example.com", now, nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if src.Format != FormatFirefox || src.Path != dbPath {
		t.Errorf("source = %+v", src)
	}
	if len(cookies) != 2 {
		t.Fatalf("got %d cookies, want 2", len(cookies))
	}
	sid := cookies[0]
	if sid.Name != "sid" || !sid.Secure || !sid.HttpOnly || sid.SameSite != cookielib.SameSiteStrict || sid.HostOnly() {
		t.Errorf("sid = %+v", sid)
	}
	lang := cookies[1]
	if lang.Name != "lang" || !lang.HostOnly() || lang.SameSite != cookielib.SameSiteLax {
		t.Errorf("lang = %+v", lang)
	}

	all, _, err := Read(dbPath, "", now, nil)
	if err != nil || len(all) != 3 {
		t.Errorf("Read all = %d cookies, %v", len(all), err)
	}
}

func TestReadChrome(t *testing.T) {
	future := now.Add(24 * time.Hour).Unix()
	dbPath := createChromeFixture(t, t.TempDir(), []row{
		{"sid", "abc", ".example.com", "/", future, 1, 0, 1},
		{"session", "s", "example.com", "/", 0, 0, 1, -1},
		{"encrypted", "", ".example.com", "/", future, 0, 0, 0},
	})

	cookies, src, err := Read(dbPath, "example.com", now, nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if src.Format != FormatChrome {
		t.Errorf("format = %v", src.Format)
	}
	if len(cookies) != 2 {
		t.Fatalf("got %d cookies, want 2 (encrypted skipped)", len(cookies))
	}
	byName := map[string]Cookie{}
	for _, c := range cookies {
		byName[c.Name] = c
	}
	if c := byName["sid"]; c.Expiry.Unix() != future || c.SameSite != cookielib.SameSiteLax {
		t.Errorf("sid = %+v", c)
	}
	if c := byName["session"]; !c.Session() || !c.HttpOnly {
		t.Errorf("session = %+v", c)
	}
}

func TestParseNetscape(t *testing.T) {
	future := now.Add(time.Hour).Unix()
	past := now.Add(-time.Hour).Unix()
	content := strings.Join([]string{
		netscapeHeader,
		"# comment",
		fmt.Sprintf(".example.com\tTRUE\t/\tTRUE\t%d\tsid\tabc", future),
		fmt.Sprintf("#HttpOnly_example.com\tFALSE\t/app\tFALSE\t%d\ttoken\tt", future),
		"example.com\tTRUE\t/\tFALSE\t0\tsession\ts",
		fmt.Sprintf("example.com\tFALSE\t/\tFALSE\t%d\texpired\te", past),
		"broken line",
		"example.com\tFALSE\t/\tFALSE\tsoon\tbad\tb",
		fmt.Sprintf("other.org\tFALSE\t/\tFALSE\t%d\tother\to", future),
	}, "\r\n")

	mock := logger.NewMockLogger()
	cookies, err := ParseNetscape(strings.NewReader(content), "example.com", now, mock)
	if err != nil {
		t.Fatalf("ParseNetscape: %v", err)
	}
	if len(cookies) != 3 {
		t.Fatalf("got %d cookies, want 3: %+v", len(cookies), cookies)
	}
	if !cookies[0].Secure || cookies[0].HostOnly() {
		t.Errorf("sid = %+v", cookies[0])
	}
	if !cookies[1].HttpOnly || !cookies[1].HostOnly() || cookies[1].Path != "/app" {
		t.Errorf("token = %+v", cookies[1])
	}
	if !cookies[2].Session() || cookies[2].Domain != ".example.com" {
		t.Errorf("session = %+v", cookies[2])
	}
	if len(mock.Warnings()) != 2 {
		t.Errorf("warnings = %v", mock.Warnings())
	}
	for _, w := range mock.Warnings() {
		if strings.Contains(w, "abc") || strings.Contains(w, "soon") {
			t.Errorf("warning leaks line content: %q", w)
		}
	}
}

func TestWriteNetscapeRoundTrip(t *testing.T) {
	in := []Cookie{
		{Name: "sid", Value: "abc", Domain: ".example.com", Path: "/", Expiry: now.Add(time.Hour), Secure: true},
		{Name: "token", Value: "t", Domain: "example.com", Path: "/app", HttpOnly: true},
	}
	var buf bytes.Buffer
	if err := WriteNetscape(&buf, in); err != nil {
		t.Fatalf("WriteNetscape: %v", err)
	}
	if !strings.HasPrefix(buf.String(), netscapeHeader+"\n") {
		t.Errorf("missing header: %q", buf.String())
	}
	out, err := ParseNetscape(&buf, "", now, nil)
	if err != nil {
		t.Fatalf("ParseNetscape: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d cookies", len(out))
	}
	for i := range in {
		if out[i].Name != in[i].Name || out[i].Domain != in[i].Domain || out[i].HttpOnly != in[i].HttpOnly ||
			out[i].Secure != in[i].Secure || !out[i].Expiry.Equal(in[i].Expiry) {
			t.Errorf("cookie %d: got %+v, want %+v", i, out[i], in[i])
		}
	}
}

func TestDetectFormat(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
		return p
	}

	tests := []struct {
		name    string
		path    string
		want    Format
		wantErr bool
	}{
		{"netscape", write("a.txt", netscapeHeader+"\n"), FormatNetscape, false},
		{"legacy netscape", write("b.txt", "# HTTP Cookie File\r\n"), FormatNetscape, false},
		{"firefox", createFirefoxFixture(t, t.TempDir(), nil), FormatFirefox, false},
		{"chrome", createChromeFixture(t, t.TempDir(), nil), FormatChrome, false},
		{"empty", write("c.txt", ""), FormatUnknown, true},
		{"garbage", write("d.txt", "hello"), FormatUnknown, true},
		{"missing", filepath.Join(dir, "nope"), FormatUnknown, true},
		{"directory", dir, FormatUnknown, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectFormat(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("format = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSafeCopy(t *testing.T) {
	src := filepath.Join(t.TempDir(), "Cookies")
	os.WriteFile(src, []byte("main"), 0600)
	os.WriteFile(src+"-wal", []byte("wal"), 0600)

	dir, cleanup, err := SafeCopy(src)
	if err != nil {
		t.Fatalf("SafeCopy: %v", err)
	}
	if b, _ := os.ReadFile(filepath.Join(dir, "Cookies-wal")); string(b) != "wal" {
		t.Errorf("wal companion not copied")
	}
	if _, err := os.Stat(filepath.Join(dir, "Cookies-shm")); !os.IsNotExist(err) {
		t.Errorf("absent shm should not be created")
	}
	cleanup()
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("cleanup left %s behind", dir)
	}

	if _, _, err := SafeCopy(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing source")
	}
}

func TestMatchesDomain(t *testing.T) {
	tests := []struct {
		cookie, domain string
		want           bool
	}{
		{".example.com", "example.com", true},
		{"example.com", "example.com", true},
		{"a.example.com", "example.com", true},
		{"notexample.com", "example.com", false},
		{"example.com", "a.example.com", false},
		{"anything", "", true},
	}
	for _, tt := range tests {
		if got := matchesDomain(tt.cookie, tt.domain); got != tt.want {
			t.Errorf("matchesDomain(%q, %q) = %v", tt.cookie, tt.domain, got)
		}
	}
}
