package cmd

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func TestGetPrintsBody(t *testing.T) {
	c := newTestCLI(t)
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "hello from "+r.Method)
	})

	if got := c.mustRun("get", srv.URL+"/"); got != "hello from GET" {
		t.Errorf("stdout = %q", got)
	}
	if got := c.mustRun("g", "-d", "x", srv.URL+"/"); got != "hello from POST" {
		t.Errorf("stdout = %q", got)
	}
	if got := c.mustRun("get", "-X", "put", "--json", `{"a":1}`, srv.URL+"/"); got != "hello from PUT" {
		t.Errorf("stdout = %q", got)
	}
}

func TestGetRequestFlags(t *testing.T) {
	c := newTestCLI(t)
	var seen *http.Request
	var body string
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen, body = r, string(b)
	})

	c.mustRun("get",
		"-H", "X-Trace: 7",
		"-F", "a=1", "-F", "b=two",
		"-u", "alice:secret",
		"-b", "static=1",
		"--no-jar",
		srv.URL+"/form",
	)
	if seen.Header.Get("X-Trace") != "7" {
		t.Errorf("X-Trace = %q", seen.Header.Get("X-Trace"))
	}
	if body != "a=1&b=two" {
		t.Errorf("body = %q", body)
	}
	if ct := seen.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
		t.Errorf("Content-Type = %q", ct)
	}
	if u, p, ok := seen.BasicAuth(); !ok || u != "alice" || p != "secret" {
		t.Errorf("basic auth = %q %q %v", u, p, ok)
	}
	if seen.Header.Get("Cookie") != "static=1" {
		t.Errorf("Cookie = %q", seen.Header.Get("Cookie"))
	}

	bodyFile := filepath.Join(t.TempDir(), "body.txt")
	if err := os.WriteFile(bodyFile, []byte("from file"), 0644); err != nil {
		t.Fatal(err)
	}
	c.mustRun("get", "--no-jar", "-d", "@"+bodyFile, srv.URL+"/")
	if body != "from file" {
		t.Errorf("body = %q", body)
	}
	c.mustRun("get", "--no-jar", "--data-stream", bodyFile, srv.URL+"/")
	if body != "from file" || seen.Method != "POST" {
		t.Errorf("stream body = %q via %s", body, seen.Method)
	}
}

func TestGetPersistsCookies(t *testing.T) {
	c := newTestCLI(t)
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc", Path: "/", MaxAge: 3600})
			http.SetCookie(w, &http.Cookie{Name: "tmp", Value: "1", Path: "/"})
		default:
			io.WriteString(w, r.Header.Get("Cookie"))
		}
	})

	c.mustRun("get", srv.URL+"/login")
	if _, err := os.Stat(filepath.Join(c.dir, "cookies.jar")); err != nil {
		t.Fatalf("jar not saved: %v", err)
	}
	if got := c.mustRun("get", srv.URL+"/echo"); got != "sid=abc; tmp=1" {
		t.Errorf("cookies sent = %q", got)
	}
	if got := c.mustRun("get", "--no-jar", srv.URL+"/echo"); got != "" {
		t.Errorf("--no-jar sent %q", got)
	}

	c.mustRun("cookies", "clear-session")
	if got := c.mustRun("get", srv.URL+"/echo"); got != "sid=abc" {
		t.Errorf("after clear-session = %q", got)
	}
}

func TestGetOutputFileAndChecksum(t *testing.T) {
	c := newTestCLI(t)
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "hello")
	})
	out := filepath.Join(t.TempDir(), "hello.txt")

	if got := c.mustRun("get", "--no-jar", "-o", out, "--checksum", "sha256", srv.URL+"/hello.txt"); got != "" {
		t.Errorf("stdout should be empty, got %q", got)
	}
	data, err := os.ReadFile(out)
	if err != nil || string(data) != "hello" {
		t.Fatalf("output file = %q, %v", data, err)
	}
	if !strings.Contains(c.stderr.String(), "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824") {
		t.Errorf("checksum missing from stderr: %s", c.stderr.String())
	}

	err = c.run("get", "--no-jar", "--expect-checksum", "00", srv.URL+"/")
	if err == nil || !strings.Contains(err.Error(), "checksum") {
		t.Errorf("want checksum failure, got %v", err)
	}
}

func TestGetJSONPathAndResult(t *testing.T) {
	c := newTestCLI(t)
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/old" {
			http.Redirect(w, r, "/data", http.StatusFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"a":{"b":42}}`)
	})

	if got := c.mustRun("get", "--no-jar", "--json-path", "a.b", srv.URL+"/data"); got != "42\n" {
		t.Errorf("json path = %q", got)
	}
	if err := c.run("get", "--no-jar", "--json-path", "a.c", srv.URL+"/data"); err == nil {
		t.Error("missing path should fail")
	}

	out := c.mustRun("get", "--no-jar", "--result", "--include", srv.URL+"/old")
	var res struct {
		StatusCode int `json:"statusCode"`
		Redirects  []struct {
			StatusCode int `json:"statusCode"`
		} `json:"redirects"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("result is not JSON: %v\n%s", err, out)
	}
	if res.StatusCode != 200 || len(res.Redirects) != 1 || res.Redirects[0].StatusCode != 302 {
		t.Errorf("result = %+v", res)
	}
	if !strings.Contains(c.stderr.String(), "Content-Type: application/json") {
		t.Errorf("--include output missing headers: %s", c.stderr.String())
	}

	if err := c.run("get", "--no-jar", "--redirect-limit", "0", srv.URL+"/old"); err == nil {
		t.Error("redirect limit 0 should fail on a redirect")
	}
}

func TestGetLocalSchemes(t *testing.T) {
	c := newTestCLI(t)
	if got := c.mustRun("get", "--no-jar", "data:text/plain;base64,aGVsbG8="); got != "hello" {
		t.Errorf("data URL = %q", got)
	}
	p := filepath.Join(t.TempDir(), "local.txt")
	if err := os.WriteFile(p, []byte("local"), 0644); err != nil {
		t.Fatal(err)
	}
	if got := c.mustRun("get", "--no-jar", "file://"+filepath.ToSlash(p)); got != "local" {
		t.Errorf("file URL = %q", got)
	}
	if err := c.run("get", "--no-jar", "--data-limit", "2", "data:,toolong"); err == nil {
		t.Error("data limit ignored")
	}
}

func TestGetRetry(t *testing.T) {
	c := newTestCLI(t)
	var hits atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, "ok")
	})
	if got := c.mustRun("get", "--no-jar", "--retry", "2", srv.URL+"/"); got != "ok" {
		t.Errorf("stdout = %q", got)
	}
	if hits.Load() != 2 {
		t.Errorf("hits = %d", hits.Load())
	}
}

func TestGetBatch(t *testing.T) {
	c := newTestCLI(t)
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, "body of "+r.URL.Path)
	})
	dir := t.TempDir()
	input := filepath.Join(dir, "urls.txt")
	lines := strings.Join([]string{
		"# saved pages",
		srv.URL + "/one.txt",
		srv.URL + "/two two.out",
		"gopher://example.com/",
		"",
	}, "\n")
	if err := os.WriteFile(input, []byte(lines), 0644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out")

	c.mustRun("get", "--no-jar", "-i", input, "--output-dir", out, "-p", "2")
	for name, want := range map[string]string{"one.txt": "body of /one.txt", "two.out": "body of /two"} {
		data, err := os.ReadFile(filepath.Join(out, name))
		if err != nil || string(data) != want {
			t.Errorf("%s = %q, %v", name, data, err)
		}
	}
	if !strings.Contains(c.stderr.String(), "Line 4: gopher://example.com/") {
		t.Errorf("skipped line not reported:\n%s", c.stderr.String())
	}

	if err := os.WriteFile(input, []byte(srv.URL+"/missing\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := c.run("get", "--no-jar", "-i", input, "--output-dir", out); err == nil {
		t.Error("a failed request should fail the batch")
	}
}

func TestOutputName(t *testing.T) {
	tests := map[string]string{
		"https://example.com/a/file.zip?x=1": "file.zip",
		"https://example.com/":               "index.html",
		"https://example.com":                "index.html",
		"://bad":                             "index.html",
	}
	for in, want := range tests {
		if got := outputName(in); got != want {
			t.Errorf("outputName(%q) = %q, want %q", in, got, want)
		}
	}
}
