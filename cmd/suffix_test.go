package cmd

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSuffixCheckEmbedded(t *testing.T) {
	c := newTestCLI(t)
	out := c.mustRun("suffix", "check", "co.uk", "Example.COM", "github.io", "bad-.example")
	for _, want := range []string{
		"co.uk      public suffix",
		"example.com  not a public suffix",
		"github.io  public suffix",
		"bad-.example  invalid",
	} {
		fields := strings.Fields(want)
		found := false
		for _, line := range strings.Split(out, "\n") {
			if strings.Join(strings.Fields(line), " ") == strings.Join(fields, " ") {
				found = true
			}
		}
		if !found {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if !strings.Contains(c.stderr.String(), "list: embedded") {
		t.Errorf("stderr = %q", c.stderr.String())
	}
}

func TestSuffixCheckLive(t *testing.T) {
	c := newTestCLI(t)
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "// test list\nexample\n*.ck\n!www.ck\n")
	})
	if err := os.WriteFile(filepath.Join(c.dir, "config.yaml"), []byte("suffix_sources: ["+srv.URL+"]\n"), 0600); err != nil {
		t.Fatal(err)
	}

	out := c.mustRun("suffix", "check", "--live", "example", "foo.ck", "www.ck", "com")
	got := strings.Join(strings.Fields(out), " ")
	want := "example public suffix foo.ck public suffix www.ck not a public suffix com not a public suffix"
	if got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	if _, err := os.Stat(filepath.Join(c.dir, SuffixCacheFileName)); err != nil {
		t.Errorf("list not cached: %v", err)
	}
}

func TestSuffixCheckNeedsDomain(t *testing.T) {
	c := newTestCLI(t)
	if err := c.run("suffix", "check"); err != nil {
		t.Fatalf("usage errors print help: %v", err)
	}
}
