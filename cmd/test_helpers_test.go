package cmd

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/afero"

	"github.com/danielbankhead/jetta/pkg/credman/keyring"
)

// cli runs commands against a temporary config dir with captured output.
type testCLI struct {
	t      *testing.T
	dir    string
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newTestCLI(t *testing.T) *testCLI {
	t.Helper()
	c := &testCLI{t: t, dir: t.TempDir(), stdout: new(bytes.Buffer), stderr: new(bytes.Buffer)}

	oldFs, oldOut, oldErr, oldKeys, oldColor := appFs, stdout, stderr, newKeyStore, color.NoColor
	appFs = afero.NewOsFs()
	stdout, stderr = c.stdout, c.stderr
	newKeyStore = func(fs afero.Fs, dir string) keyring.KeyStore {
		return keyring.NewFileKeyStore(fs, dir)
	}
	color.NoColor = true
	t.Cleanup(func() {
		appFs, stdout, stderr, newKeyStore, color.NoColor = oldFs, oldOut, oldErr, oldKeys, oldColor
	})
	return c
}

// run executes jetta with the test config dir and resets captured output.
func (c *testCLI) run(args ...string) error {
	c.t.Helper()
	c.stdout.Reset()
	c.stderr.Reset()
	full := append([]string{"jetta", "--config-dir", c.dir}, args...)
	return Execute(full, BuildArgs{Version: "test", BuildType: "test"})
}

func (c *testCLI) mustRun(args ...string) string {
	c.t.Helper()
	if err := c.run(args...); err != nil {
		c.t.Fatalf("jetta %v: %v\nstderr: %s", args, err, c.stderr.String())
	}
	return c.stdout.String()
}

func newServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}
