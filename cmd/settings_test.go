package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/danielbankhead/jetta/pkg/jettalib"
	"github.com/danielbankhead/jetta/pkg/publicsuffix"
)

func TestLoadSettingsDefaults(t *testing.T) {
	s, err := LoadSettings(afero.NewMemMapFs(), "/cfg")
	if err != nil {
		t.Fatal(err)
	}
	if s.TimeLimit != jettalib.DefaultTimeLimit || s.RedirectLimit != jettalib.DefaultRedirectLimit {
		t.Errorf("defaults = %+v", s)
	}
	if len(s.SuffixSources) != len(publicsuffix.DefaultSources) || s.Dir != "/cfg" {
		t.Errorf("defaults = %+v", s)
	}
}

func TestLoadSettingsLayers(t *testing.T) {
	fs := afero.NewMemMapFs()
	yml := `
user_agent: yaml-agent
time_limit: 5s
redirect_limit: 2
data_limit: 1MB
suffix_sources:
  - https://mirror.example/list.dat
debug: true
`
	if err := afero.WriteFile(fs, "/cfg/config.yaml", []byte(yml), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("JETTA_REDIRECT_LIMIT", "7")
	t.Setenv("JETTA_SUFFIX_SOURCES", "https://a.example/l,https://b.example/l")

	s, err := LoadSettings(fs, "/cfg")
	if err != nil {
		t.Fatal(err)
	}
	if s.UserAgent != "yaml-agent" || s.TimeLimit != 5*time.Second || !s.Debug {
		t.Errorf("yaml layer lost: %+v", s)
	}
	if s.RedirectLimit != 7 {
		t.Errorf("env should override yaml, RedirectLimit = %d", s.RedirectLimit)
	}
	if len(s.SuffixSources) != 2 || s.SuffixSources[1] != "https://b.example/l" {
		t.Errorf("SuffixSources = %v", s.SuffixSources)
	}

	cfg := jettalib.DefaultConfig()
	for _, o := range s.requestOptions() {
		o(cfg)
	}
	if cfg.DataLimit != jettalib.MB || cfg.RedirectLimit != 7 || cfg.Header.Get("User-Agent") != "yaml-agent" {
		t.Errorf("request options: limit %d redirects %d", cfg.DataLimit, cfg.RedirectLimit)
	}
}

func TestLoadSettingsDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("JETTA_USER_AGENT=from-dotenv\n"), 0600); err != nil {
		t.Fatal(err)
	}
	// godotenv never overrides, so the variable must start unset
	t.Setenv("JETTA_USER_AGENT", "")
	os.Unsetenv("JETTA_USER_AGENT")

	s, err := LoadSettings(afero.NewOsFs(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if s.UserAgent != "from-dotenv" {
		t.Errorf("UserAgent = %q", s.UserAgent)
	}
}

func TestLoadSettingsInvalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":       "time_limit: [",
		"bad size":       "data_limit: lots",
		"negative limit": "redirect_limit: -1",
		"bad duration":   "time_limit: soon",
	}
	for name, yml := range tests {
		t.Run(name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			if err := afero.WriteFile(fs, "/cfg/config.yaml", []byte(yml), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadSettings(fs, "/cfg"); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
