package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/danielbankhead/jetta/pkg/jettalib"
	"github.com/danielbankhead/jetta/pkg/logger"
	"github.com/danielbankhead/jetta/pkg/publicsuffix"
)

// SettingsFileName is read from the config directory.
const SettingsFileName = "config.yaml"

// Settings are the persistent defaults of the command line. They are
// layered as built-in defaults, config.yaml, environment (optionally
// seeded from .env files) and finally command flags.
type Settings struct {
	UserAgent             string        `yaml:"user_agent" env:"JETTA_USER_AGENT"`
	Proxy                 string        `yaml:"proxy" env:"JETTA_PROXY"`
	ProxyFromEnvironment  bool          `yaml:"proxy_from_environment" env:"JETTA_PROXY_FROM_ENVIRONMENT"`
	TimeLimit             time.Duration `yaml:"time_limit" env:"JETTA_TIME_LIMIT"`
	ChunkTimeLimit        time.Duration `yaml:"chunk_time_limit" env:"JETTA_CHUNK_TIME_LIMIT"`
	DataLimit             string        `yaml:"data_limit" env:"JETTA_DATA_LIMIT"`
	DecompressedDataLimit string        `yaml:"decompressed_data_limit" env:"JETTA_DECOMPRESSED_DATA_LIMIT"`
	RedirectLimit         int           `yaml:"redirect_limit" env:"JETTA_REDIRECT_LIMIT"`
	RateLimit             string        `yaml:"rate_limit" env:"JETTA_RATE_LIMIT"`
	Retries               int           `yaml:"retries" env:"JETTA_RETRIES"`

	KnownHosts string `yaml:"known_hosts" env:"JETTA_KNOWN_HOSTS"`
	SSHKey     string `yaml:"ssh_key" env:"JETTA_SSH_KEY"`

	BlockThirdPartyCookies bool          `yaml:"block_third_party_cookies" env:"JETTA_BLOCK_THIRD_PARTY_COOKIES"`
	SuffixSources          []string      `yaml:"suffix_sources" env:"JETTA_SUFFIX_SOURCES" envSeparator:","`
	SuffixCacheLimit       time.Duration `yaml:"suffix_cache_limit" env:"JETTA_SUFFIX_CACHE_LIMIT"`

	Debug     bool   `yaml:"debug" env:"JETTA_DEBUG"`
	LogFormat string `yaml:"log_format" env:"JETTA_LOG_FORMAT"`
	LogFile   string `yaml:"log_file" env:"JETTA_LOG_FILE"`

	// Dir is the config directory the settings were loaded from.
	Dir string `yaml:"-" env:"-"`
}

// DefaultSettings mirrors the engine defaults.
func DefaultSettings() *Settings {
	return &Settings{
		TimeLimit:        jettalib.DefaultTimeLimit,
		RedirectLimit:    jettalib.DefaultRedirectLimit,
		SuffixSources:    append([]string(nil), publicsuffix.DefaultSources...),
		SuffixCacheLimit: publicsuffix.DEF_CACHE_LIMIT,
		LogFormat:        "text",
	}
}

// LoadSettings reads dir/config.yaml from fsys when present, then loads
// dir/.env and ./.env into the environment without overriding variables
// that are already set, then applies JETTA_* variables.
func LoadSettings(fsys afero.Fs, dir string) (*Settings, error) {
	s := DefaultSettings()
	s.Dir = dir

	data, err := afero.ReadFile(fsys, filepath.Join(dir, SettingsFileName))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("%s: %w", SettingsFileName, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, err
	}

	for _, p := range []string{filepath.Join(dir, ".env"), ".env"} {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	if err := env.Parse(s); err != nil {
		return nil, err
	}
	s.Dir = dir
	return s, s.validate()
}

func (s *Settings) validate() error {
	for _, v := range []string{s.DataLimit, s.DecompressedDataLimit, s.RateLimit} {
		if v == "" {
			continue
		}
		if _, err := jettalib.ParseSize(v); err != nil {
			return err
		}
	}
	if s.RedirectLimit < 0 {
		return fmt.Errorf("redirect_limit must not be negative")
	}
	return nil
}

// requestOptions turns the settings into engine level defaults.
func (s *Settings) requestOptions() []jettalib.RequestOption {
	opts := []jettalib.RequestOption{
		jettalib.WithTimeLimit(s.TimeLimit),
		jettalib.WithRedirectLimit(s.RedirectLimit),
	}
	if s.ChunkTimeLimit > 0 {
		opts = append(opts, jettalib.WithChunkTimeLimit(s.ChunkTimeLimit))
	}
	if s.UserAgent != "" {
		opts = append(opts, jettalib.WithHeader("User-Agent", s.UserAgent))
	}
	// sizes were checked by validate
	if n, err := jettalib.ParseSize(s.DataLimit); err == nil {
		opts = append(opts, jettalib.WithDataLimit(n))
	}
	if n, err := jettalib.ParseSize(s.DecompressedDataLimit); err == nil {
		opts = append(opts, jettalib.WithDecompressedDataLimit(n))
	}
	if n, err := jettalib.ParseSize(s.RateLimit); err == nil {
		opts = append(opts, jettalib.WithRateLimit(n))
	}
	return opts
}

// newLogger builds the command line logger: warnings and errors go to
// stderr, everything goes to LogFile when set.
func (s *Settings) newLogger() (logger.Logger, error) {
	level := "warning"
	if s.Debug {
		level = "debug"
	}
	console := logger.NewLogrusLogger(logger.LogrusOptions{
		Level:  level,
		Format: s.LogFormat,
		Output: stderr,
	})
	if s.LogFile == "" {
		return console, nil
	}
	f, err := os.OpenFile(s.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, err
	}
	file := logger.NewLogrusLogger(logger.LogrusOptions{
		Level:  "debug",
		Format: "json",
		Output: f,
	})
	return logger.NewMultiLogger(console, file), nil
}
