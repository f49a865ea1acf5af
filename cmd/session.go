package cmd

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/urfave/cli"

	"github.com/danielbankhead/jetta/common"
	"github.com/danielbankhead/jetta/pkg/cookiejar"
	"github.com/danielbankhead/jetta/pkg/credman"
	"github.com/danielbankhead/jetta/pkg/credman/keyring"
	"github.com/danielbankhead/jetta/pkg/jettalib"
	"github.com/danielbankhead/jetta/pkg/logger"
	"github.com/danielbankhead/jetta/pkg/publicsuffix"
)

// SuffixCacheFileName is the public suffix cache inside the config dir.
const SuffixCacheFileName = "public_suffix_list.json"

// Overridden by tests.
var (
	appFs       afero.Fs  = afero.NewOsFs()
	stdout      io.Writer = os.Stdout
	stderr      io.Writer = os.Stderr
	newKeyStore           = func(fs afero.Fs, dir string) keyring.KeyStore {
		return keyring.Default(common.JarKeyEnv, fs, dir)
	}
)

// session holds what every command needs: resolved settings, the logger
// and the filesystem.
type session struct {
	settings *Settings
	fs       afero.Fs
	log      logger.Logger
}

func newSession(ctx *cli.Context) (*session, error) {
	dir := ctx.GlobalString("config-dir")
	if dir == "" {
		var err error
		if dir, err = common.ConfigDir(); err != nil {
			return nil, err
		}
	}
	s, err := LoadSettings(appFs, dir)
	if err != nil {
		return nil, err
	}
	if ctx.GlobalBool("debug") {
		s.Debug = true
	}
	if f := ctx.GlobalString("log-format"); f != "" {
		s.LogFormat = f
	}
	l, err := s.newLogger()
	if err != nil {
		return nil, err
	}
	return &session{settings: s, fs: appFs, log: l}, nil
}

func (s *session) Close() error {
	return s.log.Close()
}

// newEngine builds an engine carrying the settings as engine defaults.
func (s *session) newEngine() (*jettalib.Engine, error) {
	ht, err := jettalib.NewHTTPTransport(jettalib.HTTPOptions{
		Proxy:                s.settings.Proxy,
		ProxyFromEnvironment: s.settings.ProxyFromEnvironment,
	})
	if err != nil {
		return nil, err
	}
	retry := jettalib.DefaultRetryConfig()
	if s.settings.Retries > 0 {
		retry.MaxRetries = s.settings.Retries
	}
	knownHosts := s.settings.KnownHosts
	if knownHosts == "" {
		knownHosts = filepath.Join(s.settings.Dir, "known_hosts")
	}
	return jettalib.NewEngine(
		jettalib.WithLogger(s.log),
		jettalib.WithFs(s.fs),
		jettalib.WithHTTPTransport(ht),
		jettalib.WithSFTPOptions(jettalib.SFTPOptions{
			KnownHostsPath: knownHosts,
			KeyPath:        s.settings.SSHKey,
		}),
		jettalib.WithRetryConfig(retry),
		jettalib.WithDefaults(s.settings.requestOptions()...),
	), nil
}

// suffixList returns the public suffix list cached in the config dir and
// refreshed through e.
func (s *session) suffixList(e *jettalib.Engine) *publicsuffix.List {
	return publicsuffix.New(publicsuffix.Options{
		Path:       filepath.Join(s.settings.Dir, SuffixCacheFileName),
		Fs:         s.fs,
		CacheLimit: s.settings.SuffixCacheLimit,
		Sources:    s.settings.SuffixSources,
		Fetcher:    e,
		Logger:     s.log,
	})
}

func (s *session) vault() *credman.Vault {
	return credman.NewVault(
		s.fs,
		filepath.Join(s.settings.Dir, credman.DefaultFileName),
		newKeyStore(s.fs, s.settings.Dir),
		s.log,
	)
}

// openJar loads the persistent jar. checker defaults to the embedded
// public suffix list.
func (s *session) openJar(checker publicsuffix.Checker) (*cookiejar.Jar, error) {
	if err := s.fs.MkdirAll(s.settings.Dir, 0700); err != nil {
		return nil, err
	}
	return s.vault().OpenJar(&cookiejar.Options{
		BlockThirdPartyCookies: s.settings.BlockThirdPartyCookies,
		PublicSuffix:           checker,
		Logger:                 s.log,
	})
}

func (s *session) saveJar(j *cookiejar.Jar) error {
	return s.vault().SaveJar(j)
}

// waitSuffixList gives a live list up to d to become ready.
func waitSuffixList(l *publicsuffix.List, d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return l.Wait(ctx)
}
