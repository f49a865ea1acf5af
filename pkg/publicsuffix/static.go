package publicsuffix

import (
	"strings"

	xpublicsuffix "golang.org/x/net/publicsuffix"
)

// Static classifies domains with the list compiled into
// golang.org/x/net/publicsuffix. It is always ready and never refreshes.
type Static struct{}

// IsPublicSuffix reports whether domain is itself a public suffix,
// including unlisted single-label TLDs.
func (Static) IsPublicSuffix(domain string) (bool, error) {
	domain = strings.Trim(strings.ToLower(domain), ".")
	if domain == "" {
		return false, nil
	}
	suffix, _ := xpublicsuffix.PublicSuffix(domain)
	return suffix == domain, nil
}

// ICANN reports whether the suffix of domain is managed by ICANN, as
// opposed to a privately registered suffix such as github.io.
func (Static) ICANN(domain string) bool {
	_, icann := xpublicsuffix.PublicSuffix(strings.ToLower(domain))
	return icann
}

// Readiness is implemented by checkers that load asynchronously.
type Readiness interface {
	Ready() <-chan struct{}
	State() State
	Err() error
	Subscribe(fn func(Event, error)) func()
}

var (
	_ Checker   = Static{}
	_ Readiness = (*List)(nil)
)
