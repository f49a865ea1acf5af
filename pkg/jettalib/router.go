package jettalib

import (
	"sort"
	"strings"
	"sync"
)

// SchemeRouter maps URL schemes to transports.
// The zero value is not usable; use NewSchemeRouter to create one.
type SchemeRouter struct {
	mu     sync.RWMutex
	routes map[string]Transport
}

// NewSchemeRouter creates a router with http, https, ftp, ftps and sftp
// transports. httpT may be nil for a default HTTP transport.
func NewSchemeRouter(httpT *HTTPTransport, ftpOpts *FTPOptions, sftpOpts *SFTPOptions) *SchemeRouter {
	if httpT == nil {
		httpT = DefaultHTTPTransport()
	}
	r := &SchemeRouter{routes: make(map[string]Transport)}
	r.routes["http"] = httpT
	r.routes["https"] = httpT

	ftpT := NewFTPTransport(ftpOpts)
	r.routes["ftp"] = ftpT
	r.routes["ftps"] = ftpT

	r.routes["sftp"] = NewSFTPTransport(sftpOpts)
	return r
}

// Register adds or replaces the transport for scheme. A nil transport
// removes the route.
func (r *SchemeRouter) Register(scheme string, t Transport) {
	scheme = strings.TrimSuffix(strings.ToLower(scheme), ":")
	r.mu.Lock()
	defer r.mu.Unlock()
	if t == nil {
		delete(r.routes, scheme)
		return
	}
	r.routes[scheme] = t
}

// Lookup returns the transport registered for scheme.
func (r *SchemeRouter) Lookup(scheme string) (Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.routes[strings.ToLower(scheme)]
	return t, ok
}

// Schemes returns a sorted list of all registered schemes.
func (r *SchemeRouter) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schemes := make([]string, 0, len(r.routes))
	for s := range r.routes {
		schemes = append(schemes, s)
	}
	sort.Strings(schemes)
	return schemes
}
