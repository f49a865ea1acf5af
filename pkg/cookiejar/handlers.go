package cookiejar

import (
	"github.com/danielbankhead/jetta/pkg/logger"
)

type (
	// CookieHandlerFunc receives a copy of the affected cookie.
	CookieHandlerFunc func(c *Cookie)
	// PublicSuffixUpdatedHandlerFunc is called after the public suffix
	// list backing the jar was refreshed.
	PublicSuffixUpdatedHandlerFunc func()
	// ErrorHandlerFunc receives asynchronous failures, such as a public
	// suffix refresh that failed.
	ErrorHandlerFunc func(err error)
)

// Handlers are called synchronously after the jar lock is released, in
// the order the changes happened.
type Handlers struct {
	AddedCookieHandler         CookieHandlerFunc
	UpdatedCookieHandler       CookieHandlerFunc
	DeletedCookieHandler       CookieHandlerFunc
	PublicSuffixUpdatedHandler PublicSuffixUpdatedHandlerFunc
	ErrorHandler               ErrorHandlerFunc
}

func (h *Handlers) setDefault(l logger.Logger) {
	if h.AddedCookieHandler == nil {
		h.AddedCookieHandler = func(c *Cookie) {}
	}
	if h.UpdatedCookieHandler == nil {
		h.UpdatedCookieHandler = func(c *Cookie) {}
	}
	if h.DeletedCookieHandler == nil {
		h.DeletedCookieHandler = func(c *Cookie) {}
	}
	if h.PublicSuffixUpdatedHandler == nil {
		h.PublicSuffixUpdatedHandler = func() {}
	}
	if h.ErrorHandler == nil {
		h.ErrorHandler = func(err error) {
			l.Error("cookiejar: %s", err.Error())
		}
	} else {
		errHandler := h.ErrorHandler
		h.ErrorHandler = func(err error) {
			l.Error("cookiejar: %s", err.Error())
			errHandler(err)
		}
	}
}

type eventKind int

const (
	eventAdded eventKind = iota
	eventUpdated
	eventDeleted
)

type event struct {
	kind   eventKind
	cookie *Cookie
}

func (j *Jar) emit(events []event) {
	for _, ev := range events {
		switch ev.kind {
		case eventAdded:
			j.log.Debug("cookiejar: added %s for %s%s", ev.cookie.Name, ev.cookie.Domain, ev.cookie.Path)
			j.handlers.AddedCookieHandler(ev.cookie)
		case eventUpdated:
			j.log.Debug("cookiejar: updated %s for %s%s", ev.cookie.Name, ev.cookie.Domain, ev.cookie.Path)
			j.handlers.UpdatedCookieHandler(ev.cookie)
		case eventDeleted:
			j.log.Debug("cookiejar: deleted %s for %s%s", ev.cookie.Name, ev.cookie.Domain, ev.cookie.Path)
			j.handlers.DeletedCookieHandler(ev.cookie)
		}
	}
}
