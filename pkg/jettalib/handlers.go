package jettalib

import "github.com/danielbankhead/jetta/pkg/logger"

type (
	// ProgressHandlerFunc is called for every chunk received with the raw
	// bytes read so far on the current hop. total is -1 when unknown.
	ProgressHandlerFunc func(id string, current, total int64)
	// ResponseHandlerFunc is called when the head of a hop arrives, before
	// its body is read.
	ResponseHandlerFunc func(id string, hop *Result)
	// RedirectHandlerFunc is called before following a redirect.
	RedirectHandlerFunc func(id string, from, to string, statusCode int)
	// ErrorHandlerFunc receives the terminal error of a request.
	ErrorHandlerFunc func(id string, err error)
	// CompleteHandlerFunc is called once with the final result.
	CompleteHandlerFunc func(id string, res *Result)
	// ResponseDataHandlerFunc receives decoded body chunks of the final
	// hop. chunk is reused after the call returns.
	ResponseDataHandlerFunc func(chunk []byte, res *Result)
)

// Handlers observe a request. All handlers run on the request goroutine.
type Handlers struct {
	ProgressHandler ProgressHandlerFunc
	ResponseHandler ResponseHandlerFunc
	RedirectHandler RedirectHandlerFunc
	ErrorHandler    ErrorHandlerFunc
	CompleteHandler CompleteHandlerFunc
}

// withDefaults returns a copy with no-op handlers filled in. Errors are
// always logged.
func (h *Handlers) withDefaults(l logger.Logger) *Handlers {
	c := &Handlers{}
	if h != nil {
		*c = *h
	}
	if c.ProgressHandler == nil {
		c.ProgressHandler = func(id string, current, total int64) {}
	}
	if c.ResponseHandler == nil {
		c.ResponseHandler = func(id string, hop *Result) {}
	}
	if c.RedirectHandler == nil {
		c.RedirectHandler = func(id string, from, to string, statusCode int) {}
	}
	if c.CompleteHandler == nil {
		c.CompleteHandler = func(id string, res *Result) {}
	}
	errHandler := c.ErrorHandler
	c.ErrorHandler = func(id string, err error) {
		l.Error("%s: %s", id, err.Error())
		if errHandler != nil {
			errHandler(id, err)
		}
	}
	return c
}
