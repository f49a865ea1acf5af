package jettalib

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/danielbankhead/jetta/pkg/jerror"
	"github.com/danielbankhead/jetta/pkg/logger"
	"github.com/danielbankhead/jetta/pkg/urlutil"
)

// safeGo runs fn in a goroutine with panic recovery.
// If wg is non-nil, it's decremented on completion (normal or panic).
// Panics are logged with stack traces and passed to onPanic.
func safeGo(l logger.Logger, wg *sync.WaitGroup, name string, onPanic func(r any), fn func()) {
	go func() {
		if wg != nil {
			defer wg.Done()
		}
		defer func() {
			if r := recover(); r != nil {
				l.Error("PANIC [%s]: %v\n%s", name, r, debug.Stack())
				if onPanic != nil {
					onPanic(r)
				}
			}
		}()
		fn()
	}()
}

// Callback receives the outcome of RequestAsync.
type Callback func(res *Result, err error)

// RequestAsync performs the request in a new goroutine. cb is called
// exactly once, also when the request panics.
func (e *Engine) RequestAsync(ctx context.Context, rawURL string, cb Callback, opts ...RequestOption) {
	var once sync.Once
	deliver := func(res *Result, err error) {
		once.Do(func() {
			if cb != nil {
				cb(res, err)
			}
		})
	}

	name := "request " + urlutil.StripURLCredentials(rawURL)
	e.wg.Add(1)
	safeGo(e.log, &e.wg, name, func(r any) {
		err := jerror.New(jerror.RequestError, map[string]any{"panic": fmt.Sprint(r)})
		deliver(&Result{URL: urlutil.StripURLCredentials(rawURL), Lengths: Lengths{Content: -1}, Error: err}, err)
	}, func() {
		deliver(e.Request(ctx, rawURL, opts...))
	})
}

// Future is the pending outcome of Go.
type Future struct {
	done chan struct{}
	res  *Result
	err  error
}

// Go starts the request and returns immediately.
func (e *Engine) Go(ctx context.Context, rawURL string, opts ...RequestOption) *Future {
	f := &Future{done: make(chan struct{})}
	e.RequestAsync(ctx, rawURL, func(res *Result, err error) {
		f.res, f.err = res, err
		close(f.done)
	}, opts...)
	return f
}

// Done is closed when the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks for the result.
func (f *Future) Wait() (*Result, error) {
	<-f.done
	return f.res, f.err
}

// Fetch GETs rawURL and returns the body, retrying transient failures
// with exponential backoff. It implements publicsuffix.Fetcher.
func (e *Engine) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	state := &RetryState{}
	for {
		state.Attempts++
		state.LastAttempt = time.Now()
		res, err := e.Request(ctx, rawURL,
			WithMethod("GET"),
			WithStoreData(true),
			WithOutputFile(""),
			WithResponseDataHandler(nil),
		)
		if err == nil {
			return res.Data, nil
		}
		state.LastError = err
		if !e.retry.ShouldRetry(state, err) {
			return nil, err
		}
		category := ClassifyError(err)
		e.log.Warning("fetch %s failed (attempt %d): %v", urlutil.StripURLCredentials(rawURL), state.Attempts, err)
		if werr := e.retry.WaitForRetry(ctx, state, category); werr != nil {
			return nil, err
		}
	}
}
