package jettalib

import (
	"context"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danielbankhead/jetta/pkg/jerror"
	"github.com/danielbankhead/jetta/pkg/publicsuffix"
)

func TestRequestAsyncDeliversOnce(t *testing.T) {
	e, _ := newFakeEngine(t, func(req *TransportRequest) *TransportResponse {
		return textResponse(200, "async")
	})

	const n = 20
	var (
		wg    sync.WaitGroup
		calls atomic.Int32
	)
	wg.Add(n)
	for i := 0; i < n; i++ {
		e.RequestAsync(context.Background(), "https://a.example/", func(res *Result, err error) {
			defer wg.Done()
			calls.Add(1)
			if err != nil || string(res.Data) != "async" {
				t.Errorf("res = %v, err = %v", res, err)
			}
		})
	}
	wg.Wait()
	if calls.Load() != n {
		t.Errorf("callbacks = %d, want %d", calls.Load(), n)
	}
}

func TestRequestAsyncRecoversPanics(t *testing.T) {
	e, _ := newFakeEngine(t, func(req *TransportRequest) *TransportResponse {
		return textResponse(200, "boom")
	})

	var calls atomic.Int32
	done := make(chan error, 2)
	e.RequestAsync(context.Background(), "https://a.example/", func(res *Result, err error) {
		calls.Add(1)
		done <- err
	}, WithResponseDataHandler(func(chunk []byte, res *Result) {
		panic("handler exploded")
	}))

	select {
	case err := <-done:
		wantCode(t, err, jerror.RequestError)
		je, _ := jerror.As(err)
		if je.Detail("panic") != "handler exploded" {
			t.Errorf("panic detail = %v", je.Detail("panic"))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("callback never ran")
	}
	e.Close()
	if calls.Load() != 1 {
		t.Errorf("callbacks = %d, want 1", calls.Load())
	}
}

func TestFuture(t *testing.T) {
	e, _ := newFakeEngine(t, func(req *TransportRequest) *TransportResponse {
		return textResponse(200, req.URL.Path)
	})
	a := e.Go(context.Background(), "https://a.example/one")
	b := e.Go(context.Background(), "https://a.example/two")

	<-b.Done()
	resB, errB := b.Wait()
	resA, errA := a.Wait()
	if errA != nil || errB != nil {
		t.Fatalf("errors: %v, %v", errA, errB)
	}
	if string(resA.Data) != "/one" || string(resB.Data) != "/two" {
		t.Errorf("got %q and %q", resA.Data, resB.Data)
	}
}

func TestCloseWaitsForAsync(t *testing.T) {
	release := make(chan struct{})
	e := NewEngine(WithTransport("https", TransportFunc(func(ctx context.Context, req *TransportRequest) (*TransportResponse, error) {
		<-release
		return textResponse(200, "late"), nil
	})))

	var finished atomic.Bool
	e.RequestAsync(context.Background(), "https://a.example/", func(res *Result, err error) {
		finished.Store(true)
	})
	closed := make(chan struct{})
	go func() {
		e.Close()
		close(closed)
	}()
	select {
	case <-closed:
		t.Fatal("Close returned before the request finished")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	<-closed
	if !finished.Load() {
		t.Error("callback did not run before Close returned")
	}
}

func TestFetchRetries(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/missing":
			hits.Add(1)
			w.WriteHeader(http.StatusNotFound)
		case hits.Add(1) < 3:
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			io.WriteString(w, "// list\ncom\n")
		}
	})
	e := NewEngine(WithRetryConfig(RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}))
	defer e.Close()

	body, err := e.Fetch(context.Background(), srv.URL+"/list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != "// list\ncom\n" {
		t.Errorf("body = %q", body)
	}
	if hits.Load() != 3 {
		t.Errorf("hits = %d, want 3", hits.Load())
	}

	hits.Store(0)
	_, err = e.Fetch(context.Background(), srv.URL+"/missing")
	wantCode(t, err, jerror.RequestBadResponseCode)
	if hits.Load() != 1 {
		t.Errorf("404 must not be retried, hits = %d", hits.Load())
	}
}

func TestFetchFeedsPublicSuffixList(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "com\n*.ck\n!www.ck\n")
	})
	e := NewEngine()
	defer e.Close()

	var fetcher publicsuffix.Fetcher = e
	l := publicsuffix.New(publicsuffix.Options{Sources: []string{srv.URL}, Fetcher: fetcher})
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("list not ready: %v", err)
	}
	if ok, _ := l.IsPublicSuffix("foo.ck"); !ok {
		t.Error("foo.ck should be a public suffix")
	}
	if ok, _ := l.IsPublicSuffix("www.ck"); ok {
		t.Error("www.ck is an exception")
	}
}
