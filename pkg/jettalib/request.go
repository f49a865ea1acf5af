package jettalib

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/danielbankhead/jetta/common"
	"github.com/danielbankhead/jetta/pkg/jerror"
	"github.com/danielbankhead/jetta/pkg/urlutil"
)

var (
	errTimedOutInitial = errors.New("no response before the time limit")
	errTimedOutChunk   = errors.New("no data before the chunk time limit")
)

// redirectDrainLimit bounds how much of a redirect body is read so the
// connection can be reused.
const redirectDrainLimit = 64 * KB

// Request performs a request and follows its redirects. The returned
// result is never nil; on failure it describes the hop that failed and
// carries the earlier hops in Redirects.
func (e *Engine) Request(ctx context.Context, rawURL string, opts ...RequestOption) (*Result, error) {
	start := time.Now()
	id := uuid.NewString()
	cfg := buildConfig(e.defaults, opts)
	h := cfg.Handlers.withDefaults(e.log)

	res, err := e.request(ctx, id, rawURL, cfg, h)
	res.Time.Total = time.Since(start)
	res.Error = err
	if err != nil {
		h.ErrorHandler(id, err)
	}
	h.CompleteHandler(id, res)
	return res, err
}

func (e *Engine) request(ctx context.Context, id, rawURL string, cfg *Config, h *Handlers) (*Result, error) {
	fail := func(err error) (*Result, error) {
		return &Result{
			ID:      id,
			URL:     urlutil.StripURLCredentials(rawURL),
			Method:  cfg.Method,
			Lengths: Lengths{Content: -1},
		}, err
	}
	if err := cfg.validate(); err != nil {
		return fail(err)
	}
	if err := e.waitJar(ctx, id, cfg); err != nil {
		return fail(err)
	}

	norm := urlutil.Normalize(rawURL, cfg.URLOptions)
	if !norm.IsValid {
		return fail(jerror.New(jerror.RequestInvalidURL, map[string]any{"url": urlutil.StripURLCredentials(rawURL)}))
	}
	if norm.URL.User != nil && isHTTPScheme(norm.Scheme) && cfg.BasicAuth == nil {
		cfg.BasicAuth = userinfoAuth(norm.URL.User)
	}

	var history []*Result
	hop := &hopState{cfg: cfg, norm: norm}
	for {
		hopStart := time.Now()
		res, next, err := e.doHop(ctx, id, h, hop, len(history))
		res.Time.RequestResponse = time.Since(hopStart)
		res.Time.Total = res.Time.RequestResponse

		if next == nil {
			res.Redirects = history
			if je, ok := jerror.As(err); ok && len(history) > 0 {
				je.With("redirects", res.RedirectURLs())
			}
			return res, err
		}

		e.log.Debug("%s: %d redirect to %s", id, res.StatusCode, urlutil.StripURLCredentials(next.norm.String()))
		h.RedirectHandler(id, res.URL, urlutil.StripCredentials(next.norm.URL).String(), res.StatusCode)
		history = append(history, res)
		hop = next
	}
}

func isHTTPScheme(scheme string) bool {
	return scheme == "http" || scheme == "https"
}

// buildRequest assembles the transport request of a hop.
func buildRequest(hop *hopState) (*TransportRequest, error) {
	cfg := hop.cfg
	header := cfg.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}

	body, length, contentType, err := cfg.requestBody()
	if err != nil {
		return nil, err
	}
	if contentType != "" && header.Get("Content-Type") == "" {
		header.Set("Content-Type", contentType)
	}
	header.Del("Content-Length")

	if !isLocalScheme(hop.norm.Scheme) {
		if header.Get("User-Agent") == "" {
			header.Set("User-Agent", common.UserAgent())
		}
		if cfg.Decompress && header.Get("Accept-Encoding") == "" {
			header.Set("Accept-Encoding", DefaultAcceptEncoding)
		}
		if cfg.BasicAuth != nil && header.Get("Authorization") == "" {
			token := base64.StdEncoding.EncodeToString([]byte(cfg.BasicAuth.User + ":" + cfg.BasicAuth.Password))
			header.Set("Authorization", "Basic "+token)
		}
	}

	cookie, err := cookieHeader(cfg, hop.norm, urlutil.StripCredentials(hop.norm.URL).String())
	if err != nil {
		return nil, err
	}
	if cookie != "" {
		header.Set("Cookie", cookie)
	} else {
		header.Del("Cookie")
	}

	u := *hop.norm.URL
	u.Fragment, u.RawFragment = "", ""
	if isHTTPScheme(hop.norm.Scheme) {
		u.User = nil
	}
	return &TransportRequest{
		URL:           &u,
		Method:        cfg.Method,
		Header:        header,
		Body:          body,
		ContentLength: length,
		SocketPath:    cfg.SocketPath,
	}, nil
}

// roundTrip dispatches a hop under the initial time limit.
func (e *Engine) roundTrip(ctx context.Context, hopCtx context.Context, cancel context.CancelCauseFunc, hop *hopState, req *TransportRequest) (*TransportResponse, bool, error) {
	scheme := hop.norm.Scheme
	t, ok := e.router.Lookup(scheme)
	local := !ok && isLocalScheme(scheme)
	if !ok && !local {
		return nil, false, jerror.New(jerror.RequestUnsupportedProtocol, map[string]any{
			"protocol":  scheme,
			"supported": strings.Join(e.SupportedSchemes(), ", "),
		})
	}

	if local {
		var (
			resp *TransportResponse
			err  error
		)
		switch scheme {
		case "data":
			resp, err = dataURLResponse(hop.norm.URL, hop.cfg.DataLimit)
		default:
			resp, err = fileURLResponse(e.fs, hop.norm.URL, hop.cfg.DataLimit)
		}
		return resp, true, err
	}

	initial := time.AfterFunc(hop.cfg.TimeLimit, func() { cancel(errTimedOutInitial) })
	resp, err := t.RoundTrip(hopCtx, req)
	initial.Stop()
	if err == nil && errors.Is(context.Cause(hopCtx), errTimedOutInitial) {
		resp.Body.Close()
		err = context.Cause(hopCtx)
	}
	if err != nil {
		return nil, false, transportFailure(ctx, hopCtx, err)
	}
	if resp.Body == nil {
		resp.Body = http.NoBody
	}
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	return resp, false, nil
}

// transportFailure maps an error raised before the response head.
func transportFailure(ctx, hopCtx context.Context, err error) error {
	if _, ok := jerror.As(err); ok {
		return err
	}
	switch cause := context.Cause(hopCtx); {
	case errors.Is(cause, errTimedOutInitial):
		return jerror.Transient(jerror.RequestTimedOutInitial, cause, nil)
	case ctx.Err() != nil:
		return jerror.Wrap(jerror.RequestAborted, ctx.Err(), nil)
	}
	var te *TransportError
	if errors.As(err, &te) && te.IsTransient() {
		return jerror.Transient(jerror.RequestError, err, nil)
	}
	return jerror.Wrap(jerror.RequestError, err, nil)
}

// bodyFailure maps an error raised while reading the body.
func bodyFailure(ctx, hopCtx context.Context, err error, local bool) error {
	if _, ok := jerror.As(err); ok {
		return err
	}
	switch cause := context.Cause(hopCtx); {
	case errors.Is(cause, errTimedOutChunk):
		return jerror.Transient(jerror.RequestResponseTimedOutDuring, cause, nil)
	case ctx.Err() != nil:
		return jerror.Wrap(jerror.RequestAborted, ctx.Err(), nil)
	}
	if local {
		return jerror.Wrap(jerror.RequestFileReadError, err, nil)
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return jerror.Transient(jerror.RequestServerAborted, err, nil)
	}
	if ClassifyError(err) != ErrCategoryFatal {
		return jerror.Transient(jerror.RequestResponseError, err, nil)
	}
	return jerror.Wrap(jerror.RequestResponseError, err, nil)
}

// bodiless reports whether a response never carries a body, whatever its
// Content-Length says.
func bodiless(method string, status int) bool {
	return method == http.MethodHead || status < 200 || status == http.StatusNoContent || status == http.StatusNotModified
}

// doHop runs one hop. next is non-nil when the hop redirected and the
// redirect should be followed.
func (e *Engine) doHop(ctx context.Context, id string, h *Handlers, hop *hopState, redirects int) (res *Result, next *hopState, err error) {
	cfg := hop.cfg
	res = &Result{
		ID:      id,
		URL:     urlutil.StripCredentials(hop.norm.URL).String(),
		Method:  cfg.Method,
		Lengths: Lengths{Content: -1},
	}

	req, err := buildRequest(hop)
	if err != nil {
		return res, nil, err
	}

	hopCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	e.log.Debug("%s: %s %s", id, cfg.Method, res.URL)
	dispatched := time.Now()
	resp, local, err := e.roundTrip(ctx, hopCtx, cancel, hop, req)
	res.Time.Request = time.Since(dispatched)
	if err != nil {
		return res, nil, err
	}
	body := &onceCloser{ReadCloser: resp.Body}
	defer body.Close()
	stopClose := context.AfterFunc(hopCtx, func() { body.Close() })
	defer stopClose()

	res.StatusCode = resp.StatusCode
	res.ResponseHeaders = resp.Header
	res.Lengths.Content = resp.ContentLength

	if err := storeCookies(cfg, hop.norm, res.URL, resp.Header); err != nil {
		return res, nil, err
	}
	h.ResponseHandler(id, res)

	if location := resp.Header.Get("Location"); isRedirect(resp.StatusCode, location) {
		if redirects >= cfg.RedirectLimit {
			return res, nil, jerror.New(jerror.RequestTooManyRedirects, map[string]any{"redirectLimit": cfg.RedirectLimit})
		}
		n, err := nextHop(hop, resp.StatusCode, location)
		if err != nil {
			return res, nil, err
		}
		drainTimer := time.AfterFunc(cfg.ChunkTimeLimit, func() { cancel(errTimedOutChunk) })
		drained, _ := io.CopyN(io.Discard, body, redirectDrainLimit)
		drainTimer.Stop()
		res.Lengths.Response = drained
		return res, n, nil
	}

	if !bodiless(cfg.Method, resp.StatusCode) && resp.ContentLength > cfg.DataLimit {
		return res, nil, jerror.New(jerror.RequestExceededDataLimitContentLen, map[string]any{
			"dataLimit":     cfg.DataLimit,
			"contentLength": resp.ContentLength,
		})
	}

	err = e.readBody(ctx, hopCtx, cancel, id, h, hop, res, body, resp.ContentLength, req.Header.Get("Accept-Encoding"), local)
	if err != nil {
		return res, nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return res, nil, jerror.New(jerror.RequestBadResponseCode, map[string]any{
			"statusCode": resp.StatusCode,
			"url":        res.URL,
		})
	}
	if cfg.Checksum != nil {
		if err := cfg.Checksum.verify(res.Checksum); err != nil {
			return res, nil, err
		}
	}
	if cfg.StoreData && len(res.Data) > 0 && isJSONMediaType(resp.Header.Get("Content-Type")) {
		if !gjson.ValidBytes(res.Data) {
			return res, nil, jerror.New(jerror.RequestJSONParseError, map[string]any{"url": res.URL})
		}
		res.JSON = gjson.ParseBytes(res.Data)
	}
	return res, nil, nil
}

// readBody streams the final hop through decoders into the sinks. The
// output file is closed before it returns.
func (e *Engine) readBody(ctx, hopCtx context.Context, cancel context.CancelCauseFunc, id string, h *Handlers, hop *hopState, res *Result, body io.Reader, contentLength int64, acceptEncoding string, local bool) (err error) {
	cfg := hop.cfg

	encodings := parseEncodings(res.ResponseHeaders.Get("Content-Encoding"))
	accepted := acceptedEncodings(acceptEncoding)
	for _, enc := range encodings {
		if !encodingAllowed(accepted, enc) {
			return jerror.New(jerror.RequestEncodingNotAllowed, map[string]any{"encoding": enc})
		}
	}
	decode := cfg.Decompress && len(encodings) > 0 && decodable(encodings)
	if len(encodings) > 0 && !decode {
		res.ContentEncoding = res.ResponseHeaders.Get("Content-Encoding")
		if cfg.Checksum != nil {
			return jerror.New(jerror.RequestChecksumOnEncodedData, map[string]any{"encoding": res.ContentEncoding})
		}
	}

	chunkTimer := time.AfterFunc(cfg.ChunkTimeLimit, func() { cancel(errTimedOutChunk) })
	defer chunkTimer.Stop()

	raw := &rawBody{
		r:             newRateLimitedReader(hopCtx, body, cfg.RateLimit),
		dataLimit:     cfg.DataLimit,
		contentLength: contentLength,
		onChunk: func(total int64) {
			chunkTimer.Reset(cfg.ChunkTimeLimit)
			h.ProgressHandler(id, total, contentLength)
		},
	}

	out := &sink{res: res, handler: cfg.ResponseDataHandler}
	if decode {
		out.limit = cfg.DecompressedDataLimit
	}
	if cfg.Checksum != nil {
		out.hash = cfg.Checksum.newHash()
	}
	if cfg.StoreData {
		out.data = new(bytes.Buffer)
	}
	if cfg.OutputFile != "" {
		f, ferr := e.fs.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
		if ferr != nil {
			return jerror.Wrap(jerror.RequestWriteFileStreamError, ferr, map[string]any{"path": cfg.OutputFile})
		}
		out.file = f
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = jerror.Wrap(jerror.RequestWriteFileStreamError, cerr, map[string]any{"path": cfg.OutputFile})
			}
		}()
	}

	var src io.Reader = raw
	if decode {
		decoded, closers, derr := decodeChain(raw, encodings)
		if derr != nil {
			if raw.err != nil {
				return bodyFailure(ctx, hopCtx, raw.err, local)
			}
			return jerror.Wrap(jerror.RequestDecompressFailed, derr, map[string]any{"encoding": strings.Join(encodings, ", ")})
		}
		defer closeAll(closers)
		src = decoded
	}

	buf := make([]byte, copyBufferSize)
	_, cerr := io.CopyBuffer(out, src, buf)

	res.Lengths.Response = raw.n
	if decode {
		res.Lengths.Decompressed = res.Lengths.Data
	}
	if out.data != nil {
		res.Data = out.data.Bytes()
	}
	if out.hash != nil {
		res.Checksum = cfg.Checksum.encode(out.hash.Sum(nil))
	}

	switch {
	case raw.err != nil:
		return bodyFailure(ctx, hopCtx, raw.err, local)
	case out.err != nil:
		return out.err
	case cerr != nil && decode:
		return jerror.Wrap(jerror.RequestDecompressFailed, cerr, map[string]any{"encoding": strings.Join(encodings, ", ")})
	case cerr != nil:
		return bodyFailure(ctx, hopCtx, cerr, local)
	}
	return nil
}
