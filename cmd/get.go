package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path"
	"sort"
	"strings"

	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v8"

	"github.com/danielbankhead/jetta/cmd/common"
	"github.com/danielbankhead/jetta/pkg/cookiejar"
	"github.com/danielbankhead/jetta/pkg/jettalib"
	"github.com/danielbankhead/jetta/pkg/publicsuffix"
)

var getFlags = []cli.Flag{
	cli.StringFlag{Name: "method, X", Usage: "request method (default GET, or POST with a body)"},
	cli.StringSliceFlag{Name: "header, H", Usage: "add a request header as 'Key: Value'"},
	cli.StringFlag{Name: "data, d", Usage: "raw request body, or @path to read it from a file"},
	cli.StringFlag{Name: "data-stream", Usage: "stream the request body from a file with chunked encoding"},
	cli.StringSliceFlag{Name: "form, F", Usage: "add an urlencoded form field as key=value"},
	cli.StringFlag{Name: "json", Usage: "send a JSON document as the request body"},
	cli.StringFlag{Name: "user, u", Usage: "basic auth credentials as user:password"},
	cli.StringFlag{Name: "unix-socket", Usage: "connect to a Unix socket instead of the URL host"},
	cli.StringSliceFlag{Name: "cookie, b", Usage: "send a static cookie as name=value"},
	cli.BoolFlag{Name: "no-jar", Usage: "neither send nor store cookies from the persistent jar"},
	cli.BoolFlag{Name: "no-save-cookies", Usage: "send jar cookies but do not persist new ones"},
	cli.BoolFlag{Name: "live-suffix-list", Usage: "use the downloaded public suffix list for the jar"},
	cli.StringFlag{Name: "top-level-url", Usage: "site the request is made for, used for SameSite decisions"},
	cli.BoolFlag{Name: "navigation", Usage: "treat the request as a top level navigation"},
	cli.DurationFlag{Name: "time-limit, t", Usage: "limit for the response head of each hop"},
	cli.DurationFlag{Name: "chunk-time-limit", Usage: "limit between body chunks (defaults to --time-limit)"},
	cli.StringFlag{Name: "data-limit", Usage: "maximum raw body size, e.g. 10MB"},
	cli.StringFlag{Name: "decompressed-data-limit", Usage: "maximum decoded body size"},
	cli.IntFlag{Name: "redirect-limit", Value: -1, Usage: "maximum number of redirects to follow"},
	cli.StringSliceFlag{Name: "redirect-header-policy", Usage: "carry a header across redirects as Header=never|always|samesite"},
	cli.BoolFlag{Name: "no-referer", Usage: "do not set Referer when following redirects"},
	cli.StringFlag{Name: "checksum", Usage: "hash the body with one of " + strings.Join(jettalib.ChecksumAlgorithms(), ", ")},
	cli.StringFlag{Name: "checksum-digest", Value: "hex", Usage: "checksum encoding, hex or base64"},
	cli.StringFlag{Name: "expect-checksum", Usage: "fail unless the body checksum matches"},
	cli.BoolFlag{Name: "no-decompress", Usage: "do not request or decode compressed bodies"},
	cli.StringFlag{Name: "rate-limit", Usage: "throttle the body, e.g. 512KB"},
	cli.StringFlag{Name: "output, o", Usage: "save the body to a file instead of printing it"},
	cli.StringFlag{Name: "output-dir", Usage: "directory for --input-file downloads"},
	cli.StringFlag{Name: "input-file, i", Usage: "read URLs (and optional output names) from a file"},
	cli.IntFlag{Name: "parallel, p", Value: 4, Usage: "concurrent requests with --input-file"},
	cli.StringFlag{Name: "json-path", Usage: "print the value at a gjson path of a JSON body"},
	cli.BoolFlag{Name: "result", Usage: "print the request result as JSON instead of the body"},
	cli.BoolFlag{Name: "include", Usage: "print the final status and headers to stderr"},
	cli.IntFlag{Name: "retry", Usage: "retry transient failures this many times"},
	cli.BoolFlag{Name: "progress", Usage: "show a progress bar on stderr"},
}

// getRequest is the parsed form of the get flags.
type getRequest struct {
	opts     []jettalib.RequestOption
	output   string
	jsonPath string
	result   bool
	include  bool
	progress bool
	retries  int
	closers  []io.Closer
}

func (g *getRequest) Close() error {
	var errs []error
	for _, c := range g.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func parseGetFlags(s *session, ctx *cli.Context) (*getRequest, error) {
	g := &getRequest{
		output:   ctx.String("output"),
		jsonPath: ctx.String("json-path"),
		result:   ctx.Bool("result"),
		include:  ctx.Bool("include"),
		progress: ctx.Bool("progress"),
		retries:  ctx.Int("retry"),
	}
	add := func(o ...jettalib.RequestOption) { g.opts = append(g.opts, o...) }

	if m := ctx.String("method"); m != "" {
		add(jettalib.WithMethod(strings.ToUpper(m)))
	}
	h, err := ParseHeaderFlags(ctx.StringSlice("header"))
	if err != nil {
		return nil, err
	}
	add(jettalib.WithHeaders(h))

	if d := ctx.String("data"); d != "" {
		body := []byte(d)
		if strings.HasPrefix(d, "@") {
			f, err := s.fs.Open(d[1:])
			if err != nil {
				return nil, err
			}
			body, err = io.ReadAll(f)
			f.Close()
			if err != nil {
				return nil, err
			}
		}
		add(jettalib.WithBody(body))
	}
	if p := ctx.String("data-stream"); p != "" {
		f, err := s.fs.Open(p)
		if err != nil {
			return nil, err
		}
		g.closers = append(g.closers, f)
		add(jettalib.WithBodyStream(f))
	}
	form, err := ParseFormFlags(ctx.StringSlice("form"))
	if err != nil {
		return nil, err
	}
	if form != nil {
		add(jettalib.WithForm(form))
	}
	if j := ctx.String("json"); j != "" {
		if !json.Valid([]byte(j)) {
			return nil, fmt.Errorf("--json: invalid JSON document")
		}
		add(jettalib.WithJSON(json.RawMessage(j)))
	}
	if u := ctx.String("user"); u != "" {
		user, pass, _ := strings.Cut(u, ":")
		add(jettalib.WithBasicAuth(user, pass))
	}
	if p := ctx.String("unix-socket"); p != "" {
		add(jettalib.WithSocketPath(p))
	}
	cookies, err := ParseCookieFlags(ctx.StringSlice("cookie"))
	if err != nil {
		return nil, err
	}
	if cookies != nil {
		add(jettalib.WithCookies(cookies))
	}
	if u := ctx.String("top-level-url"); u != "" {
		add(jettalib.WithTopLevelURL(u))
	}
	if ctx.Bool("navigation") {
		add(jettalib.WithTopLevelBrowsingContext(true))
	}

	if ctx.IsSet("time-limit") {
		add(jettalib.WithTimeLimit(ctx.Duration("time-limit")))
	}
	if ctx.IsSet("chunk-time-limit") {
		add(jettalib.WithChunkTimeLimit(ctx.Duration("chunk-time-limit")))
	}
	for _, sz := range []struct {
		flag string
		opt  func(int64) jettalib.RequestOption
	}{
		{"data-limit", jettalib.WithDataLimit},
		{"decompressed-data-limit", jettalib.WithDecompressedDataLimit},
		{"rate-limit", jettalib.WithRateLimit},
	} {
		n, ok, err := parseSizeFlag(sz.flag, ctx.String(sz.flag))
		if err != nil {
			return nil, err
		}
		if ok {
			add(sz.opt(n))
		}
	}
	if n := ctx.Int("redirect-limit"); n >= 0 {
		add(jettalib.WithRedirectLimit(n))
	}
	policies, err := ParseRedirectPolicyFlags(ctx.StringSlice("redirect-header-policy"))
	if err != nil {
		return nil, err
	}
	for k, p := range policies {
		add(jettalib.WithRedirectHeaderPolicy(k, p))
	}
	if ctx.Bool("no-referer") {
		add(jettalib.WithRefererUpdates(false))
	}
	if alg := ctx.String("checksum"); alg != "" || ctx.String("expect-checksum") != "" {
		if alg == "" {
			alg = "sha256"
		}
		add(jettalib.WithChecksum(jettalib.Checksum{
			Algorithm: alg,
			Digest:    ctx.String("checksum-digest"),
			Expected:  ctx.String("expect-checksum"),
		}))
	}
	if ctx.Bool("no-decompress") {
		add(jettalib.WithDecompression(false))
	}
	return g, nil
}

// sinkOptions route the final body: to a file, to stdout as it arrives,
// or into the result for --json-path and --result.
func (g *getRequest) sinkOptions(out io.Writer, written *int64) []jettalib.RequestOption {
	switch {
	case g.output != "":
		return []jettalib.RequestOption{jettalib.WithOutputFile(g.output), jettalib.WithStoreData(g.result)}
	case g.jsonPath != "" || g.result:
		return []jettalib.RequestOption{jettalib.WithStoreData(true)}
	}
	return []jettalib.RequestOption{
		jettalib.WithStoreData(false),
		jettalib.WithResponseDataHandler(func(chunk []byte, _ *jettalib.Result) {
			n, _ := out.Write(chunk)
			*written += int64(n)
		}),
	}
}

func get(ctx *cli.Context) (err error) {
	rawURL := ctx.Args().First()
	if ctx.String("input-file") == "" {
		if rawURL == "" {
			return common.PrintErrWithCmdHelp(ctx, errors.New("no url provided"))
		} else if rawURL == "help" {
			return cli.ShowCommandHelp(ctx, ctx.Command.Name)
		}
	}

	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	g, err := parseGetFlags(s, ctx)
	if err != nil {
		return common.PrintErrWithCmdHelp(ctx, err)
	}
	defer g.Close()

	e, err := s.newEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	rctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var jar *cookiejar.Jar
	if !ctx.Bool("no-jar") {
		var checker publicsuffix.Checker
		if ctx.Bool("live-suffix-list") {
			list := s.suffixList(e)
			defer list.Close()
			checker = list
		}
		jar, err = s.openJar(checker)
		if err != nil {
			return fmt.Errorf("open cookie jar: %w", err)
		}
		defer jar.Close()
		g.opts = append(g.opts, jettalib.WithCookieJar(jar))
		if !ctx.Bool("no-save-cookies") {
			defer func() {
				if serr := s.saveJar(jar); serr != nil {
					common.PrintRuntimeErr(ctx, "get", "save-jar", serr)
				}
			}()
		}
	}

	if f := ctx.String("input-file"); f != "" {
		return getBatch(rctx, s, e, g, f, ctx.String("output-dir"), ctx.Int("parallel"))
	}
	return getOne(rctx, s, e, g, strings.TrimSpace(rawURL))
}

func getOne(ctx context.Context, s *session, e *jettalib.Engine, g *getRequest, rawURL string) error {
	var written int64
	opts := append(append([]jettalib.RequestOption(nil), g.opts...), g.sinkOptions(stdout, &written)...)

	var p *mpb.Progress
	if g.progress {
		p = mpb.New(mpb.WithOutput(stderr))
		opts = append(opts, jettalib.WithHandlers(progressHandlers(p)))
	}

	retry := jettalib.DefaultRetryConfig()
	retry.MaxRetries = g.retries
	state := &jettalib.RetryState{}
	var (
		res *jettalib.Result
		err error
	)
	for {
		state.Attempts++
		res, err = e.Request(ctx, rawURL, opts...)
		// a partly printed body cannot be taken back
		if err == nil || written > 0 || !retry.ShouldRetry(state, err) {
			break
		}
		state.LastError = err
		category := jettalib.ClassifyError(err)
		s.log.Warning("get: attempt %d failed, retrying: %v", state.Attempts, err)
		if werr := retry.WaitForRetry(ctx, state, category); werr != nil {
			break
		}
	}
	if p != nil {
		p.Wait()
	}
	if err != nil {
		return err
	}
	return printResult(res, g)
}

func printResult(res *jettalib.Result, g *getRequest) error {
	if g.include {
		fmt.Fprintf(stderr, "%d %s\n", res.StatusCode, res.URL)
		keys := make([]string, 0, len(res.ResponseHeaders))
		for k := range res.ResponseHeaders {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			for _, v := range res.ResponseHeaders[k] {
				fmt.Fprintf(stderr, "%s: %s\n", k, v)
			}
		}
		fmt.Fprintln(stderr)
	}
	switch {
	case g.result:
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case g.jsonPath != "":
		v := res.Get(g.jsonPath)
		if !v.Exists() {
			return fmt.Errorf("--json-path %q: no value", g.jsonPath)
		}
		fmt.Fprintln(stdout, v.String())
	case g.output != "":
		common.PrintOK(stderr, "saved %s (%d bytes)", g.output, res.Lengths.Data)
	}
	if res.Checksum != "" {
		fmt.Fprintf(stderr, "checksum: %s\n", res.Checksum)
	}
	return nil
}

// progressHandlers drive one bar per hop.
func progressHandlers(p *mpb.Progress) *jettalib.Handlers {
	var bar *mpb.Bar
	finish := func() {
		if bar != nil {
			bar.SetTotal(-1, true)
			bar = nil
		}
	}
	return &jettalib.Handlers{
		ResponseHandler: func(id string, hop *jettalib.Result) {
			finish()
			bar = common.InitBar(p, "", hop.Lengths.Content)
		},
		ProgressHandler: func(id string, current, total int64) {
			if bar == nil {
				return
			}
			if total > 0 {
				bar.SetTotal(total, false)
			}
			bar.SetCurrent(current)
		},
		CompleteHandler: func(id string, res *jettalib.Result) { finish() },
		ErrorHandler: func(id string, err error) {
			if bar != nil {
				bar.Abort(false)
				bar = nil
			}
		},
	}
}

// outputName derives a file name from the last path segment of rawURL.
func outputName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "index.html"
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "index.html"
	}
	return name
}
