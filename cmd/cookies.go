package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/afero"
	"github.com/urfave/cli"

	"github.com/danielbankhead/jetta/cmd/common"
	"github.com/danielbankhead/jetta/pkg/cookiejar"
	"github.com/danielbankhead/jetta/pkg/cookielib"
)

var (
	filterFlags = []cli.Flag{
		cli.StringFlag{Name: "domain", Usage: "only cookies of this domain"},
		cli.StringFlag{Name: "path", Usage: "only cookies with this path"},
		cli.StringFlag{Name: "name", Usage: "only cookies with this name"},
	}
	listFlags = append([]cli.Flag{
		cli.StringFlag{Name: "format, f", Value: "table", Usage: "table, json or netscape"},
		cli.BoolFlag{Name: "show-values", Usage: "print cookie values in the table"},
	}, filterFlags...)
	addFlags = []cli.Flag{
		cli.BoolFlag{Name: "non-http", Usage: "set the cookie as a script would; HttpOnly cookies are refused"},
		cli.BoolFlag{Name: "insecure", Usage: "treat the URL as an insecure context even for https"},
	}
	exportFlags = []cli.Flag{
		cli.StringFlag{Name: "file", Usage: "write the snapshot to a file instead of stdout"},
	}
	importBrowserFlags = []cli.Flag{
		cli.StringFlag{Name: "domain", Usage: "only import cookies of this domain and its subdomains"},
	}
)

func cookiesCommand() cli.Command {
	sub := func(name, usage, args string, action cli.ActionFunc, flags []cli.Flag) cli.Command {
		return cli.Command{
			Name:               name,
			Usage:              usage,
			UsageText:          "cookies " + name + " " + args,
			Action:             action,
			Flags:              flags,
			OnUsageError:       common.UsageErrorCallback,
			CustomHelpTemplate: CMD_HELP_TEMPL,
		}
	}
	return cli.Command{
		Name:               "cookies",
		Aliases:            []string{"c"},
		Usage:              "maintain the persistent cookie jar",
		Description:        CookiesDescription,
		OnUsageError:       common.UsageErrorCallback,
		CustomHelpTemplate: CMD_HELP_TEMPL,
		Subcommands: []cli.Command{
			sub("list", "list stored cookies", "[--domain d] [--format table|json|netscape]", cookiesList, listFlags),
			sub("add", "store a Set-Cookie string as if received from a URL", "<url> <set-cookie>", cookiesAdd, addFlags),
			sub("delete", "delete cookies by key or filter", "[<domain> <path> <name>] [--domain d]", cookiesDelete, filterFlags),
			sub("clear-session", "delete session cookies", "", cookiesClearSession, nil),
			sub("export", "write the jar as a JSON snapshot", "[--file path]", cookiesExport, exportFlags),
			sub("import", "merge a JSON snapshot into the jar", "<file>", cookiesImport, nil),
			sub("import-browser", "import a Firefox, Chrome or cookies.txt store", "<path> [--domain d]", cookiesImportBrowser, importBrowserFlags),
		},
	}
}

// withJar opens the jar, runs fn and saves the jar when fn reports a
// change.
func withJar(ctx *cli.Context, fn func(s *session, j *cookiejar.Jar) (changed bool, err error)) error {
	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	j, err := s.openJar(nil)
	if err != nil {
		return fmt.Errorf("open cookie jar: %w", err)
	}
	defer j.Close()
	changed, err := fn(s, j)
	if err != nil {
		return err
	}
	if changed {
		return s.saveJar(j)
	}
	return nil
}

func filterFrom(ctx *cli.Context) cookiejar.Filter {
	return cookiejar.Filter{
		Domain: ctx.String("domain"),
		Path:   ctx.String("path"),
		Name:   ctx.String("name"),
	}
}

func cookiesList(ctx *cli.Context) error {
	return withJar(ctx, func(s *session, j *cookiejar.Jar) (bool, error) {
		f := filterFrom(ctx)
		switch ctx.String("format") {
		case "json":
			enc := json.NewEncoder(stdout)
			enc.SetIndent("", "  ")
			return false, enc.Encode(j.GetCookies(f))
		case "netscape":
			return false, j.WriteNetscape(stdout, f)
		case "table", "":
			return false, writeCookieTable(stdout, j.GetCookies(f), ctx.Bool("show-values"))
		}
		return false, fmt.Errorf("unknown format %q", ctx.String("format"))
	})
}

func writeCookieTable(w io.Writer, cs []*cookiejar.Cookie, values bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DOMAIN\tPATH\tNAME\tEXPIRES\tFLAGS")
	for _, c := range cs {
		expires := "session"
		if c.ExpiryTime != nil {
			expires = c.ExpiryTime.UTC().Format(time.RFC3339)
		}
		name := c.Name
		if values {
			name += "=" + c.Value
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.Domain, c.Path, name, expires, cookieFlags(c))
	}
	return tw.Flush()
}

func cookieFlags(c *cookiejar.Cookie) string {
	flags := ""
	add := func(on bool, f string) {
		if !on {
			return
		}
		if flags != "" {
			flags += ","
		}
		flags += f
	}
	add(c.HostOnly, "host-only")
	add(c.SecureOnly, "secure")
	add(c.HttpOnly, "httponly")
	add(c.SameSite != cookielib.SameSiteNone, "samesite="+strings.ToLower(c.SameSite.String()))
	if flags == "" {
		return "-"
	}
	return flags
}

func cookiesAdd(ctx *cli.Context) error {
	args := ctx.Args()
	if len(args) != 2 {
		return common.PrintErrWithCmdHelp(ctx, errors.New("expected <url> and <set-cookie>"))
	}
	return withJar(ctx, func(s *session, j *cookiejar.Jar) (bool, error) {
		reqURL := args[0]
		c, err := j.AddCookie(args[1], &cookiejar.SetOptions{
			RequestURL:  reqURL,
			IsSecureEnv: !ctx.Bool("insecure") && isSecureURL(reqURL, j),
			NonHTTPAPI:  ctx.Bool("non-http"),
		})
		if err != nil {
			return false, err
		}
		common.PrintOK(stderr, "stored %s for %s%s", c.Name, c.Domain, c.Path)
		return true, nil
	})
}

// isSecureURL reports whether the scheme of rawURL is one of the jar's
// secure protocols.
func isSecureURL(rawURL string, j *cookiejar.Jar) bool {
	scheme, _, ok := strings.Cut(rawURL, ":")
	return ok && j.RequestDefaults().SecureProtocols[strings.ToLower(scheme)]
}

func cookiesDelete(ctx *cli.Context) error {
	args := ctx.Args()
	f := filterFrom(ctx)
	switch {
	case len(args) == 3:
	case len(args) == 0 && f != (cookiejar.Filter{}):
	default:
		return common.PrintErrWithCmdHelp(ctx, errors.New("expected <domain> <path> <name> or a filter flag"))
	}
	return withJar(ctx, func(s *session, j *cookiejar.Jar) (bool, error) {
		var keys []cookiejar.Key
		if len(args) == 3 {
			keys = append(keys, cookiejar.Key{Domain: args[0], Path: args[1], Name: args[2]})
		} else {
			for _, c := range j.GetCookies(f) {
				keys = append(keys, c.Key)
			}
		}
		n := 0
		for _, k := range keys {
			if j.DeleteCookie(k) {
				n++
			}
		}
		if n == 0 {
			common.PrintWarning(stderr, "no matching cookies")
			return false, nil
		}
		common.PrintOK(stderr, "deleted %d cookies", n)
		return true, nil
	})
}

func cookiesClearSession(ctx *cli.Context) error {
	return withJar(ctx, func(s *session, j *cookiejar.Jar) (bool, error) {
		n := j.DeleteSessionCookies()
		common.PrintOK(stderr, "deleted %d session cookies", n)
		return n > 0, nil
	})
}

func cookiesExport(ctx *cli.Context) error {
	return withJar(ctx, func(s *session, j *cookiejar.Jar) (bool, error) {
		data, err := j.MarshalSnapshot()
		if err != nil {
			return false, err
		}
		if p := ctx.String("file"); p != "" {
			if err := afero.WriteFile(s.fs, p, data, 0600); err != nil {
				return false, err
			}
			common.PrintOK(stderr, "exported %d cookies to %s", j.Len(), p)
			return false, nil
		}
		_, err = stdout.Write(append(data, '\n'))
		return false, err
	})
}

func cookiesImport(ctx *cli.Context) error {
	p := ctx.Args().First()
	if p == "" {
		return common.PrintErrWithCmdHelp(ctx, errors.New("no snapshot file provided"))
	}
	return withJar(ctx, func(s *session, j *cookiejar.Jar) (bool, error) {
		data, err := afero.ReadFile(s.fs, p)
		if err != nil {
			return false, err
		}
		snap, err := cookiejar.UnmarshalSnapshot(data)
		if err != nil {
			return false, err
		}
		before := j.Len()
		if err := j.Import(snap); err != nil {
			return false, err
		}
		common.PrintOK(stderr, "imported snapshot, jar holds %d cookies (was %d)", j.Len(), before)
		return true, nil
	})
}

func cookiesImportBrowser(ctx *cli.Context) error {
	p := ctx.Args().First()
	if p == "" {
		return common.PrintErrWithCmdHelp(ctx, errors.New("no cookie store provided"))
	}
	return withJar(ctx, func(s *session, j *cookiejar.Jar) (bool, error) {
		n, err := j.ImportBrowserStore(p, ctx.String("domain"))
		if err != nil {
			return false, err
		}
		common.PrintOK(stderr, "imported %d cookies from %s", n, p)
		return n > 0, nil
	})
}
