package cookies

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/danielbankhead/jetta/pkg/logger"
)

const (
	netscapeHeader   = "# Netscape HTTP Cookie File"
	httpOnlyLinePref = "#HttpOnly_"
)

// ParseNetscape reads a Netscape cookies.txt stream. Lines starting with #
// are comments, except #HttpOnly_ which marks the cookie HttpOnly.
// Malformed lines are skipped with a warning. An expiry of 0 denotes a
// session cookie; cookies expired at now are dropped.
func ParseNetscape(r io.Reader, domain string, now time.Time, l logger.Logger) ([]Cookie, error) {
	l = logger.OrNop(l)
	var out []Cookie
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		httpOnly := false
		if strings.HasPrefix(line, httpOnlyLinePref) {
			httpOnly = true
			line = line[len(httpOnlyLinePref):]
		} else if strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			l.Warning("cookies: skipping malformed line %d", lineNo)
			continue
		}
		expiry, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			l.Warning("cookies: skipping line %d with invalid expiry", lineNo)
			continue
		}
		c := Cookie{
			Name:     fields[5],
			Value:    fields[6],
			Domain:   fields[0],
			Path:     fields[2],
			Secure:   strings.EqualFold(fields[3], "TRUE"),
			HttpOnly: httpOnly,
		}
		// the include-subdomains flag wins over the domain spelling
		if strings.EqualFold(fields[1], "TRUE") && c.HostOnly() {
			c.Domain = "." + c.Domain
		}
		if !matchesDomain(c.Domain, domain) {
			continue
		}
		if expiry > 0 {
			c.Expiry = time.Unix(expiry, 0)
			if c.Expiry.Before(now) {
				continue
			}
		}
		out = append(out, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading Netscape cookie file: %w", err)
	}
	return out, nil
}

// WriteNetscape writes cookies in the Netscape format read by curl and
// wget.
func WriteNetscape(w io.Writer, cookies []Cookie) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, netscapeHeader)
	for _, c := range cookies {
		prefix := ""
		if c.HttpOnly {
			prefix = httpOnlyLinePref
		}
		var expiry int64
		if !c.Session() {
			expiry = c.Expiry.Unix()
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		fmt.Fprintf(bw, "%s%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			prefix, c.Domain, boolField(!c.HostOnly()), path, boolField(c.Secure), expiry, c.Name, c.Value)
	}
	return bw.Flush()
}

func boolField(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}
