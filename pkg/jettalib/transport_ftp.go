package jettalib

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
)

// FTPOptions configure the ftp and ftps transport.
type FTPOptions struct {
	// DialTimeout defaults to 30 seconds.
	DialTimeout time.Duration
	// TLSConfig is used for ftps. ServerName is filled in per host.
	TLSConfig *tls.Config
}

// FTPTransport downloads single files over FTP, with explicit TLS for ftps.
// Only GET and HEAD are supported. Responses are synthesized with status
// 200 and the server reported size as Content-Length.
type FTPTransport struct {
	opts FTPOptions
}

func NewFTPTransport(opts *FTPOptions) *FTPTransport {
	t := &FTPTransport{}
	if opts != nil {
		t.opts = *opts
	}
	if t.opts.DialTimeout <= 0 {
		t.opts.DialTimeout = 30 * time.Second
	}
	return t
}

func (t *FTPTransport) connect(ctx context.Context, req *TransportRequest) (*ftp.ServerConn, error) {
	scheme := strings.ToLower(req.URL.Scheme)
	host := req.URL.Host
	if req.URL.Port() == "" {
		host = net.JoinHostPort(req.URL.Hostname(), "21")
	}

	dialOpts := []ftp.DialOption{
		ftp.DialWithTimeout(t.opts.DialTimeout),
		ftp.DialWithContext(ctx),
	}
	if scheme == "ftps" {
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
		if t.opts.TLSConfig != nil {
			tlsConfig = t.opts.TLSConfig.Clone()
		}
		if tlsConfig.ServerName == "" {
			tlsConfig.ServerName = req.URL.Hostname()
		}
		dialOpts = append(dialOpts, ftp.DialWithExplicitTLS(tlsConfig))
	}

	conn, err := ftp.Dial(host, dialOpts...)
	if err != nil {
		return nil, classifyFTPError(scheme, "connect", err)
	}

	user, password := "anonymous", "anonymous"
	if req.URL.User != nil {
		user = req.URL.User.Username()
		if p, ok := req.URL.User.Password(); ok {
			password = p
		}
	}
	if err := conn.Login(user, password); err != nil {
		conn.Quit()
		return nil, classifyFTPError(scheme, "login", err)
	}
	if err := conn.Type(ftp.TransferTypeBinary); err != nil {
		conn.Quit()
		return nil, classifyFTPError(scheme, "type", err)
	}
	return conn, nil
}

func (t *FTPTransport) RoundTrip(ctx context.Context, req *TransportRequest) (*TransportResponse, error) {
	scheme := strings.ToLower(req.URL.Scheme)
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return nil, NewPermanentError(scheme, "method", fmt.Errorf("method %s is not supported", req.Method))
	}
	remotePath := req.URL.Path
	if remotePath == "" || strings.HasSuffix(remotePath, "/") {
		return nil, NewPermanentError(scheme, "path", errors.New("a file path is required"))
	}

	conn, err := t.connect(ctx, req)
	if err != nil {
		return nil, err
	}

	header := make(http.Header)
	size, err := conn.FileSize(remotePath)
	if err != nil {
		// SIZE is optional; an absent file surfaces on RETR
		size = -1
	} else {
		header.Set("Content-Length", strconv.FormatInt(size, 10))
	}

	if req.Method == http.MethodHead {
		conn.Quit()
		return &TransportResponse{StatusCode: http.StatusOK, Header: header, Body: http.NoBody, ContentLength: size}, nil
	}

	resp, err := conn.Retr(remotePath)
	if err != nil {
		conn.Quit()
		return nil, classifyFTPError(scheme, "retr", err)
	}
	return &TransportResponse{
		StatusCode: http.StatusOK,
		Header:     header,
		Body: &closeFuncs{
			Reader:  resp,
			closers: []func() error{resp.Close, conn.Quit},
		},
		ContentLength: size,
	}, nil
}

// classifyFTPError marks 4xx replies and network errors transient.
func classifyFTPError(proto, op string, err error) *TransportError {
	if err == nil {
		return nil
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		if tpErr.Code >= 400 && tpErr.Code < 500 {
			return NewTransientError(proto, op, err)
		}
		return NewPermanentError(proto, op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewTransientError(proto, op, err)
	}
	return NewPermanentError(proto, op, err)
}
