package jettalib

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SFTPOptions configure the sftp transport.
type SFTPOptions struct {
	// KnownHostsPath is the trust-on-first-use host key file.
	KnownHostsPath string
	// KeyPath is tried when the URL carries no password. Defaults to
	// ~/.ssh/id_ed25519 and ~/.ssh/id_rsa.
	KeyPath string
	// HostKeyCallback overrides the known hosts policy.
	HostKeyCallback ssh.HostKeyCallback
	// DialTimeout defaults to 30 seconds.
	DialTimeout time.Duration
}

// SFTPTransport downloads single files over SSH. Only GET and HEAD are
// supported; responses are synthesized with status 200.
type SFTPTransport struct {
	opts SFTPOptions
}

func NewSFTPTransport(opts *SFTPOptions) *SFTPTransport {
	t := &SFTPTransport{}
	if opts != nil {
		t.opts = *opts
	}
	if t.opts.DialTimeout <= 0 {
		t.opts.DialTimeout = 30 * time.Second
	}
	if t.opts.KnownHostsPath == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			t.opts.KnownHostsPath = filepath.Join(dir, "jetta", "known_hosts")
		}
	}
	return t
}

func (t *SFTPTransport) connect(ctx context.Context, u *TransportRequest) (*ssh.Client, *sftp.Client, error) {
	var user, password string
	if u.URL.User != nil {
		user = u.URL.User.Username()
		password, _ = u.URL.User.Password()
	}
	auth, err := buildAuthMethods(password, t.opts.KeyPath)
	if err != nil {
		return nil, nil, NewPermanentError("sftp", "auth", err)
	}

	callback := t.opts.HostKeyCallback
	if callback == nil {
		callback = newTOFUHostKeyCallback(t.opts.KnownHostsPath)
	}
	config := &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: callback,
		Timeout:         t.opts.DialTimeout,
	}

	addr := u.URL.Host
	if u.URL.Port() == "" {
		addr = net.JoinHostPort(u.URL.Hostname(), "22")
	}
	d := net.Dialer{Timeout: t.opts.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, classifySFTPError("sftp", "connect", err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, nil, classifySFTPError("sftp", "handshake", err)
	}
	sshClient := ssh.NewClient(c, chans, reqs)

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, nil, classifySFTPError("sftp", "subsystem", err)
	}
	return sshClient, sftpClient, nil
}

func (t *SFTPTransport) RoundTrip(ctx context.Context, req *TransportRequest) (*TransportResponse, error) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return nil, NewPermanentError("sftp", "method", fmt.Errorf("method %s is not supported", req.Method))
	}
	remotePath := req.URL.Path
	if remotePath == "" || strings.HasSuffix(remotePath, "/") {
		return nil, NewPermanentError("sftp", "path", errors.New("a file path is required"))
	}

	sshClient, sftpClient, err := t.connect(ctx, req)
	if err != nil {
		return nil, err
	}
	closeAll := func() {
		sftpClient.Close()
		sshClient.Close()
	}

	f, err := sftpClient.Open(remotePath)
	if err != nil {
		closeAll()
		return nil, classifySFTPError("sftp", "open", err)
	}
	header := make(http.Header)
	size := int64(-1)
	if fi, err := f.Stat(); err == nil && fi.Mode().IsRegular() {
		size = fi.Size()
		header.Set("Content-Length", strconv.FormatInt(size, 10))
	}

	if req.Method == http.MethodHead {
		f.Close()
		closeAll()
		return &TransportResponse{StatusCode: http.StatusOK, Header: header, Body: http.NoBody, ContentLength: size}, nil
	}
	return &TransportResponse{
		StatusCode: http.StatusOK,
		Header:     header,
		Body: &closeFuncs{
			Reader:  f,
			closers: []func() error{f.Close, sftpClient.Close, sshClient.Close},
		},
		ContentLength: size,
	}, nil
}

// buildAuthMethods prefers the URL password and falls back to a key file.
func buildAuthMethods(password, sshKeyPath string) ([]ssh.AuthMethod, error) {
	if password != "" {
		return []ssh.AuthMethod{ssh.Password(password)}, nil
	}

	keyPaths := resolveSSHKeyPaths(sshKeyPath)
	for _, kp := range keyPaths {
		pemBytes, err := os.ReadFile(kp)
		if err != nil {
			continue
		}
		signer, err := ssh.ParsePrivateKey(pemBytes)
		if err != nil {
			var ppErr *ssh.PassphraseMissingError
			if errors.As(err, &ppErr) {
				return nil, fmt.Errorf("SSH key %q is passphrase-protected; passphrase-protected keys are not supported", kp)
			}
			continue
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	return nil, fmt.Errorf("no authentication method available: provide a password in the URL or an SSH key at %s", strings.Join(keyPaths, ", "))
}

// resolveSSHKeyPaths returns explicitPath alone, or the default key files.
func resolveSSHKeyPaths(explicitPath string) []string {
	if explicitPath != "" {
		return []string{explicitPath}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(home, ".ssh", "id_ed25519"),
		filepath.Join(home, ".ssh", "id_rsa"),
	}
}

// classifySFTPError treats missing files and exit errors as permanent and
// network errors as transient.
func classifySFTPError(proto, op string, err error) *TransportError {
	if err == nil {
		return nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return NewPermanentError(proto, op, err)
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return NewPermanentError(proto, op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewTransientError(proto, op, err)
	}
	return NewPermanentError(proto, op, err)
}
