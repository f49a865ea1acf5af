package jettalib

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	crand "crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/danielbankhead/jetta/pkg/jerror"
)

type sftpServer struct {
	addr    string
	hostKey ssh.Signer
	root    string
}

// url returns an sftp URL for a file below the server root.
func (s *sftpServer) url(userinfo, rel string) string {
	if userinfo != "" {
		userinfo += "@"
	}
	return fmt.Sprintf("sftp://%s%s%s", userinfo, s.addr, filepath.ToSlash(filepath.Join(s.root, rel)))
}

func newTestSigner(t *testing.T) (ssh.Signer, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), crand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(key)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return signer, key
}

// startSFTPServer runs an in-process SSH server with the sftp subsystem.
// It accepts password "testpass" for "testuser" and, when clientKey is
// set, that public key.
func startSFTPServer(t *testing.T, files map[string][]byte, clientKey ssh.PublicKey) *sftpServer {
	t.Helper()
	hostKey, _ := newTestSigner(t)

	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == "testuser" && string(pass) == "testpass" {
				return nil, nil
			}
			return nil, fmt.Errorf("invalid credentials")
		},
	}
	if clientKey != nil {
		config.PublicKeyCallback = func(c ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), clientKey.Marshal()) {
				return nil, nil
			}
			return nil, fmt.Errorf("unknown public key")
		}
	}
	config.AddHostKey(hostKey)

	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, content, 0644); err != nil {
			t.Fatal(err)
		}
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go serveSSH(conn, config)
		}
	}()
	return &sftpServer{addr: l.Addr().String(), hostKey: hostKey, root: root}
}

func serveSSH(conn net.Conn, config *ssh.ServerConfig) {
	defer conn.Close()
	sshConn, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		return
	}
	defer sshConn.Close()
	go ssh.DiscardRequests(reqs)

	for nc := range chans {
		if nc.ChannelType() != "session" {
			nc.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		channel, requests, err := nc.Accept()
		if err != nil {
			continue
		}
		go func() {
			for req := range requests {
				if req.Type == "subsystem" && len(req.Payload) > 4 && string(req.Payload[4:]) == "sftp" {
					req.Reply(true, nil)
					server, err := sftp.NewServer(channel)
					if err != nil {
						channel.Close()
						return
					}
					server.Serve()
					server.Close()
					return
				}
				if req.WantReply {
					req.Reply(false, nil)
				}
			}
		}()
	}
}

func TestSFTPTransport(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("absolute server paths")
	}
	content := bytes.Repeat([]byte("sftp"), 5000)
	srv := startSFTPServer(t, map[string][]byte{"pub/file.bin": content}, nil)
	knownHosts := filepath.Join(t.TempDir(), "known_hosts")
	e := NewEngine(WithSFTPOptions(SFTPOptions{KnownHostsPath: knownHosts, KeyPath: filepath.Join(t.TempDir(), "none")}))
	defer e.Close()
	ctx := context.Background()

	t.Run("password", func(t *testing.T) {
		res, err := e.Request(ctx, srv.url("testuser:testpass", "pub/file.bin"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !bytes.Equal(res.Data, content) {
			t.Errorf("got %d bytes, want %d", len(res.Data), len(content))
		}
		if res.Lengths.Content != int64(len(content)) {
			t.Errorf("Content length = %d", res.Lengths.Content)
		}
		if strings.Contains(res.URL, "testpass") {
			t.Errorf("result URL leaks the password: %s", res.URL)
		}
	})
	t.Run("host key recorded on first use", func(t *testing.T) {
		data, err := os.ReadFile(knownHosts)
		if err != nil {
			t.Fatalf("known_hosts not written: %v", err)
		}
		if !strings.Contains(string(data), knownhosts.Normalize(srv.addr)) {
			t.Errorf("known_hosts = %q", data)
		}
	})
	t.Run("head", func(t *testing.T) {
		res, err := e.Request(ctx, srv.url("testuser:testpass", "pub/file.bin"), WithMethod("HEAD"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(res.Data) != 0 {
			t.Errorf("HEAD returned %d bytes", len(res.Data))
		}
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := e.Request(ctx, srv.url("testuser:testpass", "pub/none.bin"))
		wantCode(t, err, jerror.RequestError)
		var te *TransportError
		if !errors.As(err, &te) || te.IsTransient() {
			t.Errorf("missing file should be permanent, got %v", err)
		}
	})
	t.Run("no key and no password", func(t *testing.T) {
		_, err := e.Request(ctx, srv.url("testuser", "pub/file.bin"))
		var te *TransportError
		if !errors.As(err, &te) || te.Op != "auth" {
			t.Errorf("want auth error, got %v", err)
		}
	})
}

func TestSFTPKeyAuth(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("absolute server paths")
	}
	clientSigner, clientKey := newTestSigner(t)
	srv := startSFTPServer(t, map[string][]byte{"k.txt": []byte("by key")}, clientSigner.PublicKey())

	block, err := ssh.MarshalPrivateKey(clientKey, "")
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	keyPath := filepath.Join(t.TempDir(), "id_test")
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0600); err != nil {
		t.Fatal(err)
	}

	e := NewEngine(WithSFTPOptions(SFTPOptions{
		KeyPath:         keyPath,
		HostKeyCallback: ssh.FixedHostKey(srv.hostKey.PublicKey()),
	}))
	defer e.Close()
	res, err := e.Request(context.Background(), srv.url("testuser", "k.txt"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(res.Data) != "by key" {
		t.Errorf("Data = %q", res.Data)
	}
}

func TestTOFURejectsChangedKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts", "known_hosts")
	cb := newTOFUHostKeyCallback(path)
	addr := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 2222}
	first, _ := newTestSigner(t)
	second, _ := newTestSigner(t)

	if err := cb("127.0.0.1:2222", addr, first.PublicKey()); err != nil {
		t.Fatalf("first use: %v", err)
	}
	if err := cb("127.0.0.1:2222", addr, first.PublicKey()); err != nil {
		t.Fatalf("known key: %v", err)
	}
	if err := cb("127.0.0.1:2222", addr, second.PublicKey()); err == nil {
		t.Fatal("a changed host key must be rejected")
	}
	if err := newTOFUHostKeyCallback("")("h:22", addr, first.PublicKey()); err == nil {
		t.Error("an empty path must be rejected")
	}
}
