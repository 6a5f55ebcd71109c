// Package tunnel открывает обратный SSH-туннель к локальному control API,
// чтобы удалённые worker'ы могли до него достучаться.
package tunnel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/shaiso/Outpost/internal/endpoint"
)

// Значения по умолчанию.
const (
	DefaultRemoteBind  = "0.0.0.0:0"
	DefaultDialTimeout = 10 * time.Second
	PortPlaceholder    = "{port}"
)

var (
	// ErrNoAuth — не задан ни ключ, ни пароль.
	ErrNoAuth = errors.New("ssh tunnel: no auth method configured")

	// ErrNoServer — не задан адрес SSH-сервера.
	ErrNoServer = errors.New("ssh tunnel: server address is required")
)

// SSHConfig — параметры туннеля.
type SSHConfig struct {
	// Server — host:port SSH-сервера.
	Server string

	User     string
	KeyFile  string
	Password string

	// KnownHostsFile — файл known_hosts. Пустой: проверка ключа хоста отключена.
	KnownHostsFile string

	// RemoteBind — адрес, который слушает сервер (default: 0.0.0.0:0).
	RemoteBind string

	// PublicURL — внешний адрес туннеля. "{port}" заменяется на
	// выделенный сервером порт. Пустой: http://<host сервера>:<port>.
	PublicURL string

	DialTimeout time.Duration
	Logger      *slog.Logger
}

// SSHTunneler открывает обратные туннели через SSH (remote port forwarding).
type SSHTunneler struct {
	cfg    SSHConfig
	logger *slog.Logger
}

// NewSSHTunneler создаёт SSHTunneler.
func NewSSHTunneler(cfg SSHConfig) *SSHTunneler {
	if cfg.RemoteBind == "" {
		cfg.RemoteBind = DefaultRemoteBind
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SSHTunneler{cfg: cfg, logger: logger.With("component", "tunnel")}
}

// Open подключается к серверу и пробрасывает удалённый порт на localAddr.
func (t *SSHTunneler) Open(ctx context.Context, localAddr string) (endpoint.Tunnel, error) {
	clientCfg, err := t.clientConfig()
	if err != nil {
		return nil, err
	}

	dialer := &net.Dialer{Timeout: t.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("dial ssh server %s: %w", t.cfg.Server, err)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, t.cfg.Server, clientCfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake: %w", err)
	}
	client := ssh.NewClient(c, chans, reqs)

	ln, err := client.Listen("tcp", t.cfg.RemoteBind)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("remote listen %s: %w", t.cfg.RemoteBind, err)
	}

	port := 0
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		port = addr.Port
	}

	tun := &sshTunnel{
		client:    client,
		listener:  ln,
		localAddr: localAddr,
		publicURL: PublicURL(t.cfg.PublicURL, t.cfg.Server, port),
		logger:    t.logger,
	}

	tun.wg.Add(1)
	go tun.serve()

	t.logger.Info("ssh tunnel opened",
		"server", t.cfg.Server,
		"remote_port", port,
		"local_addr", localAddr,
		"public_url", tun.publicURL,
	)

	return tun, nil
}

func (t *SSHTunneler) clientConfig() (*ssh.ClientConfig, error) {
	if t.cfg.Server == "" {
		return nil, ErrNoServer
	}

	var auth []ssh.AuthMethod
	if t.cfg.KeyFile != "" {
		key, err := os.ReadFile(t.cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if t.cfg.Password != "" {
		auth = append(auth, ssh.Password(t.cfg.Password))
	}
	if len(auth) == 0 {
		return nil, ErrNoAuth
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if t.cfg.KnownHostsFile != "" {
		cb, err := knownhosts.New(t.cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
		hostKeyCallback = cb
	} else {
		t.logger.Warn("ssh host key verification disabled, set known_hosts_file")
	}

	return &ssh.ClientConfig{
		User:            t.cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         t.cfg.DialTimeout,
	}, nil
}

// PublicURL строит внешний адрес туннеля.
func PublicURL(template, server string, port int) string {
	p := strconv.Itoa(port)
	if template != "" {
		return strings.ReplaceAll(template, PortPlaceholder, p)
	}

	host, _, err := net.SplitHostPort(server)
	if err != nil {
		host = server
	}
	return "http://" + net.JoinHostPort(host, p)
}

type sshTunnel struct {
	client    *ssh.Client
	listener  net.Listener
	localAddr string
	publicURL string
	logger    *slog.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

func (t *sshTunnel) PublicURL() string {
	return t.publicURL
}

func (t *sshTunnel) serve() {
	defer t.wg.Done()

	for {
		remote, err := t.listener.Accept()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				t.logger.Debug("tunnel accept stopped", "error", err)
			}
			return
		}

		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			if err := Proxy(remote, t.localAddr); err != nil {
				t.logger.Warn("tunnel proxy failed", "local_addr", t.localAddr, "error", err)
			}
		}()
	}
}

func (t *sshTunnel) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = errors.Join(t.listener.Close(), t.client.Close())
		t.wg.Wait()
	})
	return t.closeErr
}

// Proxy соединяет remote с localAddr и копирует данные в обе стороны
// до закрытия одной из сторон.
func Proxy(remote net.Conn, localAddr string) error {
	defer remote.Close()

	local, err := net.DialTimeout("tcp", localAddr, DefaultDialTimeout)
	if err != nil {
		return fmt.Errorf("dial local %s: %w", localAddr, err)
	}
	defer local.Close()

	done := make(chan struct{}, 2)
	go func() {
		_, _ = io.Copy(local, remote)
		done <- struct{}{}
	}()
	go func() {
		_, _ = io.Copy(remote, local)
		done <- struct{}{}
	}()

	<-done
	return nil
}
