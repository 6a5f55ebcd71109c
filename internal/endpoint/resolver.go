// Package endpoint определяет URL, по которому worker'ы обращаются
// к control API scheduler'а.
//
// Порядок разрешения (однократно при старте):
//
//  1. Локальный control API доступен и туннель настроен → локальный режим:
//     открыть туннель, URL = публичный адрес туннеля + суффикс пути.
//  2. Иначе сетевой режим, по приоритету:
//     переменная окружения → execution_api.url → execution_api.base_url + суффикс.
//
// Результат проверяется domain.ValidateEndpoint.
package endpoint

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shaiso/Outpost/internal/domain"
)

// Значения по умолчанию.
const (
	DefaultLocalAddr    = "localhost:8080"
	DefaultPathSuffix   = "/execution/"
	DefaultCheckTimeout = time.Second
)

// Mode — способ, которым получен endpoint.
type Mode string

const (
	ModeUnresolved Mode = ""
	ModeLocal      Mode = "local"
	ModeNetworked  Mode = "networked"
)

// Tunnel — открытый туннель к локальному адресу.
type Tunnel interface {
	// PublicURL — адрес, по которому туннель доступен снаружи.
	PublicURL() string
	Close() error
}

// Tunneler открывает туннели.
type Tunneler interface {
	Open(ctx context.Context, localAddr string) (Tunnel, error)
}

// DialFunc — проверка доступности адреса.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Config — конфигурация Resolver.
type Config struct {
	// LocalAddr — адрес локального control API (default: localhost:8080).
	LocalAddr string

	// DisableLocalCheck — не проверять локальный API, сразу сетевой режим.
	DisableLocalCheck bool

	// CheckTimeout — таймаут проверки (default: 1s).
	CheckTimeout time.Duration

	// PathSuffix — суффикс пути execution API (default: /execution/).
	PathSuffix string

	// OverrideEnvVar — переменная с явным URL (default: OUTPOST_EXECUTION_API_URL).
	OverrideEnvVar string

	// URL — execution_api.url из конфигурации.
	URL string

	// BaseURL — execution_api.base_url; к нему добавляется PathSuffix.
	BaseURL string

	// Tunneler — для локального режима.
	Tunneler Tunneler

	// Getenv и Dial подменяются в тестах.
	Getenv func(string) string
	Dial   DialFunc

	Logger *slog.Logger
}

// Resolver разрешает endpoint и владеет туннелем.
type Resolver struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	tunnel   Tunnel
	mode     Mode
	endpoint string
}

// NewResolver создаёт Resolver.
func NewResolver(cfg Config) *Resolver {
	if cfg.LocalAddr == "" {
		cfg.LocalAddr = DefaultLocalAddr
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = DefaultCheckTimeout
	}
	if cfg.PathSuffix == "" {
		cfg.PathSuffix = DefaultPathSuffix
	}
	if cfg.OverrideEnvVar == "" {
		cfg.OverrideEnvVar = domain.DefaultEndpointEnvVar
	}
	if cfg.Getenv == nil {
		cfg.Getenv = os.Getenv
	}
	if cfg.Dial == nil {
		d := &net.Dialer{}
		cfg.Dial = d.DialContext
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{cfg: cfg, logger: logger.With("component", "endpoint")}
}

// Resolve определяет и проверяет endpoint.
// Повторный вызов возвращает уже разрешённый URL.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.endpoint != "" {
		return r.endpoint, nil
	}

	if !r.cfg.DisableLocalCheck && r.localReachable(ctx) {
		if r.cfg.Tunneler != nil {
			return r.resolveLocal(ctx)
		}
		r.logger.Warn("local control api is reachable but no tunnel is configured, using networked mode",
			"addr", r.cfg.LocalAddr,
		)
	}
	return r.resolveNetworked()
}

func (r *Resolver) localReachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.CheckTimeout)
	defer cancel()

	conn, err := r.cfg.Dial(ctx, "tcp", r.cfg.LocalAddr)
	if err != nil {
		r.logger.Debug("local control api not reachable", "addr", r.cfg.LocalAddr, "error", err)
		return false
	}
	conn.Close()
	return true
}

func (r *Resolver) resolveLocal(ctx context.Context) (string, error) {
	r.logger.Info("local control api detected, opening tunnel", "addr", r.cfg.LocalAddr)

	t, err := r.cfg.Tunneler.Open(ctx, r.cfg.LocalAddr)
	if err != nil {
		return "", fmt.Errorf("open tunnel: %w", err)
	}

	endpoint := JoinPath(t.PublicURL(), r.cfg.PathSuffix)
	if err := domain.ValidateEndpoint(endpoint); err != nil {
		if cerr := t.Close(); cerr != nil {
			r.logger.Warn("failed to close tunnel", "error", cerr)
		}
		return "", err
	}

	r.tunnel = t
	r.mode = ModeLocal
	r.endpoint = endpoint
	r.logger.Info("execution api endpoint resolved", "mode", r.mode, "endpoint", endpoint)
	return endpoint, nil
}

func (r *Resolver) resolveNetworked() (string, error) {
	var endpoint, source string

	switch {
	case r.cfg.Getenv(r.cfg.OverrideEnvVar) != "":
		endpoint, source = r.cfg.Getenv(r.cfg.OverrideEnvVar), "env:"+r.cfg.OverrideEnvVar
	case r.cfg.URL != "":
		endpoint, source = r.cfg.URL, "config:execution_api.url"
	case r.cfg.BaseURL != "":
		endpoint, source = JoinPath(r.cfg.BaseURL, r.cfg.PathSuffix), "config:execution_api.base_url"
		r.logger.Warn("execution api url derived from base url, set it explicitly if workers cannot reach it",
			"endpoint", endpoint,
		)
	}

	if err := domain.ValidateEndpoint(endpoint); err != nil {
		return "", err
	}

	r.mode = ModeNetworked
	r.endpoint = endpoint
	r.logger.Info("execution api endpoint resolved", "mode", r.mode, "source", source, "endpoint", endpoint)
	return endpoint, nil
}

// Mode возвращает режим, в котором получен endpoint.
func (r *Resolver) Mode() Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// Close закрывает туннель, если он открыт. Повторный вызов — no-op.
func (r *Resolver) Close() error {
	r.mu.Lock()
	t := r.tunnel
	r.tunnel = nil
	r.mu.Unlock()

	if t == nil {
		return nil
	}
	r.logger.Info("closing tunnel")
	if err := t.Close(); err != nil {
		return fmt.Errorf("close tunnel: %w", err)
	}
	return nil
}

// JoinPath склеивает базовый URL и суффикс ровно через один "/".
func JoinPath(base, suffix string) string {
	if suffix == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(suffix, "/")
}
