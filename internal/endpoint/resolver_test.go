package endpoint

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Outpost/internal/domain"
)

type fakeTunnel struct {
	url    string
	closed int
}

func (t *fakeTunnel) PublicURL() string { return t.url }

func (t *fakeTunnel) Close() error {
	t.closed++
	return nil
}

type fakeTunneler struct {
	tunnel    *fakeTunnel
	err       error
	localAddr string
}

func (f *fakeTunneler) Open(_ context.Context, localAddr string) (Tunnel, error) {
	f.localAddr = localAddr
	if f.err != nil {
		return nil, f.err
	}
	return f.tunnel, nil
}

func reachable(context.Context, string, string) (net.Conn, error) {
	client, server := net.Pipe()
	server.Close()
	return client, nil
}

func unreachable(context.Context, string, string) (net.Conn, error) {
	return nil, errors.New("connection refused")
}

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func newTestResolver(cfg Config) *Resolver {
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	if cfg.Getenv == nil {
		cfg.Getenv = env(nil)
	}
	return NewResolver(cfg)
}

func TestResolve_LocalModeUsesTunnel(t *testing.T) {
	tn := &fakeTunneler{tunnel: &fakeTunnel{url: "https://abc123.tunnel.example.com"}}
	r := newTestResolver(Config{
		Dial:     reachable,
		Tunneler: tn,
		Getenv:   env(map[string]string{domain.DefaultEndpointEnvVar: "https://override.example.com/execution/"}),
		URL:      "https://config.example.com/execution/",
	})

	got, err := r.Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "https://abc123.tunnel.example.com/execution/", got)
	assert.Equal(t, ModeLocal, r.Mode())
	assert.Equal(t, DefaultLocalAddr, tn.localAddr)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, 1, tn.tunnel.closed)
}

func TestResolve_LocalWithoutTunnelerFallsBack(t *testing.T) {
	r := newTestResolver(Config{Dial: reachable, URL: "https://config.example.com/execution/"})

	got, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://config.example.com/execution/", got)
	assert.Equal(t, ModeNetworked, r.Mode())
}

func TestResolve_TunnelOpenError(t *testing.T) {
	r := newTestResolver(Config{Dial: reachable, Tunneler: &fakeTunneler{err: errors.New("auth failed")}})

	_, err := r.Resolve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth failed")
}

func TestResolve_InvalidTunnelURLClosesTunnel(t *testing.T) {
	tunnel := &fakeTunnel{url: "tcp://0.tcp.example:1234"}
	r := newTestResolver(Config{Dial: reachable, Tunneler: &fakeTunneler{tunnel: tunnel}})

	_, err := r.Resolve(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidEndpoint)
	assert.Equal(t, 1, tunnel.closed)
}

func TestResolve_NetworkedPrecedence(t *testing.T) {
	override := "https://override.example.com/execution/"

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "override wins over everything",
			cfg: Config{
				Getenv:  env(map[string]string{domain.DefaultEndpointEnvVar: override}),
				URL:     "https://config.example.com/execution/",
				BaseURL: "https://base.example.com",
			},
			want: override,
		},
		{
			name: "config url over base url",
			cfg: Config{
				URL:     "https://config.example.com/execution/",
				BaseURL: "https://base.example.com",
			},
			want: "https://config.example.com/execution/",
		},
		{
			name: "derived from base url",
			cfg:  Config{BaseURL: "https://base.example.com/"},
			want: "https://base.example.com/execution/",
		},
		{
			name: "custom override variable",
			cfg: Config{
				OverrideEnvVar: "MY_URL",
				Getenv:         env(map[string]string{"MY_URL": "http://custom:9000/api/"}),
				URL:            "https://config.example.com/execution/",
			},
			want: "http://custom:9000/api/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Dial = unreachable
			r := newTestResolver(tt.cfg)

			got, err := r.Resolve(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, ModeNetworked, r.Mode())
			assert.NoError(t, r.Close())
		})
	}
}

func TestResolve_DisableLocalCheck(t *testing.T) {
	checked := false
	r := newTestResolver(Config{
		DisableLocalCheck: true,
		Dial: func(ctx context.Context, n, a string) (net.Conn, error) {
			checked = true
			return reachable(ctx, n, a)
		},
		URL: "https://config.example.com/execution/",
	})

	_, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.False(t, checked)
}

func TestResolve_Invalid(t *testing.T) {
	r := newTestResolver(Config{Dial: unreachable})
	_, err := r.Resolve(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidEndpoint)

	r = newTestResolver(Config{Dial: unreachable, URL: "scheduler.internal:8080"})
	_, err = r.Resolve(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidEndpoint)
}

func TestResolve_Cached(t *testing.T) {
	calls := 0
	r := newTestResolver(Config{
		Dial: func(ctx context.Context, n, a string) (net.Conn, error) {
			calls++
			return unreachable(ctx, n, a)
		},
		URL: "https://config.example.com/execution/",
	})

	first, err := r.Resolve(context.Background())
	require.NoError(t, err)
	second, err := r.Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestResolve_RealLocalCheck(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	tn := &fakeTunneler{tunnel: &fakeTunnel{url: "https://t.example.com"}}
	r := newTestResolver(Config{LocalAddr: ln.Addr().String(), Tunneler: tn})

	got, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://t.example.com/execution/", got)
	assert.Equal(t, ln.Addr().String(), tn.localAddr)
}

func TestJoinPath(t *testing.T) {
	assert.Equal(t, "https://a/execution/", JoinPath("https://a", "/execution/"))
	assert.Equal(t, "https://a/execution/", JoinPath("https://a/", "execution/"))
	assert.Equal(t, "https://a", JoinPath("https://a", ""))
}
