package app

import (
	"log/slog"

	"github.com/shaiso/Outpost/internal/config"
	"github.com/shaiso/Outpost/internal/endpoint"
	"github.com/shaiso/Outpost/internal/notify"
	"github.com/shaiso/Outpost/internal/repo"
	"github.com/shaiso/Outpost/internal/tunnel"
)

// NewResolver создаёт resolver endpoint'а; туннель подключается,
// если задан tunnel.server.
func NewResolver(cfg *config.Config, logger *slog.Logger) *endpoint.Resolver {
	rc := endpoint.Config{
		LocalAddr:         cfg.ExecutionAPI.LocalAddr,
		DisableLocalCheck: !cfg.ExecutionAPI.LocalCheck,
		OverrideEnvVar:    cfg.ExecutionAPI.EnvVar,
		URL:               cfg.ExecutionAPI.URL,
		BaseURL:           cfg.ExecutionAPI.BaseURL,
		Logger:            logger,
	}

	if cfg.Tunnel.Enabled() {
		rc.Tunneler = tunnel.NewSSHTunneler(tunnel.SSHConfig{
			Server:         cfg.Tunnel.Server,
			User:           cfg.Tunnel.User,
			KeyFile:        cfg.Tunnel.KeyFile,
			Password:       cfg.Tunnel.Password,
			KnownHostsFile: cfg.Tunnel.KnownHosts,
			PublicURL:      cfg.Tunnel.PublicURL,
			Logger:         logger,
		})
	}

	return endpoint.NewResolver(rc)
}

// NewCallbacks собирает sink'и уведомлений: лог всегда, webhook при
// notify.webhook_url, журнал при наличии history.
func NewCallbacks(cfg *config.Config, history *repo.HistoryRepo, logger *slog.Logger) *notify.Callbacks {
	sinks := []notify.Sink{notify.NewLogSink(logger)}

	if cfg.Notify.WebhookURL != "" {
		headers := map[string]string{}
		if cfg.Notify.WebhookToken != "" {
			headers["Authorization"] = "Bearer " + cfg.Notify.WebhookToken
		}
		sinks = append(sinks, notify.NewWebhookSink(notify.WebhookConfig{
			URL:     cfg.Notify.WebhookURL,
			Headers: headers,
		}))
	}

	if history != nil {
		sinks = append(sinks, notify.NewHistorySink(history))
	}

	return notify.New(logger, sinks...)
}
