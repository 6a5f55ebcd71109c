package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		RequestID(),
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Health и metrics
	mux.HandleFunc("GET /healthz", h.Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Tasks
	mux.Handle("GET /api/v1/tasks", chain(http.HandlerFunc(h.ListTasks)))
	mux.Handle("POST /api/v1/tasks", chain(http.HandlerFunc(h.SubmitTask)))
	mux.Handle("GET /api/v1/tasks/{key}", chain(http.HandlerFunc(h.GetTask)))

	// Reconciliation
	mux.Handle("POST /api/v1/sync", chain(http.HandlerFunc(h.Sync)))

	// Endpoint
	mux.Handle("GET /api/v1/endpoint", chain(http.HandlerFunc(h.GetEndpoint)))

	// History
	mux.Handle("GET /api/v1/history", chain(http.HandlerFunc(h.ListHistory)))
}
