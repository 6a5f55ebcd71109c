package api

import (
	"net/http"
	"strconv"
)

const defaultHistoryLimit = 50

// ListHistory возвращает последние завершённые tasks.
// GET /api/v1/history?limit=...
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		Unavailable(w, "history is not configured")
		return
	}

	limit := defaultHistoryLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			BadRequest(w, "invalid limit")
			return
		}
		limit = n
	}

	entries, err := h.history.ListRecent(r.Context(), limit)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	List(w, entries, len(entries))
}
