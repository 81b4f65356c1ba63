package handler

import (
	"net/http"

	"github.com/maxxi02/thesis-project01-sub001/internal/model"
)

// CheckRateLimit сообщает, сколько запросов осталось для ключа.
func (h *Handler) CheckRateLimit(w http.ResponseWriter, r *http.Request) {
	var in model.RateLimitInput
	if err := decodeJSON(r, &in, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	status, err := h.service.CheckRateLimit(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// IncrementRateLimit учитывает запрос для ключа.
func (h *Handler) IncrementRateLimit(w http.ResponseWriter, r *http.Request) {
	var in model.RateLimitInput
	if err := decodeJSON(r, &in, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	status, err := h.service.IncrementRateLimit(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// ClearRateLimit сбрасывает счётчик ключа.
func (h *Handler) ClearRateLimit(w http.ResponseWriter, r *http.Request) {
	var in model.RateLimitInput
	if err := decodeJSON(r, &in, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.service.ClearRateLimit(r.Context(), in.Key); err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
