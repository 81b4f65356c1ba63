package handler

import "net/http"

type coordinatesRequest struct {
	Address string `json:"address"`
}

// Coordinates возвращает координаты барангая, лучше всего совпадающего с адресом.
func (h *Handler) Coordinates(w http.ResponseWriter, r *http.Request) {
	var req coordinatesRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	match, err := h.locator.Lookup(r.Context(), req.Address)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, match)
}
