package handler

import (
	"net/http"
	"strings"

	"github.com/maxxi02/thesis-project01-sub001/internal/model"
)

// bindStream привязывает поток уведомлений к пользователю сессии. Параметры userId и userEmail
// необязательны, но если переданы, должны совпадать с сессией.
func (h *Handler) bindStream(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := currentUser(r)
		if u == nil {
			h.writeError(w, r, model.ErrUnauthenticated)
			return
		}

		q := r.URL.Query()
		userID := strings.TrimSpace(q.Get("userId"))
		userEmail := strings.TrimSpace(q.Get("userEmail"))
		if userID != "" && userID != u.ID.String() {
			h.writeError(w, r, model.ErrForbidden)
			return
		}
		if userEmail != "" && !strings.EqualFold(userEmail, u.Email) {
			h.writeError(w, r, model.ErrForbidden)
			return
		}

		q.Set("userId", u.ID.String())
		q.Set("userEmail", u.Email)
		r2 := r.Clone(r.Context())
		r2.URL.RawQuery = q.Encode()
		next.ServeHTTP(w, r2)
	})
}
