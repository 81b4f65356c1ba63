package handler

import (
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/maxxi02/thesis-project01-sub001/internal/model"
)

const (
	authWindowSeconds = 60
	authMaxRequests   = 10
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User  *model.User `json:"user"`
	Token string      `json:"token,omitempty"`
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// limitByIP учитывает запрос клиента в лимите для действия. При превышении отвечает 429.
func (h *Handler) limitByIP(w http.ResponseWriter, r *http.Request, action string) bool {
	err := h.service.Allow(r.Context(), action+":"+clientIP(r), authWindowSeconds, authMaxRequests)
	if err != nil {
		h.writeError(w, r, err)
		return false
	}
	return true
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, status int, user *model.User) {
	token, err := h.authMiddleware.SetSessionCookie(w, user)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, status, sessionResponse{User: user, Token: token})
}

// SignUp регистрирует пользователя и открывает сессию.
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	if !h.limitByIP(w, r, "sign-up") {
		return
	}

	var in model.SignUpInput
	if err := decodeJSON(r, &in, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	user, err := h.service.SignUp(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.Info("user signed up", zap.String("email", user.Email))
	h.startSession(w, r, http.StatusCreated, user)
}

// SignIn проверяет email и пароль и устанавливает cookie сессии.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	if !h.limitByIP(w, r, "sign-in") {
		return
	}

	var req credentialsRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	user, err := h.service.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.startSession(w, r, http.StatusOK, user)
}

// SignOut удаляет cookie сессии.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	h.authMiddleware.ClearSessionCookie(w)
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Session возвращает пользователя текущей сессии.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, sessionResponse{User: currentUser(r)})
}

type verifyEmailRequest struct {
	Email string `json:"email"`
}

// VerifyEmail сообщает, зарегистрирован ли email.
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	if !h.limitByIP(w, r, "verify-email") {
		return
	}

	var req verifyEmailRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	exists, err := h.service.VerifyEmail(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

// ListUsers возвращает всех пользователей.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, users)
}

type roleRequest struct {
	Role string `json:"role"`
}

// ChangeRole назначает пользователю роль.
func (h *Handler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	user, err := h.service.ChangeRole(r.Context(), currentUser(r), chi.URLParam(r, "id"), req.Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

type banRequest struct {
	Banned bool `json:"banned"`
}

// SetBanned блокирует или разблокирует пользователя.
func (h *Handler) SetBanned(w http.ResponseWriter, r *http.Request) {
	var req banRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	user, err := h.service.SetBanned(r.Context(), currentUser(r), chi.URLParam(r, "id"), req.Banned)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}
