package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// NewCORS разрешает кросс-доменные запросы с указанных источников вместе с cookie сессии.
func NewCORS(allowedOrigins []string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Encoding"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	return c.Handler
}
