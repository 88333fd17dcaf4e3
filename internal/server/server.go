// Package server is the development posts backend: a chi router over an
// embedded sqlite database, speaking the offset pagination dialect the
// reader client defaults to.
package server

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// New assembles the backend router.
func New(db *sql.DB, jwtSecret string, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	store := NewStore(db)
	tokens := NewTokenIssuer(jwtSecret)
	h := NewHandlers(store, tokens, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(newRateLimiter(20, 40).Middleware)

	r.Post("/auth/login", h.Login)
	r.Post("/auth/refresh", h.RefreshToken)

	r.Get("/posts", h.ListPosts)
	r.Get("/posts/search", h.SearchPosts)
	r.Get("/posts/user/{id}", h.PostsByUser)
	r.Get("/posts/{id}", h.GetPost)
	r.Get("/posts/{id}/comments", h.GetComments)
	r.Get("/users/{id}", h.GetUser)

	// Mutations require a valid access token.
	r.Group(func(r chi.Router) {
		r.Use(requireAuth(tokens))
		r.Post("/posts/add", h.CreatePost)
		r.Patch("/posts/{id}", h.UpdatePost)
		r.Delete("/posts/{id}", h.DeletePost)
		r.Patch("/comments/{id}", h.UpdateCommentLikes)
	})

	return r
}

// requireAuth verifies the Bearer access token on mutating routes.
func requireAuth(tokens *TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			if _, _, err := tokens.Verify(raw, "access"); err != nil {
				writeError(w, http.StatusUnauthorized, "invalid access token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
