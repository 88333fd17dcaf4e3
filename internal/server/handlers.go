package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ZayatsMaxim/news-project/internal/core/posts"
)

// Handlers serves the offset-dialect posts API the reader client consumes.
type Handlers struct {
	store  *Store
	tokens *TokenIssuer
	logger *slog.Logger
}

// NewHandlers wires the handler set.
func NewHandlers(store *Store, tokens *TokenIssuer, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{store: store, tokens: tokens, logger: logger}
}

// writeError writes a standardized JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]any{
		"error":   http.StatusText(statusCode),
		"message": message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// toPost converts a stored row into the wire post shape.
func toPost(row PostRow) posts.Post {
	return posts.Post{
		ID:     row.ID,
		Title:  row.Title,
		Body:   row.Body,
		UserID: row.UserID,
		Views:  row.Views,
		Reactions: posts.Reactions{
			Likes:    row.Likes,
			Dislikes: row.Dislikes,
		},
		Tags: row.Tags,
	}
}

func toComment(row CommentRow) posts.Comment {
	return posts.Comment{
		ID:     row.ID,
		PostID: row.PostID,
		Body:   row.Body,
		Likes:  row.Likes,
		User: posts.CommentUser{
			ID:       row.UserID,
			Username: row.Username,
			FullName: row.FullName,
		},
	}
}

// pageParams reads limit/skip. limit=0 (or absent limit with skip only)
// means "no limit", matching the dialect the client relies on for its
// full-list fetch.
func pageParams(r *http.Request) (limit, skip int) {
	limit = 30
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			limit = n
		}
	}
	if raw := r.URL.Query().Get("skip"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			skip = n
		}
	}
	if limit == 0 {
		limit = -1 // sqlite: no limit
	}
	return limit, skip
}

// writeList renders the {posts,total,skip,limit} envelope, honoring the
// select=id projection.
func (h *Handlers) writeList(w http.ResponseWriter, r *http.Request, rows []PostRow, total, limit, skip int) {
	if limit < 0 {
		limit = total
	}
	if r.URL.Query().Get("select") == "id" {
		ids := make([]map[string]int, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, map[string]int{"id": row.ID})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"posts": ids, "total": total, "skip": skip, "limit": limit,
		})
		return
	}
	list := make([]posts.Post, 0, len(rows))
	for _, row := range rows {
		list = append(list, toPost(row))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"posts": list, "total": total, "skip": skip, "limit": limit,
	})
}

// ListPosts handles GET /posts.
func (h *Handlers) ListPosts(w http.ResponseWriter, r *http.Request) {
	limit, skip := pageParams(r)
	rows, total, err := h.store.ListPosts(r.Context(), limit, skip)
	if err != nil {
		h.serverError(w, "list posts", err)
		return
	}
	h.writeList(w, r, rows, total, limit, skip)
}

// SearchPosts handles GET /posts/search?q=.
func (h *Handlers) SearchPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit, skip := pageParams(r)
	rows, total, err := h.store.SearchPosts(r.Context(), q, limit, skip)
	if err != nil {
		h.serverError(w, "search posts", err)
		return
	}
	h.writeList(w, r, rows, total, limit, skip)
}

// PostsByUser handles GET /posts/user/{id}. An unknown user is 404, not an
// empty page.
func (h *Handlers) PostsByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if _, err := h.store.GetUser(r.Context(), userID); err != nil {
		if errors.Is(err, ErrNoRows) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.serverError(w, "get user", err)
		return
	}

	limit, skip := pageParams(r)
	rows, total, err := h.store.PostsByUser(r.Context(), userID, limit, skip)
	if err != nil {
		h.serverError(w, "list user posts", err)
		return
	}
	h.writeList(w, r, rows, total, limit, skip)
}

// GetPost handles GET /posts/{id}.
func (h *Handlers) GetPost(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid post id")
		return
	}
	row, err := h.store.GetPost(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			writeError(w, http.StatusNotFound, "post not found")
			return
		}
		h.serverError(w, "get post", err)
		return
	}
	writeJSON(w, http.StatusOK, toPost(row))
}

// GetComments handles GET /posts/{id}/comments.
func (h *Handlers) GetComments(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid post id")
		return
	}
	rows, err := h.store.Comments(r.Context(), id)
	if err != nil {
		h.serverError(w, "list comments", err)
		return
	}
	comments := make([]posts.Comment, 0, len(rows))
	for _, row := range rows {
		comments = append(comments, toComment(row))
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": comments, "total": len(comments)})
}

// GetUser handles GET /users/{id}.
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	u, err := h.store.GetUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.serverError(w, "get user", err)
		return
	}
	writeJSON(w, http.StatusOK, posts.UserSummary{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Image:     u.Image,
	})
}

// CreatePost handles POST /posts/add.
func (h *Handlers) CreatePost(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Title  string   `json:"title"`
		Body   string   `json:"body"`
		UserID int      `json:"userId"`
		Tags   []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Title == "" || payload.UserID == 0 {
		writeError(w, http.StatusBadRequest, "title and userId are required")
		return
	}
	row, err := h.store.CreatePost(r.Context(), payload.Title, payload.Body, payload.UserID, payload.Tags)
	if err != nil {
		h.serverError(w, "create post", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPost(row))
}

// UpdatePost handles PATCH /posts/{id}.
func (h *Handlers) UpdatePost(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid post id")
		return
	}
	var patch posts.PostPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	upd := PostUpdate{Title: patch.Title, Body: patch.Body, Views: patch.Views, Tags: patch.Tags}
	if patch.Reactions != nil {
		upd.Likes = &patch.Reactions.Likes
		upd.Dislikes = &patch.Reactions.Dislikes
	}
	row, err := h.store.UpdatePost(r.Context(), id, upd)
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			writeError(w, http.StatusNotFound, "post not found")
			return
		}
		h.serverError(w, "update post", err)
		return
	}
	writeJSON(w, http.StatusOK, toPost(row))
}

// DeletePost handles DELETE /posts/{id}.
func (h *Handlers) DeletePost(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid post id")
		return
	}
	if err := h.store.DeletePost(r.Context(), id); err != nil {
		if errors.Is(err, ErrNoRows) {
			writeError(w, http.StatusNotFound, "post not found")
			return
		}
		h.serverError(w, "delete post", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "isDeleted": true})
}

// UpdateCommentLikes handles PATCH /comments/{id}.
func (h *Handlers) UpdateCommentLikes(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid comment id")
		return
	}
	var payload struct {
		Likes *int `json:"likes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Likes == nil {
		writeError(w, http.StatusBadRequest, "likes is required")
		return
	}
	row, err := h.store.SetCommentLikes(r.Context(), id, *payload.Likes)
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			writeError(w, http.StatusNotFound, "comment not found")
			return
		}
		h.serverError(w, "update comment", err)
		return
	}
	writeJSON(w, http.StatusOK, toComment(row))
}

// Login handles POST /auth/login.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u, err := h.store.UserByUsername(r.Context(), payload.Username)
	if err != nil || u.Password != payload.Password {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	h.writeTokenPair(w, u)
}

// RefreshToken handles POST /auth/refresh.
func (h *Handlers) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refreshToken is required")
		return
	}
	userID, _, err := h.tokens.Verify(payload.RefreshToken, "refresh")
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	u, err := h.store.GetUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unknown user")
		return
	}
	h.writeTokenPair(w, u)
}

func (h *Handlers) writeTokenPair(w http.ResponseWriter, u User) {
	access, refresh, err := h.tokens.IssuePair(u.ID, u.Username)
	if err != nil {
		h.serverError(w, "issue tokens", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":           u.ID,
		"username":     u.Username,
		"firstName":    u.FirstName,
		"lastName":     u.LastName,
		"image":        u.Image,
		"accessToken":  access,
		"refreshToken": refresh,
	})
}

func (h *Handlers) serverError(w http.ResponseWriter, op string, err error) {
	h.logger.Error("handler failure", "op", op, "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}
