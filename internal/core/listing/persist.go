package listing

import (
	"encoding/json"

	"github.com/ZayatsMaxim/news-project/internal/core/posts"
	"github.com/ZayatsMaxim/news-project/internal/storage"
)

// listStateKey is the fixed storage key for the persisted list snapshot.
const listStateKey = "newsreader:list"

type persistedList struct {
	Posts      []posts.Post      `json:"posts"`
	Page       int               `json:"page"`
	Query      string            `json:"query"`
	Field      posts.SearchField `json:"field"`
	Total      int               `json:"total"`
	TotalPages int               `json:"totalPages"`
}

// persistLocked writes the current state to session storage. Write failures
// are logged and swallowed; in-memory state stays authoritative.
func (s *Store) persistLocked() {
	blob, err := json.Marshal(persistedList{
		Posts:      s.posts,
		Page:       s.page,
		Query:      s.query,
		Field:      s.field,
		Total:      s.total,
		TotalPages: s.totalPages,
	})
	if err != nil {
		s.logger.Warn("failed to encode list state", "error", err)
		return
	}
	if err := s.kv.Set(listStateKey, string(blob)); err != nil {
		s.logger.Warn("failed to persist list state", "error", err)
	}
}

// hydrateLocked restores state from session storage. Each field is
// validated independently and falls back to its default, so one corrupt
// field never discards valid siblings. Returns false when nothing usable
// was stored.
func (s *Store) hydrateLocked() bool {
	raw, ok := s.kv.Get(listStateKey)
	if !ok {
		return false
	}
	fields, ok := storage.ParseFields(raw)
	if !ok {
		s.logger.Warn("persisted list state is corrupt, ignoring")
		return false
	}

	s.posts = storage.DecodeField(fields, "posts", []posts.Post{})
	s.page = storage.DecodeField(fields, "page", 1)
	if s.page < 1 {
		s.page = 1
	}
	s.query = storage.DecodeField(fields, "query", "")
	rawField := storage.DecodeField(fields, "field", string(posts.FieldTitle))
	if field, valid := posts.ParseSearchField(rawField); valid {
		s.field = field
	} else {
		s.field = posts.FieldTitle
	}
	s.total = storage.DecodeField(fields, "total", 0)
	if s.total < 0 {
		s.total = 0
	}
	s.totalPages = storage.DecodeField(fields, "totalPages", 0)
	if s.totalPages < 1 {
		s.totalPages = pagesAmount(s.total, s.limit)
	}
	return true
}
