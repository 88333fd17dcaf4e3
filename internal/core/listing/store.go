// Package listing owns the paginated/searched view of posts: the current
// page, search context, results and totals, persisted across reloads.
package listing

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/ZayatsMaxim/news-project/internal/core/posts"
	"github.com/ZayatsMaxim/news-project/internal/storage"
)

// Page is a read snapshot of the store for rendering.
type Page struct {
	Posts      []posts.Post
	Page       int
	Limit      int
	Total      int
	TotalPages int
	Query      string
	Field      posts.SearchField
}

// Store maintains the current paginated/searched list of posts.
// Every fetch cancels any still-in-flight prior fetch (last-caller-wins);
// a response belonging to a superseded request never mutates state.
type Store struct {
	repo   posts.Repository
	kv     storage.Store
	logger *slog.Logger
	limit  int

	mu         sync.Mutex
	posts      []posts.Post
	page       int
	total      int
	totalPages int
	query      string
	field      posts.SearchField
	loading    bool
	loaded     bool

	gen    uint64
	cancel context.CancelFunc
}

// New creates a list store with the given page size. The page size is
// constant for the store's lifetime.
func New(repo posts.Repository, kv storage.Store, limit int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if limit < 1 {
		limit = 9
	}
	return &Store{
		repo:       repo,
		kv:         kv,
		logger:     logger,
		limit:      limit,
		page:       1,
		totalPages: 1,
		field:      posts.FieldTitle,
	}
}

// Snapshot returns a copy of the current list state.
func (s *Store) Snapshot() Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Page{
		Posts:      append([]posts.Post(nil), s.posts...),
		Page:       s.page,
		Limit:      s.limit,
		Total:      s.total,
		TotalPages: s.totalPages,
		Query:      s.query,
		Field:      s.field,
	}
}

// Context returns the search context scoping the current results.
func (s *Store) Context() posts.SearchContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return posts.SearchContext{Query: s.query, Field: s.field}
}

// Loading reports whether a fetch is in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Search sets a new query (trimmed) and optionally a new field, resets to
// the first page and refetches. The reset to page 1 happens even when the
// query is unchanged; callers gate this on actual user intent.
func (s *Store) Search(ctx context.Context, query string, field posts.SearchField) error {
	s.mu.Lock()
	s.query = strings.TrimSpace(query)
	if field != "" {
		s.field = field
	}
	s.page = 1
	s.mu.Unlock()
	return s.fetch(ctx)
}

// LoadPage moves to page n and refetches with the same query/field.
func (s *Store) LoadPage(ctx context.Context, n int) error {
	s.mu.Lock()
	if n < 1 {
		n = 1
	}
	s.page = n
	s.mu.Unlock()
	return s.fetch(ctx)
}

// Refresh refetches the current page without resetting pagination, after
// instructing the repository to drop its internal list caches.
func (s *Store) Refresh(ctx context.Context) error {
	s.repo.InvalidateListCache()
	return s.fetch(ctx)
}

// EnsureLoaded hydrates the store from persisted state on first use, or
// fetches when nothing usable was stored. Returns without network I/O when
// hydration succeeds.
func (s *Store) EnsureLoaded(ctx context.Context) error {
	s.mu.Lock()
	if s.loaded {
		s.mu.Unlock()
		return nil
	}
	s.loaded = true
	if s.hydrateLocked() {
		s.mu.Unlock()
		s.logger.Debug("list state restored from session storage")
		return nil
	}
	s.mu.Unlock()
	return s.fetch(ctx)
}

// UpdatePost patches a cached post in place, keeping the list view in sync
// with edits made in the detail modal without a refetch. No-op when id is
// not on the current page.
func (s *Store) UpdatePost(id int, patch posts.PostPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.posts {
		if s.posts[i].ID == id {
			patch.Apply(&s.posts[i])
			s.persistLocked()
			return
		}
	}
}

// Remove drops a deleted post from the list, decrements the total and
// recomputes the page count.
func (s *Store) Remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.posts {
		if s.posts[i].ID == id {
			s.posts = append(s.posts[:i], s.posts[i+1:]...)
			break
		}
	}
	if s.total > 0 {
		s.total--
	}
	s.totalPages = pagesAmount(s.total, s.limit)
	s.persistLocked()
}

// fetch issues the list request for the current page/query/field. It owns
// the store's cancellation state: starting a fetch cancels the previous
// in-flight one, and only the most recently issued fetch may apply results.
func (s *Store) fetch(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	fctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.gen++
	gen := s.gen
	s.loading = true
	s.loaded = true

	q := posts.ListQuery{Query: s.query, Field: s.field, Page: s.page, Limit: s.limit}

	// Non-numeric userId queries can never match; resolve to the canonical
	// empty page without calling the repository.
	if q.Field == posts.FieldUserID && q.Query != "" {
		if _, err := strconv.Atoi(q.Query); err != nil {
			s.applyEmptyLocked()
			s.loading = false
			s.mu.Unlock()
			return nil
		}
	}
	s.mu.Unlock()

	res, err := s.repo.ListPosts(fctx, q)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		// Superseded by a newer fetch; its result is discarded.
		return nil
	}
	s.loading = false
	if err != nil {
		if posts.IsCancellation(err) {
			return nil
		}
		// A vanished user for a userId-scoped search means zero results,
		// not a failure.
		if q.Field == posts.FieldUserID && posts.IsNotFound(err) {
			s.applyEmptyLocked()
			return nil
		}
		s.logger.Error("error fetching posts", "query", q.Query, "field", q.Field, "page", q.Page, "error", err)
		return fmt.Errorf("fetch posts: %w", err)
	}

	s.posts = res.Posts
	s.total = res.Total
	if res.TotalPages > 0 {
		s.totalPages = res.TotalPages
	} else {
		s.totalPages = pagesAmount(res.Total, s.limit)
	}
	s.persistLocked()
	return nil
}

func (s *Store) applyEmptyLocked() {
	s.posts = nil
	s.total = 0
	s.totalPages = 1
	s.persistLocked()
}

func pagesAmount(total, limit int) int {
	if total <= 0 {
		return 1
	}
	return (total + limit - 1) / limit
}
