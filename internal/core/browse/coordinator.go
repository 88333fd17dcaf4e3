// Package browse glues the list and detail stores together behind the
// single surface the UI talks to, enforcing the invariants that span both:
// position-cache validity per search context, list/modal consistency after
// edits and deletes, and cross-page prev/next navigation.
package browse

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ZayatsMaxim/news-project/internal/core/details"
	"github.com/ZayatsMaxim/news-project/internal/core/listing"
	"github.com/ZayatsMaxim/news-project/internal/core/posts"
)

// Coordinator orchestrates the list store and detail cache. It owns no
// state of its own.
type Coordinator struct {
	list     *listing.Store
	details  *details.Cache
	repo     posts.Repository
	identity posts.Identity
	logger   *slog.Logger

	unsubscribe func()
}

// New wires a coordinator. When identity is non-nil the coordinator
// observes it and reloads the per-user reaction state on every change.
func New(list *listing.Store, cache *details.Cache, repo posts.Repository, identity posts.Identity, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		list:     list,
		details:  cache,
		repo:     repo,
		identity: identity,
		logger:   logger,
	}
	if identity != nil {
		id, ok := identity.CurrentUserID()
		cache.LoadReactionsForUser(id, ok)
		c.unsubscribe = identity.OnChange(func(id int, ok bool) {
			cache.LoadReactionsForUser(id, ok)
		})
	}
	return c
}

// Close detaches the coordinator from the identity provider.
func (c *Coordinator) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

// List exposes the list store's read state for rendering.
func (c *Coordinator) List() *listing.Store { return c.list }

// Details exposes the detail cache's read state for rendering.
func (c *Coordinator) Details() *details.Cache { return c.details }

// EnsureLoaded hydrates or fetches the initial list.
func (c *Coordinator) EnsureLoaded(ctx context.Context) error {
	return c.list.EnsureLoaded(ctx)
}

// Search starts a new search. Cached detail positions are only meaningful
// within one search context, so the detail cache is purged first.
func (c *Coordinator) Search(ctx context.Context, query string, field posts.SearchField) error {
	c.details.ClearCache()
	return c.list.Search(ctx, query, field)
}

// Refresh refetches the current page, likewise invalidating the detail
// cache since repository-side caches are dropped too.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.details.ClearCache()
	return c.list.Refresh(ctx)
}

// LoadPage moves the list to page n.
func (c *Coordinator) LoadPage(ctx context.Context, n int) error {
	return c.list.LoadPage(ctx, n)
}

// OpenPostForModal opens the post at in-page index listIndex, translating
// it into the post's global 1-based position within the current search so
// prev/next can walk across page boundaries.
func (c *Coordinator) OpenPostForModal(ctx context.Context, postID, listIndex int) (*details.Entry, error) {
	snap := c.list.Snapshot()
	position := (snap.Page-1)*snap.Limit + listIndex + 1
	return c.details.LoadForModal(ctx, position, postID, c.list.Context())
}

// CloseModal closes the detail view.
func (c *Coordinator) CloseModal() {
	c.details.Clear()
}

// HasPrevPost reports whether a previous post exists in the current search.
func (c *Coordinator) HasPrevPost() bool {
	return c.details.Position() > 1
}

// HasNextPost reports whether a next post exists in the current search.
func (c *Coordinator) HasNextPost() bool {
	pos := c.details.Position()
	total := c.list.Snapshot().Total
	return total > 0 && pos > 0 && pos < total
}

// GoToPrevPost navigates to the previous position; no-op at the start.
func (c *Coordinator) GoToPrevPost(ctx context.Context) (*details.Entry, error) {
	if !c.HasPrevPost() {
		return nil, nil
	}
	return c.details.LoadForModal(ctx, c.details.Position()-1, 0, c.list.Context())
}

// GoToNextPost navigates to the next position; no-op at the end.
func (c *Coordinator) GoToNextPost(ctx context.Context) (*details.Entry, error) {
	if !c.HasNextPost() {
		return nil, nil
	}
	return c.details.LoadForModal(ctx, c.details.Position()+1, 0, c.list.Context())
}

// SaveAndSync saves the detail edits and mirrors the new title/body into
// the list so the card view reflects the edit without a refetch. Returns
// whether the save happened.
func (c *Coordinator) SaveAndSync(ctx context.Context, postID int) (bool, error) {
	updated, err := c.details.Save(ctx, postID)
	if err != nil {
		return false, err
	}
	if updated == nil {
		return false, nil
	}
	c.list.UpdatePost(postID, posts.PostPatch{
		Title: posts.StringPtr(updated.Title),
		Body:  posts.StringPtr(updated.Body),
	})
	return true, nil
}

// DeletePost deletes the post, removes it from both stores, closes the
// modal, re-clamps the current page if it now exceeds the page count, and
// refreshes the list.
func (c *Coordinator) DeletePost(ctx context.Context, postID int) error {
	if err := c.repo.DeletePost(ctx, postID); err != nil {
		c.logger.Error("error deleting post", "post_id", postID, "error", err)
		return fmt.Errorf("delete post: %w", err)
	}

	c.list.Remove(postID)
	c.details.RemoveFromCache(postID)
	c.details.Clear()

	// The repository may serve searches out of a cached full result set;
	// the deleted post must not come back out of it on the refetch.
	c.repo.InvalidateListCache()
	snap := c.list.Snapshot()
	page := snap.Page
	if page > snap.TotalPages {
		page = snap.TotalPages
	}
	return c.list.LoadPage(ctx, page)
}

// OpenForNewPost opens a draft in the detail view.
func (c *Coordinator) OpenForNewPost() {
	c.details.OpenForNewPost()
}

// CreateFromDraft creates the open draft under the acting user (guest
// drafts are created with author id 0 and left to the backend to reject).
func (c *Coordinator) CreateFromDraft(ctx context.Context) (*posts.Post, error) {
	var authorID int
	if c.identity != nil {
		authorID, _ = c.identity.CurrentUserID()
	}
	return c.details.CreateFromDraft(ctx, authorID)
}
