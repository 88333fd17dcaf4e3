// Package details owns the currently open post detail, a position-indexed
// cache of previously visited posts for prev/next navigation, the edit
// snapshot, and per-user reaction/like/view bookkeeping.
package details

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ZayatsMaxim/news-project/internal/core/posts"
	"github.com/ZayatsMaxim/news-project/internal/storage"
)

// positionCacheSize bounds how many visited posts are kept per search
// context. Entries are purged wholesale whenever the context changes, so
// the bound only matters for very long browsing sessions.
const positionCacheSize = 256

// ListMutator is the narrow slice of the list store the detail cache may
// call into, keeping the cross-store dependency direction explicit.
type ListMutator interface {
	UpdatePost(id int, patch posts.PostPatch)
	Remove(id int)
}

// Entry is a fully hydrated post detail. Position is the post's 1-based
// index within the current search context's global ordering, or 0 when the
// entry was not reached through list navigation (drafts, direct opens).
type Entry struct {
	Post     posts.Post
	User     *posts.UserSummary
	Comments []posts.Comment
	Position int
}

// EditSnapshot captures the editable fields of a post when it becomes the
// modal's subject, enabling unsaved-change detection and cancel/revert.
type EditSnapshot struct {
	Title string
	Body  string
	Tags  []string
}

// Cache resolves "the post at position P" or "the post with id X" into a
// hydrated detail and keeps it consistent through edits, reactions and
// navigation. Exactly one detail request is in flight at a time; starting
// a new load supersedes the previous one.
type Cache struct {
	repo   posts.Repository
	kv     storage.Store
	list   ListMutator
	logger *slog.Logger

	mu          sync.Mutex
	entries     *lru.Cache[int, *Entry]
	current     *Entry
	position    int
	requestedID int
	loading     bool
	snapshot    *EditSnapshot
	pendingView int

	gen    uint64
	cancel context.CancelFunc

	userKey string
	session sessionState
}

// New creates a detail cache. The list mutator mirrors view-count and edit
// changes into the list store; it may be nil in isolated tests.
func New(repo posts.Repository, kv storage.Store, list ListMutator, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	entries, _ := lru.New[int, *Entry](positionCacheSize)
	return &Cache{
		repo:    repo,
		kv:      kv,
		list:    list,
		logger:  logger,
		entries: entries,
		userKey: guestKey,
		session: newSessionState(),
	}
}

// Current returns a copy of the open detail entry, or ok=false when the
// modal is closed or still loading.
func (c *Cache) Current() (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Entry{}, false
	}
	return copyEntry(c.current), true
}

// Position returns the open post's 1-based position, or 0 when closed.
func (c *Cache) Position() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

// Loading reports whether a detail request is in flight.
func (c *Cache) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// LoadForModal resolves a post into a hydrated detail and makes it current.
// With postID set, the post is fetched by id; otherwise it is resolved by
// its position within the given search context. A matching cache entry is
// used without any network call. Returns (nil, nil) when the load was
// superseded by a newer one.
func (c *Cache) LoadForModal(ctx context.Context, position, postID int, sc posts.SearchContext) (*Entry, error) {
	sc = sc.Normalized()

	c.mu.Lock()
	if hit := c.lookupLocked(position, postID); hit != nil {
		// Opening a cached post still aborts any in-flight load for the
		// previously requested one.
		c.supersedeLocked()
		if hit.Position == 0 && position > 0 {
			hit.Position = position
			c.entries.Add(position, hit)
		}
		c.makeCurrentLocked(hit)
		out := copyEntry(hit)
		c.mu.Unlock()
		return &out, nil
	}

	c.supersedeLocked()
	fctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	gen := c.gen
	c.requestedID = postID
	c.loading = true
	c.mu.Unlock()

	post, err := c.fetchPost(fctx, position, postID, sc)
	if err != nil {
		// A cancellation from the caller's own context (rather than a
		// supersede) still has to clear the loading state.
		c.mu.Lock()
		if gen == c.gen {
			c.loading = false
			c.requestedID = 0
		}
		c.mu.Unlock()
		if posts.IsCancellation(err) {
			return nil, nil
		}
		c.logger.Error("error fetching post", "position", position, "post_id", postID, "error", err)
		return nil, fmt.Errorf("fetch post detail: %w", err)
	}

	// The requested id may have moved on while the fetch was in flight;
	// a superseded result must not touch the cache.
	c.mu.Lock()
	if gen != c.gen || (postID != 0 && c.requestedID != postID) {
		c.mu.Unlock()
		return nil, nil
	}
	c.mu.Unlock()

	user, comments := c.fetchEnrichments(fctx, post)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || (postID != 0 && c.requestedID != postID) {
		return nil, nil
	}
	entry := &Entry{Post: *post, User: user, Comments: comments, Position: position}
	if position > 0 {
		c.entries.Add(position, entry)
	}
	c.makeCurrentLocked(entry)
	c.logger.Debug("post detail loaded", "post_id", post.ID, "position", position)
	out := copyEntry(entry)
	return &out, nil
}

// Clear closes the modal: cancels any in-flight load and flushes the
// pending view increment for the post being closed.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.supersedeLocked()
	c.flushPendingViewLocked()
	c.current = nil
	c.position = 0
	c.loading = false
	c.requestedID = 0
	c.snapshot = nil
}

// ClearCache wipes all cached entries and closes the modal. Positions are
// meaningful only within one search context, so the coordinator calls this
// whenever the context changes; a stale current entry would be equally
// incoherent under the new context.
func (c *Cache) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.supersedeLocked()
	c.flushPendingViewLocked()
	c.entries.Purge()
	c.current = nil
	c.position = 0
	c.loading = false
	c.requestedID = 0
	c.snapshot = nil
}

// EditCurrent mutates the open post's editable fields in place. Tags nil
// leaves tags unchanged.
func (c *Cache) EditCurrent(title, body string, tags []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return
	}
	c.current.Post.Title = title
	c.current.Post.Body = body
	if tags != nil {
		c.current.Post.Tags = append([]string(nil), tags...)
	}
}

// SnapshotOriginal captures the open post's editable fields so a later
// RevertEdits can restore them.
func (c *Cache) SnapshotOriginal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.captureSnapshotLocked()
}

// RevertEdits restores the open post's editable fields from the snapshot.
func (c *Cache) RevertEdits() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.snapshot == nil {
		return
	}
	c.current.Post.Title = c.snapshot.Title
	c.current.Post.Body = c.snapshot.Body
	c.current.Post.Tags = append([]string(nil), c.snapshot.Tags...)
}

// HasUnsavedChanges reports whether the open post differs from its snapshot.
func (c *Cache) HasUnsavedChanges() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.snapshot == nil {
		return false
	}
	if c.current.Post.Title != c.snapshot.Title || c.current.Post.Body != c.snapshot.Body {
		return true
	}
	if len(c.current.Post.Tags) != len(c.snapshot.Tags) {
		return true
	}
	for i, tag := range c.current.Post.Tags {
		if tag != c.snapshot.Tags[i] {
			return true
		}
	}
	return false
}

// Save sends the open post's title/body/tags as a partial update. On
// success the cache entry is updated in place, the edit snapshot is
// refreshed, and the post is marked edited for this user. Returns the
// updated post, or nil when there is no matching post to save.
func (c *Cache) Save(ctx context.Context, postID int) (*posts.Post, error) {
	c.mu.Lock()
	if c.current == nil || c.current.Post.ID != postID {
		c.mu.Unlock()
		return nil, nil
	}
	patch := posts.PostPatch{
		Title: posts.StringPtr(c.current.Post.Title),
		Body:  posts.StringPtr(c.current.Post.Body),
	}
	if c.current.Post.Tags != nil {
		patch.Tags = append([]string(nil), c.current.Post.Tags...)
	}
	c.mu.Unlock()

	updated, err := c.repo.UpdatePost(ctx, postID, patch)
	if err != nil {
		if posts.IsCancellation(err) {
			return nil, nil
		}
		c.logger.Error("error saving post", "post_id", postID, "error", err)
		return nil, fmt.Errorf("save post: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry := c.findByIDLocked(postID); entry != nil {
		entry.Post.Title = updated.Title
		entry.Post.Body = updated.Body
		if updated.Tags != nil {
			entry.Post.Tags = append([]string(nil), updated.Tags...)
		}
		if entry == c.current {
			c.captureSnapshotLocked()
		}
	}
	c.session.Edited[postID] = true
	c.persistSessionLocked()
	out := *updated
	return &out, nil
}

// OpenForNewPost makes a synthetic draft (id 0) the current entry.
func (c *Cache) OpenForNewPost() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.supersedeLocked()
	c.flushPendingViewLocked()
	c.current = &Entry{Post: posts.Post{}, Comments: []posts.Comment{}}
	c.position = 0
	c.loading = false
	c.requestedID = 0
	c.captureSnapshotLocked()
}

// CreateFromDraft creates the current draft on the server under authorID
// and replaces it with the server-assigned post. Returns nil when the
// current entry is not a draft.
func (c *Cache) CreateFromDraft(ctx context.Context, authorID int) (*posts.Post, error) {
	c.mu.Lock()
	if c.current == nil || !c.current.Post.IsDraft() {
		c.mu.Unlock()
		return nil, nil
	}
	draft := c.current.Post
	draft.UserID = authorID
	opened := c.current
	c.mu.Unlock()

	created, err := c.repo.CreatePost(ctx, draft)
	if err != nil {
		if posts.IsCancellation(err) {
			return nil, nil
		}
		c.logger.Error("error creating post", "error", err)
		return nil, fmt.Errorf("create post: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == opened {
		c.current.Post = *created
		c.captureSnapshotLocked()
	}
	out := *created
	return &out, nil
}

// RemoveFromCache drops a deleted post everywhere the cache knows about it:
// position entries, the current modal, and the per-user bookkeeping sets.
func (c *Cache) RemoveFromCache(postID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, pos := range c.entries.Keys() {
		if entry, ok := c.entries.Peek(pos); ok && entry.Post.ID == postID {
			c.entries.Remove(pos)
		}
	}
	if c.current != nil && c.current.Post.ID == postID {
		c.current = nil
		c.position = 0
		c.snapshot = nil
	}
	if c.pendingView == postID {
		c.pendingView = 0
	}
	delete(c.session.Edited, postID)
	delete(c.session.Viewed, postID)
	delete(c.session.Reactions, postID)
	c.persistSessionLocked()
}

// supersedeLocked cancels any in-flight load and bumps the generation so a
// canceled-but-not-yet-observed resolution can never mutate state.
func (c *Cache) supersedeLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
}

// makeCurrentLocked installs an entry as the open detail, recapturing the
// edit snapshot and marking the view-increment for flush at the next
// transition.
func (c *Cache) makeCurrentLocked(entry *Entry) {
	c.flushPendingViewLocked()
	c.current = entry
	c.position = entry.Position
	c.loading = false
	c.requestedID = 0
	c.captureSnapshotLocked()
	c.pendingView = entry.Post.ID
}

func (c *Cache) captureSnapshotLocked() {
	if c.current == nil {
		c.snapshot = nil
		return
	}
	c.snapshot = &EditSnapshot{
		Title: c.current.Post.Title,
		Body:  c.current.Post.Body,
		Tags:  append([]string(nil), c.current.Post.Tags...),
	}
}

// lookupLocked finds a cache hit by post id when given, by position
// otherwise.
func (c *Cache) lookupLocked(position, postID int) *Entry {
	if postID != 0 {
		return c.findByIDLocked(postID)
	}
	if position > 0 {
		if entry, ok := c.entries.Get(position); ok {
			return entry
		}
	}
	return nil
}

func (c *Cache) findByIDLocked(postID int) *Entry {
	if c.current != nil && c.current.Post.ID == postID {
		return c.current
	}
	for _, entry := range c.entries.Values() {
		if entry.Post.ID == postID {
			return entry
		}
	}
	return nil
}

// fetchPost resolves the primary resource: by id when given, otherwise by
// treating the position as a one-item page within the search context.
func (c *Cache) fetchPost(ctx context.Context, position, postID int, sc posts.SearchContext) (*posts.Post, error) {
	if postID != 0 {
		return c.repo.GetPost(ctx, postID)
	}
	ids, err := c.repo.GetPostIDs(ctx, posts.ListQuery{
		Query: sc.Query,
		Field: sc.Field,
		Page:  position,
		Limit: 1,
	})
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, posts.ErrNotFound
	}
	return c.repo.GetPost(ctx, ids[0])
}

// fetchEnrichments loads the author and comments concurrently. Each failure
// is swallowed independently with a safe default so the primary content
// still renders; only cancellations stay unlogged.
func (c *Cache) fetchEnrichments(ctx context.Context, post *posts.Post) (*posts.UserSummary, []posts.Comment) {
	var (
		wg       sync.WaitGroup
		user     *posts.UserSummary
		comments []posts.Comment
	)

	if post.UserID != 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, err := c.repo.GetUser(ctx, post.UserID)
			if err != nil {
				if !posts.IsCancellation(err) {
					c.logger.Error("error fetching user", "user_id", post.UserID, "error", err)
				}
				return
			}
			user = u
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		cs, err := c.repo.GetComments(ctx, post.ID)
		if err != nil {
			if !posts.IsCancellation(err) {
				c.logger.Error("error fetching comments", "post_id", post.ID, "error", err)
			}
			return
		}
		comments = cs
	}()

	wg.Wait()
	if comments == nil {
		comments = []posts.Comment{}
	}
	return user, comments
}

func copyEntry(e *Entry) Entry {
	out := *e
	out.Post.Tags = append([]string(nil), e.Post.Tags...)
	out.Comments = append([]posts.Comment(nil), e.Comments...)
	return out
}
