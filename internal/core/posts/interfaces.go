package posts

import "context"

// ListQuery describes one page of a search to the repository.
// Page is 1-based; Limit is the page size.
type ListQuery struct {
	Query string
	Field SearchField
	Page  int
	Limit int
}

// Context returns the search context the query belongs to.
func (q ListQuery) Context() SearchContext {
	return SearchContext{Query: q.Query, Field: q.Field}.Normalized()
}

// ListResult is the normalized page representation the stores rely on,
// regardless of whether the backend paginates by offset or page number.
type ListResult struct {
	Posts      []Post
	Total      int
	TotalPages int
}

// Repository is the data access contract for posts. Implementations wrap a
// remote REST backend and may route list fetches differently per search
// field (client-side cached filtering for title, server full-text for body,
// exact match for userId).
type Repository interface {
	// ListPosts fetches one page of posts for the given query.
	ListPosts(ctx context.Context, q ListQuery) (*ListResult, error)

	// GetPost retrieves full post detail (including tags) by id.
	GetPost(ctx context.Context, id int) (*Post, error)

	// GetPostIDs is the lightweight variant of ListPosts returning only ids.
	// Used for cross-page navigation probing.
	GetPostIDs(ctx context.Context, q ListQuery) ([]int, error)

	// GetComments retrieves the comments of a post.
	GetComments(ctx context.Context, postID int) ([]Comment, error)

	// GetUser retrieves an author summary. Returns nil without error when
	// the backend has no such user record exposed.
	GetUser(ctx context.Context, userID int) (*UserSummary, error)

	// UpdatePost applies a partial update and returns the updated post.
	UpdatePost(ctx context.Context, id int, patch PostPatch) (*Post, error)

	// CreatePost creates a post from a draft and returns the server copy
	// with its assigned id.
	CreatePost(ctx context.Context, draft Post) (*Post, error)

	// DeletePost removes a post.
	DeletePost(ctx context.Context, id int) error

	// SetViews overwrites a post's view counter. Fire-and-verify.
	SetViews(ctx context.Context, id, views int) error

	// SetReactions overwrites a post's reaction counters. Fire-and-verify.
	SetReactions(ctx context.Context, id int, r Reactions) error

	// SetCommentLikes overwrites a comment's like counter. Fire-and-verify.
	SetCommentLikes(ctx context.Context, commentID, likes int) error

	// InvalidateListCache drops any repository-internal full-list cache
	// backing client-side search.
	InvalidateListCache()
}

// Identity exposes the acting user to the browsing core. The core only
// observes it; it never drives login or token refresh.
type Identity interface {
	// CurrentUserID returns the authenticated user id, or ok=false when
	// browsing as a guest.
	CurrentUserID() (id int, ok bool)

	// OnChange registers a callback invoked whenever the acting identity
	// changes (login, logout, user switch). Returns an unsubscribe func.
	OnChange(fn func(id int, ok bool)) (cancel func())
}
