package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ZayatsMaxim/news-project/internal/core/posts"
)

// offsetList is the list response body in the offset dialect.
type offsetList struct {
	Posts []posts.Post `json:"posts"`
	Total int          `json:"total"`
	Skip  int          `json:"skip"`
	Limit int          `json:"limit"`
}

// offsetIDList decodes the select=id variant of offsetList.
type offsetIDList struct {
	Posts []struct {
		ID int `json:"id"`
	} `json:"posts"`
	Total int `json:"total"`
}

// ListPosts fetches one page, routing by search field: client-side cached
// filtering for title, server full-text for body, exact user match for
// userId, plain pagination for an empty query.
func (c *Client) ListPosts(ctx context.Context, q posts.ListQuery) (*posts.ListResult, error) {
	q = normalizeQuery(q)

	if q.Query != "" && q.Field == posts.FieldTitle {
		return c.searchTitle(ctx, q)
	}

	path, query := c.listRoute(q)
	switch c.style {
	case StylePage:
		var page []posts.Post
		header, err := c.do(ctx, "listPosts", http.MethodGet, path, query, nil, &page)
		if err != nil {
			return nil, err
		}
		total := headerTotal(header, len(page))
		return &posts.ListResult{Posts: page, Total: total, TotalPages: totalPages(total, q.Limit)}, nil
	default:
		var body offsetList
		if _, err := c.do(ctx, "listPosts", http.MethodGet, path, query, nil, &body); err != nil {
			return nil, err
		}
		return &posts.ListResult{
			Posts:      body.Posts,
			Total:      body.Total,
			TotalPages: totalPages(body.Total, q.Limit),
		}, nil
	}
}

// GetPostIDs is the lightweight ids-only list used to resolve a position
// into a post without transferring whole pages.
func (c *Client) GetPostIDs(ctx context.Context, q posts.ListQuery) ([]int, error) {
	q = normalizeQuery(q)

	if q.Query != "" && q.Field == posts.FieldTitle {
		res, err := c.searchTitle(ctx, q)
		if err != nil {
			return nil, err
		}
		return postIDs(res.Posts), nil
	}

	path, query := c.listRoute(q)
	switch c.style {
	case StylePage:
		var page []posts.Post
		if _, err := c.do(ctx, "getPostIds", http.MethodGet, path, query, nil, &page); err != nil {
			return nil, err
		}
		return postIDs(page), nil
	default:
		query.Set("select", "id")
		var body offsetIDList
		if _, err := c.do(ctx, "getPostIds", http.MethodGet, path, query, nil, &body); err != nil {
			return nil, err
		}
		ids := make([]int, 0, len(body.Posts))
		for _, p := range body.Posts {
			ids = append(ids, p.ID)
		}
		return ids, nil
	}
}

// listRoute builds the path and pagination params for server-side list
// fetches (everything except title search).
func (c *Client) listRoute(q posts.ListQuery) (string, url.Values) {
	query := url.Values{}
	switch c.style {
	case StylePage:
		query.Set("_page", strconv.Itoa(q.Page))
		query.Set("_limit", strconv.Itoa(q.Limit))
	default:
		query.Set("limit", strconv.Itoa(q.Limit))
		query.Set("skip", strconv.Itoa((q.Page-1)*q.Limit))
	}

	if q.Query == "" {
		return "/posts", query
	}
	switch q.Field {
	case posts.FieldUserID:
		if c.style == StylePage {
			query.Set("userId", q.Query)
			return "/posts", query
		}
		return "/posts/user/" + url.PathEscape(q.Query), query
	default: // body full-text
		query.Set("q", q.Query)
		if c.style == StylePage {
			return "/posts", query
		}
		return "/posts/search", query
	}
}

// searchTitle filters the cached full list by title substring and slices
// out the requested page.
func (c *Client) searchTitle(ctx context.Context, q posts.ListQuery) (*posts.ListResult, error) {
	all, err := c.allPosts(ctx)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(q.Query)
	var filtered []posts.Post
	for _, p := range all {
		if strings.Contains(strings.ToLower(p.Title), needle) {
			filtered = append(filtered, p)
		}
	}

	start := (q.Page - 1) * q.Limit
	if start > len(filtered) {
		start = len(filtered)
	}
	end := start + q.Limit
	if end > len(filtered) {
		end = len(filtered)
	}

	return &posts.ListResult{
		Posts:      append([]posts.Post(nil), filtered[start:end]...),
		Total:      len(filtered),
		TotalPages: totalPages(len(filtered), q.Limit),
	}, nil
}

// allPosts returns the full-list cache, fetching it on first use.
func (c *Client) allPosts(ctx context.Context) ([]posts.Post, error) {
	c.mu.Lock()
	cached := c.titleCache
	c.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	var all []posts.Post
	switch c.style {
	case StylePage:
		if _, err := c.do(ctx, "listAllPosts", http.MethodGet, "/posts", nil, nil, &all); err != nil {
			return nil, err
		}
	default:
		query := url.Values{"limit": {"0"}}
		var body offsetList
		if _, err := c.do(ctx, "listAllPosts", http.MethodGet, "/posts", query, nil, &body); err != nil {
			return nil, err
		}
		all = body.Posts
	}

	c.mu.Lock()
	c.titleCache = all
	c.mu.Unlock()
	c.logger.Debug("full post list cached for title search", "count", len(all))
	return all, nil
}

// InvalidateListCache drops the full-list cache backing title search.
func (c *Client) InvalidateListCache() {
	c.mu.Lock()
	c.titleCache = nil
	c.mu.Unlock()
}

// GetPost retrieves full post detail including tags.
func (c *Client) GetPost(ctx context.Context, id int) (*posts.Post, error) {
	var post posts.Post
	if _, err := c.do(ctx, "getPost", http.MethodGet, fmt.Sprintf("/posts/%d", id), nil, nil, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// GetComments retrieves a post's comments.
func (c *Client) GetComments(ctx context.Context, postID int) ([]posts.Comment, error) {
	switch c.style {
	case StylePage:
		var comments []posts.Comment
		query := url.Values{"postId": {strconv.Itoa(postID)}}
		if _, err := c.do(ctx, "getComments", http.MethodGet, "/comments", query, nil, &comments); err != nil {
			return nil, err
		}
		return comments, nil
	default:
		var body struct {
			Comments []posts.Comment `json:"comments"`
		}
		if _, err := c.do(ctx, "getComments", http.MethodGet, fmt.Sprintf("/posts/%d/comments", postID), nil, nil, &body); err != nil {
			return nil, err
		}
		return body.Comments, nil
	}
}

// GetUser retrieves an author summary. A missing user is not an error;
// the detail view simply renders without author info.
func (c *Client) GetUser(ctx context.Context, userID int) (*posts.UserSummary, error) {
	var user posts.UserSummary
	if _, err := c.do(ctx, "getUser", http.MethodGet, fmt.Sprintf("/users/%d", userID), nil, nil, &user); err != nil {
		if posts.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// UpdatePost applies a partial update.
func (c *Client) UpdatePost(ctx context.Context, id int, patch posts.PostPatch) (*posts.Post, error) {
	var updated posts.Post
	if _, err := c.do(ctx, "updatePost", http.MethodPatch, fmt.Sprintf("/posts/%d", id), nil, patch, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// CreatePost creates a post and returns the server copy with its id.
func (c *Client) CreatePost(ctx context.Context, draft posts.Post) (*posts.Post, error) {
	path := "/posts/add"
	if c.style == StylePage {
		path = "/posts"
	}
	payload := struct {
		Title  string   `json:"title"`
		Body   string   `json:"body"`
		UserID int      `json:"userId"`
		Tags   []string `json:"tags,omitempty"`
	}{draft.Title, draft.Body, draft.UserID, draft.Tags}

	var created posts.Post
	if _, err := c.do(ctx, "createPost", http.MethodPost, path, nil, payload, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// DeletePost removes a post.
func (c *Client) DeletePost(ctx context.Context, id int) error {
	_, err := c.do(ctx, "deletePost", http.MethodDelete, fmt.Sprintf("/posts/%d", id), nil, nil, nil)
	return err
}

// SetViews overwrites a post's view counter.
func (c *Client) SetViews(ctx context.Context, id, views int) error {
	patch := posts.PostPatch{Views: posts.IntPtr(views)}
	_, err := c.do(ctx, "setViews", http.MethodPatch, fmt.Sprintf("/posts/%d", id), nil, patch, nil)
	return err
}

// SetReactions overwrites a post's reaction counters.
func (c *Client) SetReactions(ctx context.Context, id int, r posts.Reactions) error {
	patch := posts.PostPatch{Reactions: &r}
	_, err := c.do(ctx, "setReactions", http.MethodPatch, fmt.Sprintf("/posts/%d", id), nil, patch, nil)
	return err
}

// SetCommentLikes overwrites a comment's like counter.
func (c *Client) SetCommentLikes(ctx context.Context, commentID, likes int) error {
	payload := struct {
		Likes int `json:"likes"`
	}{likes}
	_, err := c.do(ctx, "setCommentLikes", http.MethodPatch, fmt.Sprintf("/comments/%d", commentID), nil, payload, nil)
	return err
}

func normalizeQuery(q posts.ListQuery) posts.ListQuery {
	sc := q.Context()
	q.Query = sc.Query
	q.Field = sc.Field
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 9
	}
	return q
}

func headerTotal(header http.Header, fallback int) int {
	if raw := header.Get("X-Total-Count"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			return n
		}
	}
	return fallback
}

func totalPages(total, limit int) int {
	if total <= 0 || limit <= 0 {
		return 1
	}
	return (total + limit - 1) / limit
}

func postIDs(list []posts.Post) []int {
	ids := make([]int, 0, len(list))
	for _, p := range list {
		ids = append(ids, p.ID)
	}
	return ids
}
