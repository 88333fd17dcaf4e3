package posts

import "strings"

// SearchField selects which post attribute a search query applies to.
// It determines the repository route used for list fetches.
type SearchField string

const (
	FieldTitle  SearchField = "title"
	FieldBody   SearchField = "body"
	FieldUserID SearchField = "userId"
)

// ParseSearchField validates a raw field value, typically read from
// persisted state. Returns false for anything that isn't a known field.
func ParseSearchField(s string) (SearchField, bool) {
	switch SearchField(s) {
	case FieldTitle, FieldBody, FieldUserID:
		return SearchField(s), true
	}
	return "", false
}

// SearchContext is the (query, field) pair that scopes both list results
// and the validity of position-keyed detail cache entries.
type SearchContext struct {
	Query string
	Field SearchField
}

// Normalized returns the context with the query trimmed and an empty
// field defaulted to title. Queries are always trimmed before being
// compared or sent.
func (c SearchContext) Normalized() SearchContext {
	c.Query = strings.TrimSpace(c.Query)
	if c.Field == "" {
		c.Field = FieldTitle
	}
	return c
}

// Reactions holds aggregate reaction counters for a post.
type Reactions struct {
	Likes    int `json:"likes"`
	Dislikes int `json:"dislikes"`
}

// Post is the canonical post shape exchanged with the repository.
// Identity is ID; a draft not yet created on the server has ID 0.
type Post struct {
	ID        int       `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	UserID    int       `json:"userId"`
	Views     int       `json:"views"`
	Reactions Reactions `json:"reactions"`
	Tags      []string  `json:"tags,omitempty"`
}

// IsDraft reports whether the post has not been assigned a server id yet.
func (p *Post) IsDraft() bool {
	return p.ID == 0
}

// CommentUser is the lightweight author reference embedded in comments.
type CommentUser struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	FullName string `json:"fullName,omitempty"`
}

// Comment is a single comment on a post.
type Comment struct {
	ID     int         `json:"id"`
	PostID int         `json:"postId"`
	Body   string      `json:"body"`
	Likes  int         `json:"likes"`
	User   CommentUser `json:"user"`
}

// UserSummary is the author info shown alongside a post detail.
type UserSummary struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Image     string `json:"image,omitempty"`
}

// ReactionKind is a per-user reaction toward a post.
type ReactionKind string

const (
	ReactionLike    ReactionKind = "like"
	ReactionDislike ReactionKind = "dislike"
)

// PostPatch is a partial update of a post. Nil fields are left unchanged.
// Tags uses nil for "unchanged" and an empty non-nil slice for "clear".
type PostPatch struct {
	Title     *string    `json:"title,omitempty"`
	Body      *string    `json:"body,omitempty"`
	Views     *int       `json:"views,omitempty"`
	Reactions *Reactions `json:"reactions,omitempty"`
	Tags      []string   `json:"tags,omitempty"`
}

// IsEmpty reports whether the patch would change nothing.
func (p PostPatch) IsEmpty() bool {
	return p.Title == nil && p.Body == nil && p.Views == nil &&
		p.Reactions == nil && p.Tags == nil
}

// Apply mutates target in place with the patch's non-nil fields.
func (p PostPatch) Apply(target *Post) {
	if target == nil {
		return
	}
	if p.Title != nil {
		target.Title = *p.Title
	}
	if p.Body != nil {
		target.Body = *p.Body
	}
	if p.Views != nil {
		target.Views = *p.Views
	}
	if p.Reactions != nil {
		target.Reactions = *p.Reactions
	}
	if p.Tags != nil {
		target.Tags = append([]string(nil), p.Tags...)
	}
}

// StringPtr returns a pointer to s, for building patches.
func StringPtr(s string) *string { return &s }

// IntPtr returns a pointer to n, for building patches.
func IntPtr(n int) *int { return &n }
