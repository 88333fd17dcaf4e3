package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoRows is returned by lookups when the row does not exist.
var ErrNoRows = errors.New("server: no rows")

// Store wraps the backend database with the queries the handlers need.
type Store struct {
	db *sql.DB
}

// NewStore creates a store over an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// User is a stored account row.
type User struct {
	ID        int
	Username  string
	Password  string
	FirstName string
	LastName  string
	Image     string
}

// PostRow is a stored post row.
type PostRow struct {
	ID       int
	Title    string
	Body     string
	UserID   int
	Views    int
	Likes    int
	Dislikes int
	Tags     []string
}

// CommentRow is a stored comment row.
type CommentRow struct {
	ID       int
	PostID   int
	Body     string
	Likes    int
	UserID   int
	Username string
	FullName string
}

const postColumns = "id, title, body, user_id, views, likes, dislikes, tags"

func scanPost(row interface{ Scan(...any) error }) (PostRow, error) {
	var p PostRow
	var tags string
	if err := row.Scan(&p.ID, &p.Title, &p.Body, &p.UserID, &p.Views, &p.Likes, &p.Dislikes, &tags); err != nil {
		return PostRow{}, err
	}
	if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
		p.Tags = nil
	}
	return p, nil
}

func (s *Store) queryPosts(ctx context.Context, where string, args []any, limit, skip int) ([]PostRow, int, error) {
	var total int
	countQ := "SELECT COUNT(*) FROM posts " + where
	if err := s.db.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}

	q := fmt.Sprintf("SELECT %s FROM posts %s ORDER BY id LIMIT ? OFFSET ?", postColumns, where)
	rows, err := s.db.QueryContext(ctx, q, append(args, limit, skip)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	out := []PostRow{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// ListPosts returns a page of all posts plus the total count.
func (s *Store) ListPosts(ctx context.Context, limit, skip int) ([]PostRow, int, error) {
	return s.queryPosts(ctx, "", nil, limit, skip)
}

// SearchPosts matches the query against title and body, case-insensitively.
func (s *Store) SearchPosts(ctx context.Context, query string, limit, skip int) ([]PostRow, int, error) {
	pattern := "%" + strings.ToLower(query) + "%"
	where := "WHERE lower(title) LIKE ? OR lower(body) LIKE ?"
	return s.queryPosts(ctx, where, []any{pattern, pattern}, limit, skip)
}

// PostsByUser returns a page of one author's posts. The caller is expected
// to have checked the user exists.
func (s *Store) PostsByUser(ctx context.Context, userID, limit, skip int) ([]PostRow, int, error) {
	return s.queryPosts(ctx, "WHERE user_id = ?", []any{userID}, limit, skip)
}

// GetPost fetches a single post by id.
func (s *Store) GetPost(ctx context.Context, id int) (PostRow, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM posts WHERE id = ?", postColumns), id)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return PostRow{}, ErrNoRows
	}
	return p, err
}

// CreatePost inserts a post and returns it with its assigned id.
func (s *Store) CreatePost(ctx context.Context, title, body string, userID int, tags []string) (PostRow, error) {
	if tags == nil {
		tags = []string{}
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return PostRow{}, err
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO posts (title, body, user_id, tags) VALUES (?, ?, ?, ?)",
		title, body, userID, string(encoded))
	if err != nil {
		return PostRow{}, fmt.Errorf("insert post: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return PostRow{}, err
	}
	return s.GetPost(ctx, int(id))
}

// PostUpdate carries the mutable post fields; nil means leave unchanged.
type PostUpdate struct {
	Title    *string
	Body     *string
	Views    *int
	Likes    *int
	Dislikes *int
	Tags     []string
}

// UpdatePost applies a partial update and returns the resulting row.
func (s *Store) UpdatePost(ctx context.Context, id int, upd PostUpdate) (PostRow, error) {
	sets := []string{}
	args := []any{}
	if upd.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *upd.Title)
	}
	if upd.Body != nil {
		sets = append(sets, "body = ?")
		args = append(args, *upd.Body)
	}
	if upd.Views != nil {
		sets = append(sets, "views = ?")
		args = append(args, *upd.Views)
	}
	if upd.Likes != nil {
		sets = append(sets, "likes = ?")
		args = append(args, *upd.Likes)
	}
	if upd.Dislikes != nil {
		sets = append(sets, "dislikes = ?")
		args = append(args, *upd.Dislikes)
	}
	if upd.Tags != nil {
		encoded, err := json.Marshal(upd.Tags)
		if err != nil {
			return PostRow{}, err
		}
		sets = append(sets, "tags = ?")
		args = append(args, string(encoded))
	}
	if len(sets) > 0 {
		q := "UPDATE posts SET " + strings.Join(sets, ", ") + " WHERE id = ?"
		res, err := s.db.ExecContext(ctx, q, append(args, id)...)
		if err != nil {
			return PostRow{}, fmt.Errorf("update post: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return PostRow{}, ErrNoRows
		}
	}
	return s.GetPost(ctx, id)
}

// DeletePost removes a post; its comments cascade.
func (s *Store) DeletePost(ctx context.Context, id int) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM posts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNoRows
	}
	return nil
}

// Comments returns all comments on a post.
func (s *Store) Comments(ctx context.Context, postID int) ([]CommentRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, post_id, body, likes, user_id, username, full_name FROM comments WHERE post_id = ? ORDER BY id",
		postID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	out := []CommentRow{}
	for rows.Next() {
		var c CommentRow
		if err := rows.Scan(&c.ID, &c.PostID, &c.Body, &c.Likes, &c.UserID, &c.Username, &c.FullName); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetCommentLikes overwrites a comment's like count.
func (s *Store) SetCommentLikes(ctx context.Context, id, likes int) (CommentRow, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE comments SET likes = ? WHERE id = ?", likes, id)
	if err != nil {
		return CommentRow{}, fmt.Errorf("update comment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return CommentRow{}, ErrNoRows
	}
	var c CommentRow
	row := s.db.QueryRowContext(ctx,
		"SELECT id, post_id, body, likes, user_id, username, full_name FROM comments WHERE id = ?", id)
	if err := row.Scan(&c.ID, &c.PostID, &c.Body, &c.Likes, &c.UserID, &c.Username, &c.FullName); err != nil {
		return CommentRow{}, err
	}
	return c, nil
}

// GetUser fetches an account by id.
func (s *Store) GetUser(ctx context.Context, id int) (User, error) {
	var u User
	row := s.db.QueryRowContext(ctx,
		"SELECT id, username, password, first_name, last_name, image FROM users WHERE id = ?", id)
	err := row.Scan(&u.ID, &u.Username, &u.Password, &u.FirstName, &u.LastName, &u.Image)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNoRows
	}
	return u, err
}

// UserByUsername fetches an account by username for login.
func (s *Store) UserByUsername(ctx context.Context, username string) (User, error) {
	var u User
	row := s.db.QueryRowContext(ctx,
		"SELECT id, username, password, first_name, last_name, image FROM users WHERE username = ?", username)
	err := row.Scan(&u.ID, &u.Username, &u.Password, &u.FirstName, &u.LastName, &u.Image)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNoRows
	}
	return u, err
}
