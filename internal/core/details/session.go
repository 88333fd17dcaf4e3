package details

import (
	"encoding/json"
	"fmt"

	"github.com/ZayatsMaxim/news-project/internal/core/posts"
	"github.com/ZayatsMaxim/news-project/internal/storage"
)

// guestKey is the bookkeeping bucket used while unauthenticated.
const guestKey = "guest"

// sessionStateKeyPrefix prefixes the per-user storage key.
const sessionStateKeyPrefix = "newsreader:session:"

// sessionState is the per-user bookkeeping persisted across reloads within
// one session: which posts were edited and viewed, the user's reaction per
// post, and which comments were liked.
type sessionState struct {
	Edited        map[int]bool
	Viewed        map[int]bool
	Reactions     map[int]posts.ReactionKind
	LikedComments map[int]bool
}

func newSessionState() sessionState {
	return sessionState{
		Edited:        make(map[int]bool),
		Viewed:        make(map[int]bool),
		Reactions:     make(map[int]posts.ReactionKind),
		LikedComments: make(map[int]bool),
	}
}

// persistedSession is the storage wire format. Sets are serialized as id
// arrays, reactions as an id→kind object.
type persistedSession struct {
	EditedPostIDs   []int                         `json:"editedPostIds"`
	ViewedPostIDs   []int                         `json:"viewedPostIds"`
	UserReactions   map[string]posts.ReactionKind `json:"userReactions"`
	LikedCommentIDs []int                         `json:"likedCommentIds"`
}

// LoadReactionsForUser repopulates the in-memory reaction/like/view state
// from the persisted slice of the given user (ok=false selects the guest
// bucket). Called whenever the acting identity changes.
func (c *Cache) LoadReactionsForUser(userID int, ok bool) {
	key := guestKey
	if ok {
		key = fmt.Sprintf("user:%d", userID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.userKey = key
	c.session = c.loadSessionLocked()
	c.logger.Debug("session state loaded",
		"user", key,
		"viewed", len(c.session.Viewed),
		"reactions", len(c.session.Reactions))
}

// loadSessionLocked reads the acting user's persisted slice, validating
// each field independently so one corrupt field never discards the rest.
func (c *Cache) loadSessionLocked() sessionState {
	state := newSessionState()
	raw, ok := c.kv.Get(sessionStateKeyPrefix + c.userKey)
	if !ok {
		return state
	}
	fields, ok := storage.ParseFields(raw)
	if !ok {
		c.logger.Warn("persisted session state is corrupt, ignoring", "user", c.userKey)
		return state
	}

	for _, id := range storage.DecodeField(fields, "editedPostIds", []int{}) {
		state.Edited[id] = true
	}
	for _, id := range storage.DecodeField(fields, "viewedPostIds", []int{}) {
		state.Viewed[id] = true
	}
	for rawID, kind := range storage.DecodeField(fields, "userReactions", map[string]posts.ReactionKind{}) {
		var id int
		if _, err := fmt.Sscanf(rawID, "%d", &id); err != nil {
			continue
		}
		if kind != posts.ReactionLike && kind != posts.ReactionDislike {
			continue
		}
		state.Reactions[id] = kind
	}
	for _, id := range storage.DecodeField(fields, "likedCommentIds", []int{}) {
		state.LikedComments[id] = true
	}
	return state
}

// persistSessionLocked writes the acting user's slice back. Write failures
// are logged and swallowed; in-memory state stays authoritative.
func (c *Cache) persistSessionLocked() {
	out := persistedSession{
		EditedPostIDs:   setToSlice(c.session.Edited),
		ViewedPostIDs:   setToSlice(c.session.Viewed),
		UserReactions:   make(map[string]posts.ReactionKind, len(c.session.Reactions)),
		LikedCommentIDs: setToSlice(c.session.LikedComments),
	}
	for id, kind := range c.session.Reactions {
		out.UserReactions[fmt.Sprintf("%d", id)] = kind
	}

	blob, err := json.Marshal(out)
	if err != nil {
		c.logger.Warn("failed to encode session state", "user", c.userKey, "error", err)
		return
	}
	if err := c.kv.Set(sessionStateKeyPrefix+c.userKey, string(blob)); err != nil {
		c.logger.Warn("failed to persist session state", "user", c.userKey, "error", err)
	}
}

// WasEdited reports whether the user saved an edit to the post this session.
func (c *Cache) WasEdited(postID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Edited[postID]
}

// WasViewed reports whether the post's view was already counted this session.
func (c *Cache) WasViewed(postID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Viewed[postID]
}

// UserReaction returns the acting user's reaction to the post, if any.
func (c *Cache) UserReaction(postID int) (posts.ReactionKind, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kind, ok := c.session.Reactions[postID]
	return kind, ok
}

// LikedComment reports whether the user liked the comment this session.
func (c *Cache) LikedComment(commentID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.LikedComments[commentID]
}

func setToSlice(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
