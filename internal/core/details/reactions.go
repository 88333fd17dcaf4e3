package details

import (
	"context"

	"github.com/ZayatsMaxim/news-project/internal/core/posts"
)

// ToggleReaction applies a like/dislike optimistically: counters and the
// per-user reaction map are mutated and persisted before the network call,
// and restored from the captured pre-image if it fails. No-op when the post
// is not in the cache.
func (c *Cache) ToggleReaction(ctx context.Context, postID int, kind posts.ReactionKind) {
	if kind != posts.ReactionLike && kind != posts.ReactionDislike {
		return
	}

	c.mu.Lock()
	entry := c.findByIDLocked(postID)
	if entry == nil {
		c.mu.Unlock()
		return
	}

	prevCounts := entry.Post.Reactions
	prevKind, had := c.session.Reactions[postID]

	next := prevCounts
	switch {
	case had && prevKind == kind:
		// Same reaction again toggles it off.
		decrement(&next, kind)
		delete(c.session.Reactions, postID)
	case had:
		// Switching reaction moves one count to the other counter.
		decrement(&next, prevKind)
		increment(&next, kind)
		c.session.Reactions[postID] = kind
	default:
		increment(&next, kind)
		c.session.Reactions[postID] = kind
	}
	entry.Post.Reactions = next
	c.persistSessionLocked()
	c.mu.Unlock()

	if err := c.repo.SetReactions(ctx, postID, next); err != nil {
		if posts.IsCancellation(err) {
			return
		}
		c.logger.Error("error updating reactions", "post_id", postID, "error", err)

		c.mu.Lock()
		if rolled := c.findByIDLocked(postID); rolled != nil {
			rolled.Post.Reactions = prevCounts
		}
		if had {
			c.session.Reactions[postID] = prevKind
		} else {
			delete(c.session.Reactions, postID)
		}
		c.persistSessionLocked()
		c.mu.Unlock()
	}
}

// ToggleCommentLike likes or unlikes a comment with the same optimistic
// apply-persist-verify-rollback discipline. No-op when the comment is not
// in the cache.
func (c *Cache) ToggleCommentLike(ctx context.Context, commentID int) {
	c.mu.Lock()
	comment := c.findCommentLocked(commentID)
	if comment == nil {
		c.mu.Unlock()
		return
	}

	prevLikes := comment.Likes
	wasLiked := c.session.LikedComments[commentID]

	if wasLiked {
		comment.Likes = prevLikes - 1
		delete(c.session.LikedComments, commentID)
	} else {
		comment.Likes = prevLikes + 1
		c.session.LikedComments[commentID] = true
	}
	newLikes := comment.Likes
	c.persistSessionLocked()
	c.mu.Unlock()

	if err := c.repo.SetCommentLikes(ctx, commentID, newLikes); err != nil {
		if posts.IsCancellation(err) {
			return
		}
		c.logger.Error("error updating comment likes", "comment_id", commentID, "error", err)

		c.mu.Lock()
		if rolled := c.findCommentLocked(commentID); rolled != nil {
			rolled.Likes = prevLikes
		}
		if wasLiked {
			c.session.LikedComments[commentID] = true
		} else {
			delete(c.session.LikedComments, commentID)
		}
		c.persistSessionLocked()
		c.mu.Unlock()
	}
}

// IncrementViews counts a view for the post, at most once per session.
// The cached post and the sibling list entry are updated and the id is
// recorded as viewed before the network call; view counting is best-effort,
// so failures are logged and swallowed.
func (c *Cache) IncrementViews(ctx context.Context, postID int) {
	c.mu.Lock()
	if c.session.Viewed[postID] {
		c.mu.Unlock()
		return
	}
	entry := c.findByIDLocked(postID)
	if entry == nil {
		c.mu.Unlock()
		return
	}
	entry.Post.Views++
	newViews := entry.Post.Views
	c.session.Viewed[postID] = true
	c.persistSessionLocked()
	c.mu.Unlock()

	if c.list != nil {
		c.list.UpdatePost(postID, posts.PostPatch{Views: posts.IntPtr(newViews)})
	}

	if err := c.repo.SetViews(ctx, postID, newViews); err != nil && !posts.IsCancellation(err) {
		c.logger.Error("error incrementing views", "post_id", postID, "error", err)
	}
}

// flushPendingViewLocked counts the view for the post being closed. The
// bookkeeping runs under the held lock so a cache purge in the same call
// cannot race the entry away; the network write and list mirror are
// fire-and-forget so modal transitions never block, and the per-session
// viewed set keeps rapid prev/next sequences from double-counting.
func (c *Cache) flushPendingViewLocked() {
	if c.pendingView == 0 {
		return
	}
	postID := c.pendingView
	c.pendingView = 0
	if c.session.Viewed[postID] {
		return
	}
	entry := c.findByIDLocked(postID)
	if entry == nil {
		return
	}
	entry.Post.Views++
	newViews := entry.Post.Views
	c.session.Viewed[postID] = true
	c.persistSessionLocked()

	go func() {
		if c.list != nil {
			c.list.UpdatePost(postID, posts.PostPatch{Views: posts.IntPtr(newViews)})
		}
		if err := c.repo.SetViews(context.Background(), postID, newViews); err != nil && !posts.IsCancellation(err) {
			c.logger.Error("error incrementing views", "post_id", postID, "error", err)
		}
	}()
}

// findCommentLocked locates a comment across the current entry and every
// cached one.
func (c *Cache) findCommentLocked(commentID int) *posts.Comment {
	if c.current != nil {
		for i := range c.current.Comments {
			if c.current.Comments[i].ID == commentID {
				return &c.current.Comments[i]
			}
		}
	}
	for _, entry := range c.entries.Values() {
		for i := range entry.Comments {
			if entry.Comments[i].ID == commentID {
				return &entry.Comments[i]
			}
		}
	}
	return nil
}

func increment(r *posts.Reactions, kind posts.ReactionKind) {
	if kind == posts.ReactionLike {
		r.Likes++
	} else {
		r.Dislikes++
	}
}

func decrement(r *posts.Reactions, kind posts.ReactionKind) {
	if kind == posts.ReactionLike {
		if r.Likes > 0 {
			r.Likes--
		}
	} else {
		if r.Dislikes > 0 {
			r.Dislikes--
		}
	}
}
