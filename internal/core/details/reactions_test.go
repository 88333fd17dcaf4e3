package details

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZayatsMaxim/news-project/internal/core/posts"
	"github.com/ZayatsMaxim/news-project/internal/storage"
)

func loadedCache(t *testing.T, repo *fakeRepo, kv storage.Store) *Cache {
	t.Helper()
	cache := New(repo, kv, nil, nil)
	_, err := cache.LoadForModal(context.Background(), 1, 7, titleSearch())
	require.NoError(t, err)
	return cache
}

func TestToggleReaction_AddSwapRemove(t *testing.T) {
	repo := seededRepo()
	cache := loadedCache(t, repo, storage.NewMemory())

	// Add a like: 5 -> 6.
	cache.ToggleReaction(context.Background(), 7, posts.ReactionLike)
	current, _ := cache.Current()
	assert.Equal(t, posts.Reactions{Likes: 6, Dislikes: 1}, current.Post.Reactions)
	kind, ok := cache.UserReaction(7)
	require.True(t, ok)
	assert.Equal(t, posts.ReactionLike, kind)

	// Swap to dislike: one count moves over.
	cache.ToggleReaction(context.Background(), 7, posts.ReactionDislike)
	current, _ = cache.Current()
	assert.Equal(t, posts.Reactions{Likes: 5, Dislikes: 2}, current.Post.Reactions)
	kind, _ = cache.UserReaction(7)
	assert.Equal(t, posts.ReactionDislike, kind)

	// Same reaction again toggles it off.
	cache.ToggleReaction(context.Background(), 7, posts.ReactionDislike)
	current, _ = cache.Current()
	assert.Equal(t, posts.Reactions{Likes: 5, Dislikes: 1}, current.Post.Reactions)
	_, ok = cache.UserReaction(7)
	assert.False(t, ok)

	repo.mu.Lock()
	assert.Equal(t, posts.Reactions{Likes: 5, Dislikes: 1}, repo.lastReactions)
	repo.mu.Unlock()
}

func TestToggleReaction_RollsBackOnFailure(t *testing.T) {
	repo := seededRepo()
	kv := storage.NewMemory()
	cache := loadedCache(t, repo, kv)

	repo.mu.Lock()
	repo.reactionErr = errBackend
	repo.mu.Unlock()

	cache.ToggleReaction(context.Background(), 7, posts.ReactionLike)

	current, _ := cache.Current()
	assert.Equal(t, posts.Reactions{Likes: 5, Dislikes: 1}, current.Post.Reactions,
		"the optimistic counters are restored from the pre-image")
	_, ok := cache.UserReaction(7)
	assert.False(t, ok)

	raw, found := kv.Get(sessionStateKeyPrefix + guestKey)
	require.True(t, found)
	var persisted persistedSession
	require.NoError(t, json.Unmarshal([]byte(raw), &persisted))
	assert.Empty(t, persisted.UserReactions, "the rollback is persisted too")
}

func TestToggleReaction_RollbackRestoresPriorKind(t *testing.T) {
	repo := seededRepo()
	cache := loadedCache(t, repo, storage.NewMemory())

	cache.ToggleReaction(context.Background(), 7, posts.ReactionLike)

	repo.mu.Lock()
	repo.reactionErr = errBackend
	repo.mu.Unlock()

	// A failed swap keeps the original like in place.
	cache.ToggleReaction(context.Background(), 7, posts.ReactionDislike)

	current, _ := cache.Current()
	assert.Equal(t, posts.Reactions{Likes: 6, Dislikes: 1}, current.Post.Reactions)
	kind, ok := cache.UserReaction(7)
	require.True(t, ok)
	assert.Equal(t, posts.ReactionLike, kind)
}

func TestToggleReaction_UncachedPostIsNoop(t *testing.T) {
	repo := seededRepo()
	cache := New(repo, storage.NewMemory(), nil, nil)

	cache.ToggleReaction(context.Background(), 7, posts.ReactionLike)

	_, ok := cache.UserReaction(7)
	assert.False(t, ok)
}

func TestToggleCommentLike_Toggles(t *testing.T) {
	repo := seededRepo()
	cache := loadedCache(t, repo, storage.NewMemory())

	cache.ToggleCommentLike(context.Background(), 31)
	current, _ := cache.Current()
	assert.Equal(t, 3, current.Comments[0].Likes)
	assert.True(t, cache.LikedComment(31))

	cache.ToggleCommentLike(context.Background(), 31)
	current, _ = cache.Current()
	assert.Equal(t, 2, current.Comments[0].Likes)
	assert.False(t, cache.LikedComment(31))

	repo.mu.Lock()
	assert.Equal(t, 2, repo.setCommentLikes[31])
	repo.mu.Unlock()
}

func TestToggleCommentLike_RollsBackOnFailure(t *testing.T) {
	repo := seededRepo()
	cache := loadedCache(t, repo, storage.NewMemory())

	repo.mu.Lock()
	repo.commentLikeErr = errBackend
	repo.mu.Unlock()

	cache.ToggleCommentLike(context.Background(), 31)

	current, _ := cache.Current()
	assert.Equal(t, 2, current.Comments[0].Likes)
	assert.False(t, cache.LikedComment(31))
}
