package details

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZayatsMaxim/news-project/internal/core/posts"
	"github.com/ZayatsMaxim/news-project/internal/storage"
)

// fakeRepo is a hook-based repository fake. All counters are mutex-guarded
// because enrichment fetches and view flushes run on goroutines.
type fakeRepo struct {
	mu sync.Mutex

	posts    map[int]posts.Post
	comments map[int][]posts.Comment
	users    map[int]posts.UserSummary

	getPostCalls    int
	getIDsCalls     int
	setViewsCalls   int
	setViewsLast    int
	reactionErr     error
	commentLikeErr  error
	updateErr       error
	getPostFunc     func(ctx context.Context, id int) (*posts.Post, error)
	lastReactions   posts.Reactions
	lastCreated     posts.Post
	lastPatch       posts.PostPatch
	setCommentLikes map[int]int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		posts:           make(map[int]posts.Post),
		comments:        make(map[int][]posts.Comment),
		users:           make(map[int]posts.UserSummary),
		setCommentLikes: make(map[int]int),
	}
}

func (f *fakeRepo) ListPosts(ctx context.Context, q posts.ListQuery) (*posts.ListResult, error) {
	return &posts.ListResult{Posts: []posts.Post{}, Total: 0, TotalPages: 1}, nil
}

func (f *fakeRepo) GetPost(ctx context.Context, id int) (*posts.Post, error) {
	f.mu.Lock()
	f.getPostCalls++
	fn := f.getPostFunc
	p, ok := f.posts[id]
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, id)
	}
	if !ok {
		return nil, posts.ErrNotFound
	}
	out := p
	return &out, nil
}

func (f *fakeRepo) GetPostIDs(ctx context.Context, q posts.ListQuery) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getIDsCalls++
	// Position queries come through as one-item pages.
	ids := make([]int, 0, len(f.posts))
	for id := range f.posts {
		ids = append(ids, id)
	}
	if q.Page-1 < len(ids) {
		return ids[q.Page-1 : q.Page], nil
	}
	return nil, nil
}

func (f *fakeRepo) GetComments(ctx context.Context, postID int) ([]posts.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]posts.Comment(nil), f.comments[postID]...), nil
}

func (f *fakeRepo) GetUser(ctx context.Context, userID int) (*posts.UserSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[userID]; ok {
		out := u
		return &out, nil
	}
	return nil, nil
}

func (f *fakeRepo) UpdatePost(ctx context.Context, id int, patch posts.PostPatch) (*posts.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.lastPatch = patch
	p, ok := f.posts[id]
	if !ok {
		return nil, posts.ErrNotFound
	}
	patch.Apply(&p)
	f.posts[id] = p
	out := p
	return &out, nil
}

func (f *fakeRepo) CreatePost(ctx context.Context, draft posts.Post) (*posts.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCreated = draft
	created := draft
	created.ID = 101
	f.posts[created.ID] = created
	return &created, nil
}

func (f *fakeRepo) DeletePost(ctx context.Context, id int) error { return nil }

func (f *fakeRepo) SetViews(ctx context.Context, id, views int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setViewsCalls++
	f.setViewsLast = views
	return nil
}

func (f *fakeRepo) SetReactions(ctx context.Context, id int, r posts.Reactions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reactionErr != nil {
		return f.reactionErr
	}
	f.lastReactions = r
	return nil
}

func (f *fakeRepo) SetCommentLikes(ctx context.Context, commentID, likes int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commentLikeErr != nil {
		return f.commentLikeErr
	}
	f.setCommentLikes[commentID] = likes
	return nil
}

func (f *fakeRepo) InvalidateListCache() {}

func (f *fakeRepo) postFetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getPostCalls
}

// fakeList records the mirror calls the cache makes into the list store.
type fakeList struct {
	mu      sync.Mutex
	patches map[int][]posts.PostPatch
	removed []int
}

func newFakeList() *fakeList {
	return &fakeList{patches: make(map[int][]posts.PostPatch)}
}

func (f *fakeList) UpdatePost(id int, patch posts.PostPatch) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches[id] = append(f.patches[id], patch)
}

func (f *fakeList) Remove(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
}

func seededRepo() *fakeRepo {
	repo := newFakeRepo()
	repo.posts[7] = posts.Post{
		ID: 7, Title: "seven", Body: "body seven", UserID: 2,
		Views: 10, Reactions: posts.Reactions{Likes: 5, Dislikes: 1},
		Tags: []string{"go"},
	}
	repo.users[2] = posts.UserSummary{ID: 2, Username: "anna"}
	repo.comments[7] = []posts.Comment{
		{ID: 31, PostID: 7, Body: "nice", Likes: 2, User: posts.CommentUser{ID: 3, Username: "dim"}},
	}
	return repo
}

func titleSearch() posts.SearchContext {
	return posts.SearchContext{Field: posts.FieldTitle}
}

func TestCache_LoadForModalHydratesEntry(t *testing.T) {
	repo := seededRepo()
	cache := New(repo, storage.NewMemory(), nil, nil)

	entry, err := cache.LoadForModal(context.Background(), 3, 7, titleSearch())
	require.NoError(t, err)
	require.NotNil(t, entry)

	assert.Equal(t, 7, entry.Post.ID)
	assert.Equal(t, 3, entry.Position)
	require.NotNil(t, entry.User)
	assert.Equal(t, "anna", entry.User.Username)
	require.Len(t, entry.Comments, 1)
	assert.Equal(t, 31, entry.Comments[0].ID)

	assert.Equal(t, 3, cache.Position())
	current, ok := cache.Current()
	require.True(t, ok)
	assert.Equal(t, 7, current.Post.ID)
}

func TestCache_SecondOpenIsServedFromCache(t *testing.T) {
	repo := seededRepo()
	cache := New(repo, storage.NewMemory(), nil, nil)

	_, err := cache.LoadForModal(context.Background(), 3, 7, titleSearch())
	require.NoError(t, err)
	fetches := repo.postFetches()

	cache.Clear()
	entry, err := cache.LoadForModal(context.Background(), 3, 0, titleSearch())
	require.NoError(t, err)
	require.NotNil(t, entry)

	assert.Equal(t, 7, entry.Post.ID)
	assert.Equal(t, fetches, repo.postFetches(), "a cached position must not refetch")
}

func TestCache_ClearCacheForcesRefetch(t *testing.T) {
	repo := seededRepo()
	cache := New(repo, storage.NewMemory(), nil, nil)

	_, err := cache.LoadForModal(context.Background(), 3, 7, titleSearch())
	require.NoError(t, err)
	fetches := repo.postFetches()

	cache.ClearCache()
	_, ok := cache.Current()
	assert.False(t, ok, "wiping the cache also closes the detail view")

	entry, err := cache.LoadForModal(context.Background(), 3, 7, titleSearch())
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Greater(t, repo.postFetches(), fetches, "after a purge the post is fetched again")
}

func TestCache_ResolvesPositionWithoutID(t *testing.T) {
	repo := seededRepo()
	cache := New(repo, storage.NewMemory(), nil, nil)

	entry, err := cache.LoadForModal(context.Background(), 1, 0, titleSearch())
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 7, entry.Post.ID)

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Equal(t, 1, repo.getIDsCalls)
}

func TestCache_SupersededLoadIsDiscarded(t *testing.T) {
	repo := seededRepo()
	repo.posts[8] = posts.Post{ID: 8, Title: "eight", Body: "b", UserID: 2}

	firstStarted := make(chan struct{})
	release := make(chan struct{})
	repo.getPostFunc = func(ctx context.Context, id int) (*posts.Post, error) {
		if id == 7 {
			close(firstStarted)
			<-release
		}
		repo.mu.Lock()
		p := repo.posts[id]
		repo.mu.Unlock()
		return &p, nil
	}
	cache := New(repo, storage.NewMemory(), nil, nil)

	type result struct {
		entry *Entry
		err   error
	}
	done := make(chan result, 1)
	go func() {
		e, err := cache.LoadForModal(context.Background(), 1, 7, titleSearch())
		done <- result{e, err}
	}()
	<-firstStarted

	entry, err := cache.LoadForModal(context.Background(), 2, 8, titleSearch())
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 8, entry.Post.ID)

	close(release)
	stale := <-done
	assert.NoError(t, stale.err)
	assert.Nil(t, stale.entry, "a superseded load resolves to nothing")

	current, ok := cache.Current()
	require.True(t, ok)
	assert.Equal(t, 8, current.Post.ID)
}

func TestCache_CallerCancellationResetsLoading(t *testing.T) {
	repo := seededRepo()
	repo.getPostFunc = func(ctx context.Context, id int) (*posts.Post, error) {
		return nil, ctx.Err()
	}
	cache := New(repo, storage.NewMemory(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	entry, err := cache.LoadForModal(ctx, 1, 7, titleSearch())
	assert.NoError(t, err)
	assert.Nil(t, entry)
	assert.False(t, cache.Loading(), "an abandoned load must not leave the modal stuck loading")
}

func TestCache_EditSaveAndSnapshot(t *testing.T) {
	repo := seededRepo()
	cache := New(repo, storage.NewMemory(), nil, nil)

	_, err := cache.LoadForModal(context.Background(), 1, 7, titleSearch())
	require.NoError(t, err)
	assert.False(t, cache.HasUnsavedChanges())

	cache.EditCurrent("new title", "new body", nil)
	assert.True(t, cache.HasUnsavedChanges())

	updated, err := cache.Save(context.Background(), 7)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "new title", updated.Title)
	assert.False(t, cache.HasUnsavedChanges(), "saving refreshes the snapshot")
	assert.True(t, cache.WasEdited(7))

	repo.mu.Lock()
	require.NotNil(t, repo.lastPatch.Title)
	assert.Equal(t, "new title", *repo.lastPatch.Title)
	assert.Nil(t, repo.lastPatch.Views, "saving never touches counters")
	assert.Nil(t, repo.lastPatch.Reactions)
	repo.mu.Unlock()
}

func TestCache_SaveWithNoMatchingPostIsNoop(t *testing.T) {
	repo := seededRepo()
	cache := New(repo, storage.NewMemory(), nil, nil)

	updated, err := cache.Save(context.Background(), 7)
	assert.NoError(t, err)
	assert.Nil(t, updated)
}

func TestCache_RevertEditsRestoresSnapshot(t *testing.T) {
	repo := seededRepo()
	cache := New(repo, storage.NewMemory(), nil, nil)

	_, err := cache.LoadForModal(context.Background(), 1, 7, titleSearch())
	require.NoError(t, err)

	cache.EditCurrent("scratch", "scratch", []string{"x"})
	cache.RevertEdits()

	current, ok := cache.Current()
	require.True(t, ok)
	assert.Equal(t, "seven", current.Post.Title)
	assert.Equal(t, []string{"go"}, current.Post.Tags)
	assert.False(t, cache.HasUnsavedChanges())
}

func TestCache_DraftLifecycle(t *testing.T) {
	repo := seededRepo()
	cache := New(repo, storage.NewMemory(), nil, nil)

	cache.OpenForNewPost()
	current, ok := cache.Current()
	require.True(t, ok)
	assert.True(t, current.Post.IsDraft())
	assert.Equal(t, 0, cache.Position())

	cache.EditCurrent("fresh post", "hello", []string{"intro"})
	created, err := cache.CreateFromDraft(context.Background(), 2)
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, 101, created.ID)

	repo.mu.Lock()
	assert.Equal(t, 2, repo.lastCreated.UserID, "the draft is created under the acting user")
	repo.mu.Unlock()

	current, ok = cache.Current()
	require.True(t, ok)
	assert.Equal(t, 101, current.Post.ID, "the draft becomes the server copy in place")
	assert.False(t, cache.HasUnsavedChanges())
}

func TestCache_CreateFromDraftRequiresDraft(t *testing.T) {
	repo := seededRepo()
	cache := New(repo, storage.NewMemory(), nil, nil)

	_, err := cache.LoadForModal(context.Background(), 1, 7, titleSearch())
	require.NoError(t, err)

	created, err := cache.CreateFromDraft(context.Background(), 2)
	assert.NoError(t, err)
	assert.Nil(t, created, "a real post is never re-created")
}

func TestCache_RemoveFromCacheScrubsEverything(t *testing.T) {
	repo := seededRepo()
	kv := storage.NewMemory()
	cache := New(repo, kv, nil, nil)

	_, err := cache.LoadForModal(context.Background(), 1, 7, titleSearch())
	require.NoError(t, err)
	cache.ToggleReaction(context.Background(), 7, posts.ReactionLike)
	_, err = cache.Save(context.Background(), 7)
	require.NoError(t, err)

	cache.RemoveFromCache(7)

	_, ok := cache.Current()
	assert.False(t, ok)
	assert.False(t, cache.WasEdited(7))
	assert.False(t, cache.WasViewed(7))
	_, reacted := cache.UserReaction(7)
	assert.False(t, reacted)

	entry, err := cache.LoadForModal(context.Background(), 1, 7, titleSearch())
	require.NoError(t, err)
	require.NotNil(t, entry, "the post can be refetched after removal")
}

func TestCache_PendingViewFlushesOnClose(t *testing.T) {
	repo := seededRepo()
	list := newFakeList()
	cache := New(repo, storage.NewMemory(), list, nil)

	_, err := cache.LoadForModal(context.Background(), 1, 7, titleSearch())
	require.NoError(t, err)
	cache.Clear()

	require.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return repo.setViewsCalls == 1 && repo.setViewsLast == 11
	}, time.Second, 5*time.Millisecond, "closing the modal flushes the pending view count")

	assert.True(t, cache.WasViewed(7))
}

func TestCache_PendingViewSurvivesCachePurge(t *testing.T) {
	repo := seededRepo()
	list := newFakeList()
	cache := New(repo, storage.NewMemory(), list, nil)

	_, err := cache.LoadForModal(context.Background(), 1, 7, titleSearch())
	require.NoError(t, err)
	cache.ClearCache()

	assert.True(t, cache.WasViewed(7), "the open post's view is counted before the entries are purged")
	require.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return repo.setViewsCalls == 1 && repo.setViewsLast == 11
	}, time.Second, 5*time.Millisecond)
}

func TestCache_ViewsCountOncePerSession(t *testing.T) {
	repo := seededRepo()
	list := newFakeList()
	cache := New(repo, storage.NewMemory(), list, nil)

	_, err := cache.LoadForModal(context.Background(), 1, 7, titleSearch())
	require.NoError(t, err)

	cache.IncrementViews(context.Background(), 7)
	cache.IncrementViews(context.Background(), 7)
	cache.IncrementViews(context.Background(), 7)

	repo.mu.Lock()
	assert.Equal(t, 1, repo.setViewsCalls, "repeat views in one session are not counted")
	assert.Equal(t, 11, repo.setViewsLast)
	repo.mu.Unlock()

	current, ok := cache.Current()
	require.True(t, ok)
	assert.Equal(t, 11, current.Post.Views)

	list.mu.Lock()
	assert.Len(t, list.patches[7], 1, "the list card mirrors the view count once")
	list.mu.Unlock()
}

func TestCache_LoadReactionsSwitchesUserBucket(t *testing.T) {
	repo := seededRepo()
	kv := storage.NewMemory()
	cache := New(repo, kv, nil, nil)

	_, err := cache.LoadForModal(context.Background(), 1, 7, titleSearch())
	require.NoError(t, err)
	cache.ToggleReaction(context.Background(), 7, posts.ReactionLike)
	kind, ok := cache.UserReaction(7)
	require.True(t, ok)
	assert.Equal(t, posts.ReactionLike, kind)

	// Logging in switches to an empty per-user bucket.
	cache.LoadReactionsForUser(2, true)
	_, ok = cache.UserReaction(7)
	assert.False(t, ok)

	// Logging back out restores the guest bucket from storage.
	cache.LoadReactionsForUser(0, false)
	kind, ok = cache.UserReaction(7)
	require.True(t, ok)
	assert.Equal(t, posts.ReactionLike, kind)
}

func TestCache_SessionStateSurvivesRestart(t *testing.T) {
	repo := seededRepo()
	kv := storage.NewMemory()
	cache := New(repo, kv, nil, nil)

	_, err := cache.LoadForModal(context.Background(), 1, 7, titleSearch())
	require.NoError(t, err)
	cache.ToggleReaction(context.Background(), 7, posts.ReactionDislike)
	cache.IncrementViews(context.Background(), 7)

	reopened := New(repo, kv, nil, nil)
	reopened.LoadReactionsForUser(0, false)

	kind, ok := reopened.UserReaction(7)
	require.True(t, ok)
	assert.Equal(t, posts.ReactionDislike, kind)
	assert.True(t, reopened.WasViewed(7))
}

func TestCache_CorruptSessionFieldIsSkipped(t *testing.T) {
	repo := seededRepo()
	kv := storage.NewMemory()
	require.NoError(t, kv.Set(sessionStateKeyPrefix+guestKey,
		`{"viewedPostIds":[7],"userReactions":{"7":"explode","9":"like"},"editedPostIds":"oops"}`))

	cache := New(repo, kv, nil, nil)
	cache.LoadReactionsForUser(0, false)

	assert.True(t, cache.WasViewed(7))
	_, ok := cache.UserReaction(7)
	assert.False(t, ok, "unknown reaction kinds are dropped")
	kind, ok := cache.UserReaction(9)
	require.True(t, ok)
	assert.Equal(t, posts.ReactionLike, kind)
	assert.False(t, cache.WasEdited(7), "a corrupt field falls back to its default")
}

var errBackend = errors.New("backend down")
