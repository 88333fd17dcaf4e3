package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	srv := httptest.NewServer(New(db, "test-secret", nil))
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func login(t *testing.T, base string) string {
	t.Helper()
	body := bytes.NewBufferString(`{"username":"mzayats","password":"devpass1"}`)
	resp, err := http.Post(base+"/auth/login", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		ID           int    `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.AccessToken)
	assert.Equal(t, 1, out.ID)
	return out.AccessToken
}

func TestServer_ListPostsEnvelope(t *testing.T) {
	srv := testServer(t)

	var out struct {
		Posts []struct {
			ID        int    `json:"id"`
			Title     string `json:"title"`
			Reactions struct {
				Likes int `json:"likes"`
			} `json:"reactions"`
		} `json:"posts"`
		Total int `json:"total"`
		Skip  int `json:"skip"`
		Limit int `json:"limit"`
	}
	resp := getJSON(t, srv.URL+"/posts?limit=9&skip=9", &out)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, out.Posts, 9)
	assert.Equal(t, 28, out.Total)
	assert.Equal(t, 9, out.Skip)
	assert.Equal(t, 10, out.Posts[0].ID, "seeded posts page in id order")
}

func TestServer_LimitZeroReturnsEverything(t *testing.T) {
	srv := testServer(t)

	var out struct {
		Posts []json.RawMessage `json:"posts"`
		Total int               `json:"total"`
	}
	getJSON(t, srv.URL+"/posts?limit=0", &out)
	assert.Len(t, out.Posts, out.Total)
}

func TestServer_SelectIDProjection(t *testing.T) {
	srv := testServer(t)

	var out struct {
		Posts []map[string]int `json:"posts"`
	}
	getJSON(t, srv.URL+"/posts?limit=3&select=id", &out)
	require.Len(t, out.Posts, 3)
	assert.Equal(t, map[string]int{"id": 1}, out.Posts[0])
}

func TestServer_SearchMatchesTitleAndBody(t *testing.T) {
	srv := testServer(t)

	var out struct {
		Posts []struct {
			Title string `json:"title"`
		} `json:"posts"`
		Total int `json:"total"`
	}
	getJSON(t, srv.URL+"/posts/search?q=goose&limit=9", &out)
	require.Equal(t, 1, out.Total)
	assert.Equal(t, "Migrations with Goose", out.Posts[0].Title)
}

func TestServer_PostsByUnknownUserIs404(t *testing.T) {
	srv := testServer(t)

	resp := getJSON(t, srv.URL+"/posts/user/999", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var out struct {
		Total int `json:"total"`
	}
	resp = getJSON(t, srv.URL+"/posts/user/1", &out)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Greater(t, out.Total, 0)
}

func TestServer_CommentsEnvelope(t *testing.T) {
	srv := testServer(t)

	var out struct {
		Comments []struct {
			ID   int `json:"id"`
			User struct {
				Username string `json:"username"`
			} `json:"user"`
		} `json:"comments"`
	}
	getJSON(t, srv.URL+"/posts/1/comments", &out)
	require.Len(t, out.Comments, 2)
	assert.Equal(t, "avolkova", out.Comments[0].User.Username)
}

func TestServer_MutationsRequireAuth(t *testing.T) {
	srv := testServer(t)

	req, err := http.NewRequest(http.MethodPatch, srv.URL+"/posts/1",
		bytes.NewBufferString(`{"title":"x"}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_AuthedEditLifecycle(t *testing.T) {
	srv := testServer(t)
	token := login(t, srv.URL)

	do := func(method, path, body string) *http.Response {
		t.Helper()
		req, err := http.NewRequest(method, srv.URL+path, bytes.NewBufferString(body))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	// Create.
	resp := do(http.MethodPost, "/posts/add", `{"title":"brand new","body":"text","userId":1,"tags":["t"]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		ID   int      `json:"id"`
		Tags []string `json:"tags"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	assert.Equal(t, []string{"t"}, created.Tags)

	// Patch only the title; body and counters stay.
	resp = do(http.MethodPatch, fmt.Sprintf("/posts/%d", created.ID), `{"title":"renamed"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var patched struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&patched))
	resp.Body.Close()
	assert.Equal(t, "renamed", patched.Title)
	assert.Equal(t, "text", patched.Body)

	// Delete, then the post is gone.
	resp = do(http.MethodDelete, fmt.Sprintf("/posts/%d", created.ID), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	gone := getJSON(t, srv.URL+fmt.Sprintf("/posts/%d", created.ID), nil)
	assert.Equal(t, http.StatusNotFound, gone.StatusCode)
}

func TestServer_RefreshIssuesNewPair(t *testing.T) {
	srv := testServer(t)

	body := bytes.NewBufferString(`{"username":"avolkova","password":"devpass2"}`)
	resp, err := http.Post(srv.URL+"/auth/login", "application/json", body)
	require.NoError(t, err)
	var pair struct {
		RefreshToken string `json:"refreshToken"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pair))
	resp.Body.Close()

	refreshBody, err := json.Marshal(map[string]string{"refreshToken": pair.RefreshToken})
	require.NoError(t, err)
	resp, err = http.Post(srv.URL+"/auth/refresh", "application/json", bytes.NewReader(refreshBody))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var renewed struct {
		ID          int    `json:"id"`
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&renewed))
	assert.Equal(t, 2, renewed.ID)
	assert.NotEmpty(t, renewed.AccessToken)

	// An access token is not accepted as a refresh token.
	resp, err = http.Post(srv.URL+"/auth/refresh", "application/json",
		bytes.NewBufferString(`{"refreshToken":"`+renewed.AccessToken+`"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTokenIssuer_VerifyRejectsWrongKindAndSecret(t *testing.T) {
	issuer := NewTokenIssuer("secret-a")
	access, refresh, err := issuer.IssuePair(3, "dpetrov")
	require.NoError(t, err)

	id, username, err := issuer.Verify(access, "access")
	require.NoError(t, err)
	assert.Equal(t, 3, id)
	assert.Equal(t, "dpetrov", username)

	_, _, err = issuer.Verify(refresh, "access")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewTokenIssuer("secret-b")
	_, _, err = other.Verify(access, "access")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
