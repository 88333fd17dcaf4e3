// Package auth implements the identity provider the browsing core
// observes: login, token refresh and the current-user subscription. The
// core never drives it; the UI layer does.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ZayatsMaxim/news-project/internal/core/posts"
	"github.com/ZayatsMaxim/news-project/internal/storage"
)

// authStateKey is the session storage key for the token pair.
const authStateKey = "newsreader:auth"

// refreshLeeway is how close to expiry the access token may get before
// EnsureFresh refreshes it.
const refreshLeeway = time.Minute

// Manager holds the session's tokens and the acting user identity, and
// notifies subscribers when the identity changes.
type Manager struct {
	base   string
	http   *http.Client
	kv     storage.Store
	logger *slog.Logger

	mu        sync.Mutex
	access    string
	refresh   string
	accessExp time.Time
	userID    int
	authed    bool
	subs      map[int]func(id int, ok bool)
	nextSub   int
}

// NewManager creates an auth manager against the backend at baseURL,
// restoring any token pair persisted earlier in the session.
func NewManager(baseURL string, kv storage.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		base:   strings.TrimRight(baseURL, "/"),
		http:   &http.Client{Timeout: 15 * time.Second},
		kv:     kv,
		logger: logger,
		subs:   make(map[int]func(int, bool)),
	}
	m.restore()
	return m
}

// Ensure Manager satisfies the identity contract the core observes.
var _ posts.Identity = (*Manager)(nil)

type loginResponse struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Login authenticates with username/password and installs the returned
// token pair.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	payload := struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{username, password}

	var res loginResponse
	if err := m.post(ctx, "/auth/login", payload, &res); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	m.install(res)
	m.logger.Info("logged in", "user_id", res.ID, "username", res.Username)
	return nil
}

// Refresh exchanges the refresh token for a new token pair.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	refresh := m.refresh
	m.mu.Unlock()
	if refresh == "" {
		return posts.ErrUnauthorized
	}

	payload := struct {
		RefreshToken string `json:"refreshToken"`
	}{refresh}

	var res loginResponse
	if err := m.post(ctx, "/auth/refresh", payload, &res); err != nil {
		return fmt.Errorf("refresh token: %w", err)
	}

	m.install(res)
	m.logger.Debug("access token refreshed", "user_id", res.ID)
	return nil
}

// EnsureFresh refreshes the access token when it is about to expire.
// Callers invoke this before authenticated requests.
func (m *Manager) EnsureFresh(ctx context.Context) error {
	m.mu.Lock()
	needs := m.authed && !m.accessExp.IsZero() && time.Until(m.accessExp) < refreshLeeway
	m.mu.Unlock()
	if !needs {
		return nil
	}
	return m.Refresh(ctx)
}

// Logout drops the session's tokens and reverts to guest identity.
func (m *Manager) Logout() {
	m.mu.Lock()
	wasAuthed := m.authed
	m.access = ""
	m.refresh = ""
	m.accessExp = time.Time{}
	m.userID = 0
	m.authed = false
	m.mu.Unlock()

	m.kv.Remove(authStateKey)
	if wasAuthed {
		m.notify()
	}
}

// AccessToken returns the current bearer token, or "" for guests. It is
// shaped to plug straight into the repository client's token source.
func (m *Manager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.access
}

// CurrentUserID returns the authenticated user id, or ok=false as guest.
func (m *Manager) CurrentUserID() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID, m.authed
}

// OnChange registers a callback for identity changes. Returns an
// unsubscribe func.
func (m *Manager) OnChange(fn func(id int, ok bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSub++
	key := m.nextSub
	m.subs[key] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, key)
	}
}

// install applies a login/refresh response, persists it, and notifies
// subscribers when the acting user changed.
func (m *Manager) install(res loginResponse) {
	m.mu.Lock()
	changed := !m.authed || m.userID != res.ID
	m.access = res.AccessToken
	m.refresh = res.RefreshToken
	m.accessExp = tokenExpiry(res.AccessToken)
	m.userID = res.ID
	m.authed = true
	m.mu.Unlock()

	m.persist()
	if changed {
		m.notify()
	}
}

func (m *Manager) notify() {
	m.mu.Lock()
	id, ok := m.userID, m.authed
	fns := make([]func(int, bool), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(id, ok)
	}
}

type persistedAuth struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	UserID       int    `json:"userId"`
}

func (m *Manager) persist() {
	m.mu.Lock()
	out := persistedAuth{AccessToken: m.access, RefreshToken: m.refresh, UserID: m.userID}
	m.mu.Unlock()

	blob, err := json.Marshal(out)
	if err != nil {
		m.logger.Warn("failed to encode auth state", "error", err)
		return
	}
	if err := m.kv.Set(authStateKey, string(blob)); err != nil {
		m.logger.Warn("failed to persist auth state", "error", err)
	}
}

// restore rehydrates the token pair persisted earlier in the session.
// Tokens already past expiry are discarded.
func (m *Manager) restore() {
	raw, ok := m.kv.Get(authStateKey)
	if !ok {
		return
	}
	fields, ok := storage.ParseFields(raw)
	if !ok {
		m.logger.Warn("persisted auth state is corrupt, ignoring")
		return
	}

	access := storage.DecodeField(fields, "accessToken", "")
	refresh := storage.DecodeField(fields, "refreshToken", "")
	userID := storage.DecodeField(fields, "userId", 0)
	if access == "" || userID == 0 {
		return
	}
	exp := tokenExpiry(access)
	if !exp.IsZero() && time.Now().After(exp) && refresh == "" {
		return
	}

	m.mu.Lock()
	m.access = access
	m.refresh = refresh
	m.accessExp = exp
	m.userID = userID
	m.authed = true
	m.mu.Unlock()
	m.logger.Debug("auth state restored from session storage", "user_id", userID)
}

func (m *Manager) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		io.Copy(io.Discard, resp.Body)
		return posts.ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// tokenExpiry reads the exp claim without verifying the signature; the
// client only needs it to schedule refreshes, the server still verifies.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
