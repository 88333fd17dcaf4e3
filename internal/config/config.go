// Package config loads client configuration from the environment, with an
// optional .env file for development.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Config holds the reader client's configuration.
type Config struct {
	// APIBaseURL is the posts backend root.
	APIBaseURL string

	// PaginationStyle is "offset" or "page", matching the backend dialect.
	PaginationStyle string

	// PageSize is the list page size, constant for the session.
	PageSize int

	// StateDBPath is the sqlite file holding session-scoped state.
	StateDBPath string

	// SessionID scopes persisted state. Reusing an id resumes a session;
	// a fresh id starts clean.
	SessionID string
}

// Load reads configuration from the environment. A missing .env file is
// not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	statePath := os.Getenv("NEWS_STATE_DB")
	if statePath == "" {
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("resolve cache dir: %w", err)
		}
		statePath = filepath.Join(cacheDir, "news-project", "state.db")
	}

	sessionID := os.Getenv("NEWS_SESSION")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	return &Config{
		APIBaseURL:      getEnv("NEWS_API_URL", "http://localhost:8081"),
		PaginationStyle: getEnv("NEWS_PAGINATION_STYLE", "offset"),
		PageSize:        getEnvInt("NEWS_PAGE_SIZE", 9),
		StateDBPath:     statePath,
		SessionID:       sessionID,
	}, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
