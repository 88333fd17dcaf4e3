package main

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/ZayatsMaxim/news-project/internal/server"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	dbPath := os.Getenv("NEWS_API_DB")
	if dbPath == "" {
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			logger.Error("failed to resolve cache dir", "error", err)
			os.Exit(1)
		}
		dbPath = filepath.Join(cacheDir, "news-project", "api.db")
	}

	secret := os.Getenv("NEWS_JWT_SECRET")
	if secret == "" {
		secret = "dev-only-secret"
		logger.Warn("NEWS_JWT_SECRET not set, using dev default")
	}

	addr := os.Getenv("NEWS_API_ADDR")
	if addr == "" {
		addr = ":8081"
	}

	db, err := server.OpenDB(dbPath)
	if err != nil {
		logger.Error("failed to open database", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	logger.Info("posts backend listening", "addr", addr, "db", dbPath)
	if err := http.ListenAndServe(addr, server.New(db, secret, logger)); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
