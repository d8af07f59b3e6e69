package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"adaptive-learning/internal/adapter"
	"adaptive-learning/internal/cache"
	"adaptive-learning/internal/config"
	"adaptive-learning/internal/domain"
	"adaptive-learning/internal/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Initialize(cfg.Logger); err != nil {
		panic(err)
	}
	defer logger.Sync()

	store, closeStore, err := openSessionStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open session store: %v\n", err)
		os.Exit(1)
	}
	defer closeStore()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := newCLI(cfg, store, os.Stdout, os.Stderr)
	if err := c.run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, userMessage(err))
		os.Exit(1)
	}
}

func openSessionStore(cfg *config.Config) (domain.Cache, func(), error) {
	switch cfg.Session.Store {
	case "redis":
		client, err := cache.NewRedisClient(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return adapter.NewRedisCacheAdapter(client), func() { _ = client.Close() }, nil
	case "file":
		path := cfg.Session.File
		if path == "" {
			dir, err := os.UserConfigDir()
			if err != nil {
				return nil, nil, err
			}
			path = filepath.Join(dir, "quizctl", "session.json")
		}
		fc, err := adapter.NewFileCache(path)
		if err != nil {
			return nil, nil, err
		}
		return fc, func() {}, nil
	default:
		return adapter.NewMemoryCache(), func() {}, nil
	}
}
