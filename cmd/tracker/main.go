// Command tracker follows one in-progress activity and appends periodic
// location checks. Location samples arrive as JSON lines on stdin, e.g.
//
//	{"latitude": 40.85, "longitude": -73.844}
//
// The process exits once the activity leaves the in-progress state.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nycsbus/sitetrack/internal/api"
	"github.com/nycsbus/sitetrack/internal/config"
	"github.com/nycsbus/sitetrack/internal/store"
	"github.com/nycsbus/sitetrack/internal/tracker"
)

func main() {
	cfg := config.Load()

	activityID := os.Getenv("ACTIVITY_ID")
	if activityID == "" {
		log.Fatal("ACTIVITY_ID is required")
	}

	remote := store.NewGitHubClient(store.GitHubConfig{
		BaseURL: cfg.StoreBaseURL,
		Owner:   cfg.StoreOwner,
		Repo:    cfg.StoreRepo,
		Branch:  cfg.StoreBranch,
		Token:   cfg.StoreToken,
	})

	st, err := store.New(remote, store.WithCacheTTL(cfg.CacheTTL))
	if err != nil {
		log.Fatalf("failed to build store: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdownCh
		cancel()
	}()

	source := tracker.NewStreamSource()
	go func() {
		if err := source.Run(ctx, os.Stdin); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("location feed error: %v", err)
		}
	}()

	logger := tracker.New(st, source, api.PathForID(activityID),
		tracker.WithCadence(cfg.TrackerCadence),
		tracker.WithStaleAfter(cfg.TrackerStaleAfter),
	)

	log.Printf("tracking %s every %s", activityID, cfg.TrackerCadence)
	if err := logger.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("tracker error: %v", err)
	}
}
