package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nycsbus/sitetrack/internal/api"
	"github.com/nycsbus/sitetrack/internal/auth"
	"github.com/nycsbus/sitetrack/internal/config"
	"github.com/nycsbus/sitetrack/internal/domain"
	"github.com/nycsbus/sitetrack/internal/events"
	"github.com/nycsbus/sitetrack/internal/store"
	httptransport "github.com/nycsbus/sitetrack/internal/transport/http"
)

func main() {
	cfg := config.Load()

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

	var publisher *events.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewPublisher(cfg.KafkaBrokers, cfg.EventTopic)
		defer publisher.Close()
	}

	handler := api.NewHandler(domain.NewMachine(), st, publisher)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	// Basic request logger
	logger := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("%s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address: cfg.HTTPAddress,
	}, authMiddleware.Wrap(logger(mux)))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("sitetrack api listening on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
