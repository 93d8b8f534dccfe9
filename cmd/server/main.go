package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"wordmoment/internal/catalog"
	"wordmoment/internal/config"
	"wordmoment/internal/handlers"
	"wordmoment/internal/notify"
	"wordmoment/internal/progress"
	"wordmoment/internal/security"
	"wordmoment/internal/service"
	"wordmoment/internal/session"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Progress store (sqlite, postgres, mysql or file)
	store, closeStore, err := progress.Open(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// Word catalog
	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}
	log.Printf("Catalog loaded: %d levels, %d units", len(cat.Levels()), cat.Len())

	// Completion e-mail
	notifier, err := notify.NewEmailNotifier(ctx, cfg.AWSRegion, cfg.SESFromEmail, cfg.SESFromName, cfg.NotifyEmail, cfg.Debug)
	if err != nil {
		return err
	}

	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := notifier.Close(closeCtx); err != nil {
			log.Printf("Warning: %v", err)
		}
	}()

	observers := []session.Observer{notifier}
	if cfg.Debug {
		observers = append(observers, session.LogObserver(log.Default()))
	}

	learnService := service.NewLearnService(cat, store, observers...)
	defer learnService.ExitAll()

	// Rate limit answer submissions per client
	submitLimit := func(next http.Handler) http.Handler { return next }
	if cfg.SubmitRateLimit > 0 {
		limiter := security.NewRateLimiter(cfg.SubmitRateLimit, time.Minute)
		defer limiter.Stop()
		submitLimit = limiter.Middleware
	}

	// Setup routes
	mux := http.NewServeMux()
	handlers.NewLearnHandler(learnService).Register(mux, submitLimit)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handlers.Logging(handlers.Recover(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Server starting on http://localhost%s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.SessionIdleTimeout > 0 {
		g.Go(func() error {
			return learnService.RunExpiry(gctx, cfg.SessionIdleTimeout)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Printf("Server stopped with %d open sessions", learnService.ActiveSessions())
	return nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}
