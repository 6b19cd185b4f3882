// Package main starts the e-invoicing compliance service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/taxops/einvoicing-system/internal/authority"
	"github.com/taxops/einvoicing-system/internal/config"
	"github.com/taxops/einvoicing-system/internal/handler"
	"github.com/taxops/einvoicing-system/internal/reference"
	"github.com/taxops/einvoicing-system/internal/repository"
	"github.com/taxops/einvoicing-system/internal/scenario"
	"github.com/taxops/einvoicing-system/internal/service"
	"github.com/taxops/einvoicing-system/internal/submission"
	"github.com/taxops/einvoicing-system/internal/validation"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	authorityClient := newAuthorityClient(cfg)
	resolver := reference.NewResolver(cfg.CatalogAddress, cfg.CatalogToken)

	aggregator := validation.NewAggregator(resolver, authorityClient)
	orchestrator := submission.NewOrchestrator(authorityClient, repo, logger)
	tracker := scenario.NewTracker(repo)

	submitOpts := submission.Options{
		MaxRetries: cfg.SubmitMaxRetries,
		Timeout:    cfg.SubmitTimeout,
		Ambiguous:  submission.AmbiguousPolicy(cfg.AmbiguousPolicy),
	}

	svc := service.NewService(repo, aggregator, orchestrator, tracker, resolver, cfg.AuthorityToken, cfg.RemoteValidation, submitOpts)
	defer svc.Close()

	h := handler.NewHandler(svc, logger)
	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sugar.Infow("starting e-invoicing server",
			"addr", cfg.RunAddress,
			"environment", cfg.AuthorityEnv)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func newAuthorityClient(cfg *config.Config) *authority.Client {
	if cfg.AuthorityAddress != "" {
		return authority.NewWithBaseURL(cfg.AuthorityAddress)
	}
	if cfg.AuthorityEnv == "production" {
		return authority.New(authority.Production)
	}
	return authority.New(authority.Sandbox)
}
