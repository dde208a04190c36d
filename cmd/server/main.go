package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"piiguard/internal/platform/config"
	"piiguard/internal/platform/httpserver"
	"piiguard/internal/platform/logger"
	platformmetrics "piiguard/internal/platform/metrics"
	"piiguard/internal/sweeper"
	httptransport "piiguard/internal/transport/http"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "piiguard: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format, cfg.IsProduction())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in, err := connectInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer in.close()

	m := platformmetrics.New()
	pub, err := buildAuditPublisher(ctx, in, log)
	if err != nil {
		return err
	}
	defer pub.Close()

	svc, err := buildServices(cfg, in, pub, m.Registry(), log)
	if err != nil {
		return err
	}

	sw, err := sweeper.New(svc.vault,
		sweeper.WithInterval(cfg.Vault.SweepInterval),
		sweeper.WithLogger(log),
	)
	if err != nil {
		return err
	}

	router := httptransport.NewRouter(httptransport.Dependencies{
		Logger:   log,
		Metrics:  m,
		Features: svc.features(log),
		Health:   in.healthChecks(),
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting piiguard", "addr", cfg.Server.Addr, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return sw.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout.String())
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("piiguard stopped with error", "error", err)
		return err
	}
	log.Info("piiguard stopped")
	return nil
}
