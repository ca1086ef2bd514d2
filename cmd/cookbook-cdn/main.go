// cookbook-cdn serves the recipe asset store and its catalog over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ErmitaVulpe/cookbook/api"
	"github.com/ErmitaVulpe/cookbook/catalog"
	"github.com/ErmitaVulpe/cookbook/cdn"
	"github.com/ErmitaVulpe/cookbook/config"
	"github.com/ErmitaVulpe/cookbook/log"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		return err
	}

	logger := log.New(log.Options{
		Name:    "cookbook",
		Level:   cfg.LogLevel(),
		File:    cfg.Log.File,
		NoColor: cfg.Log.NoColor,
		JSON:    cfg.Log.JSON,
	})
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recipes, err := catalog.Parse(cfg.Catalog.Address)
	if err != nil {
		return err
	}
	if err := recipes.Open(ctx); err != nil {
		return fmt.Errorf("failed to open %s catalog: %w", recipes.Name(), err)
	}
	logger.Info("Opened %s catalog", recipes.Name())

	opts := []cdn.Option{cdn.WithLogger(logger.Named("cdn"))}
	if cfg.Storage.Reconcile {
		opts = append(opts, cdn.WithReconcile())
	}
	if cfg.Storage.MaxConcurrentEncodes > 0 {
		opts = append(opts, cdn.WithMaxConcurrentEncodes(cfg.Storage.MaxConcurrentEncodes))
	}

	store, err := cdn.New(cfg.Storage.Path, opts...)
	if err != nil {
		recipes.Close(ctx)
		return err
	}
	if err := store.Open(ctx); err != nil {
		recipes.Close(ctx)
		return fmt.Errorf("failed to open asset store: %w", err)
	}

	var auth api.Authorizer = api.AllowAll{}
	if cfg.Auth.Token != "" {
		auth = api.NewStaticToken(cfg.Auth.Token)
	} else {
		logger.Warn("No admin token configured, mutating routes are open to everyone")
	}

	metrics := api.NewMetrics()
	metrics.Registry().MustRegister(collectors.NewBuildInfoCollector())

	server, err := api.NewServer(store, recipes,
		api.WithLogger(logger.Named("api")),
		api.WithAuthorizer(auth),
		api.WithMetrics(metrics),
		api.WithMaxImageSize(int64(cfg.Storage.MaxImageSize)),
	)
	if err != nil {
		return shutdown(logger, store, recipes, err)
	}

	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: server,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Listening on %s", cfg.Listen)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err = <-serveErr:
	case <-ctx.Done():
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		err = httpServer.Shutdown(shutdownCtx)
	}
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}

	return shutdown(logger, store, recipes, err)
}

// shutdown closes the store before the catalog and joins every failure.
func shutdown(logger *log.Logger, store *cdn.Cdn, recipes catalog.Catalog, cause error) error {
	ctx := context.Background()

	errs := []error{cause}
	if err := store.Close(ctx); err != nil {
		logger.Error("Failed to close asset store: %v", err)
		errs = append(errs, err)
	}
	if err := recipes.Close(ctx); err != nil {
		logger.Error("Failed to close catalog: %v", err)
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
