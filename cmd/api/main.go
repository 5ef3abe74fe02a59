// Command api runs the dashboard caching service: a cached read API over a
// simulated property-management data source, with invalidation triggers,
// snapshot endpoints and Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"dashcache/interfaces/http/rest"
	"dashcache/internal/config"
	"dashcache/internal/di"
	"dashcache/internal/observability"
)

func main() {
	configPath := flag.String("config", os.Getenv("DASHCACHE_CONFIG"), "path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Environment)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	container := di.InitializeContainer(cfg, logger)
	container.Start()
	defer container.Shutdown()

	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, logger)
		if err != nil {
			return fmt.Errorf("watch config: %w", err)
		}
		watcher.OnChange(func(*config.Config) {
			logger.Info("configuration reloaded; restart to apply cache sizing changes")
		})
		watcher.Start()
		defer watcher.Stop()
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           rest.NewRouter(container, simulatedSource{}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

// simulatedSource stands in for the real reporting database. Reads are
// idempotent, as the prefetch layer requires.
type simulatedSource struct{}

func (simulatedSource) Fetch(ctx context.Context, domain, key string, opts map[string]string) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(25 * time.Millisecond):
	}
	return map[string]any{
		"domain":       domain,
		"key":          key,
		"options":      opts,
		"generated_at": time.Now().UTC().Format(time.RFC3339),
	}, nil
}
