package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"compliancedash/config"
	"compliancedash/internal/feed/memorystore"
	"compliancedash/internal/feed/poller"
	"compliancedash/internal/feed/source"
	"compliancedash/pkg/csvfeed"

	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Run wires the feed pipeline to the HTTP view and blocks until ctx is
// cancelled or the server fails. The poller lives exactly as long as the
// server: it is started before listening and stopped during shutdown.
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	location, err := resolveFeedLocation(ctx, cfg)
	if err != nil {
		return err
	}

	// Feed pipeline: source -> poller -> in-memory snapshot
	client := csvfeed.NewClient(cfg.Feed.FetchTimeout)
	src := source.New(location, client, logger.Named("source"))
	store := memorystore.NewSnapshotStore()
	feedPoller := poller.New(poller.Config{
		Interval:     cfg.Feed.PollInterval,
		FetchTimeout: cfg.Feed.FetchTimeout,
	}, src, store, logger.Named("poller"))

	srv := NewServer(store, feedPoller, logger.Named("http"))

	if err := feedPoller.Start(ctx); err != nil {
		return fmt.Errorf("start feed poller: %w", err)
	}
	logger.Info("dashboard feed configured", zap.String("location", location))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.HTTP.Addr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down", zap.Error(ctx.Err()))
	case runErr = <-errCh:
		if runErr != nil {
			logger.Error("http server failed", zap.Error(runErr))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	shutdownErr := errors.Join(
		srv.Shutdown(shutdownCtx),
		feedPoller.Stop(shutdownCtx),
	)
	if runErr != nil {
		return runErr
	}
	return shutdownErr
}

func resolveFeedLocation(ctx context.Context, cfg *config.Config) (string, error) {
	var params config.ParameterStore
	if cfg.Log.Environment == "prod" && cfg.Feed.URLParameter != "" {
		var err error
		params, err = config.NewParameterStore(ctx)
		if err != nil {
			return "", fmt.Errorf("parameter store: %w", err)
		}
	}

	location, err := cfg.Feed.ResolveURL(ctx, cfg.Log.Environment, params)
	if err != nil {
		return "", fmt.Errorf("resolve feed location: %w", err)
	}
	return location, nil
}
