package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"kairos-demo/server/internal/api"
	"kairos-demo/server/internal/catalog"
	"kairos-demo/server/internal/config"
	"kairos-demo/server/internal/observe"
	"kairos-demo/server/internal/prefs"
	"kairos-demo/server/internal/session"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP/WebSocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger, closer, err := cfg.Logging.NewLogger()
	if err != nil {
		return err
	}
	defer closer.Close()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "kairosd", ServiceVersion: version})
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer shutdownMetrics(context.Background())
	metrics := observe.DefaultMetrics()

	cat, err := catalog.Load(cfg.Catalog.Path, logger)
	if err != nil {
		return err
	}
	holder := catalog.NewHolder(cat)

	app, err := prefs.Open(cfg.Paths.Prefs)
	if err != nil {
		return err
	}

	store := session.NewInMemoryStore(metrics)
	server := api.NewServer(cfg, holder, store, app, metrics, logger)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           server.Routes(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ErrorLog:          logger,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Printf("[Server] 🚀 kairosd %s listening on %s", version, httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		logger.Printf("[Server] shutdown signal received, stopping...")
		return httpServer.Shutdown(shutdownCtx)
	})

	if cfg.Catalog.Watch {
		watcher := catalog.NewWatcher(cfg.Catalog.Path, holder, logger, func(*catalog.Catalog) {
			metrics.RecordCatalogReload(gctx)
		})
		g.Go(func() error { return watcher.Run(gctx) })
	}

	g.Go(func() error {
		sweepSessions(gctx, store, cfg.Session, logger)
		return nil
	})

	err = g.Wait()

	// 进程退出前停止所有仍在进行的回放
	dialogs, _ := store.List(context.Background())
	for _, d := range dialogs {
		d.Close()
	}
	logger.Printf("[Server] goodbye (%d open sessions closed)", len(dialogs))
	return err
}

// sweepSessions 定期清理闲置的对话窗口
func sweepSessions(ctx context.Context, store *session.InMemoryStore, cfg config.SessionConfig, logger *log.Logger) {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if ids := store.Sweep(ctx, now, cfg.MaxIdle); len(ids) > 0 {
				logger.Printf("[Session] 🧹 swept %d idle sessions: %v", len(ids), ids)
			}
		}
	}
}
