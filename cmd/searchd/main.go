// Command searchd serves KNN queries over HTTP.
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
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/knnsearch/internal/app"
	"github.com/kailas-cloud/knnsearch/internal/config"
	"github.com/kailas-cloud/knnsearch/internal/metrics"
	chiTransport "github.com/kailas-cloud/knnsearch/internal/transport/chi"
	healthuc "github.com/kailas-cloud/knnsearch/internal/usecase/health"
	"github.com/kailas-cloud/knnsearch/internal/version"
)

func main() {
	configPath := flag.String("config", "", "config file (default config/<ENV>.yaml)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("searchd"))
		return
	}

	app.LoadEnv()
	cfg, env, err := app.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(app.ExitFatal)
	}

	logger, err := app.NewLogger(env, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(app.ExitFatal)
	}
	defer func() { _ = logger.Sync() }()

	if err := serve(cfg, env, logger); err != nil {
		logger.Error("searchd stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(app.ExitFatal)
	}
	logger.Info("Server stopped gracefully")
}

func serve(cfg config.Config, env string, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting knnsearch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("index", cfg.Index.Name),
	)
	app.RegisterMetrics()

	def, err := app.LoadSchema(cfg)
	if err != nil {
		return err //nolint:wrapcheck // already wrapped
	}
	store, err := app.OpenStore(ctx, cfg.Database, logger)
	if err != nil {
		return err //nolint:wrapcheck // already wrapped
	}
	defer store.Close()

	emb, err := app.BuildEmbedding(ctx, cfg, store, logger)
	if err != nil {
		return err //nolint:wrapcheck // already wrapped
	}
	engine := app.NewQueryEngine(cfg, def, store, emb.Embedder, logger)

	healthOpts := []healthuc.Option{healthuc.WithTimeout(cfg.DBTimeout())}
	if cfg.Index.Name != "" {
		healthOpts = append(healthOpts, healthuc.WithIndex(store, cfg.Index.Name))
	}
	healthSvc := healthuc.New(store, emb, healthOpts...)

	server := chiTransport.NewServer(engine, healthSvc,
		chiTransport.Defaults{K: cfg.Query.K, Size: cfg.Query.Size}, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.Routes(cfg.Auth.APIKeys, metrics.Middleware()),
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Received shutdown signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return g.Wait() //nolint:wrapcheck // goroutine errors are wrapped
}
