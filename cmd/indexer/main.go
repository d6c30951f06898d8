// Command indexer embeds a JSONL product catalog and writes it into a vector index.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/kailas-cloud/knnsearch/internal/app"
	"github.com/kailas-cloud/knnsearch/internal/present"
	"github.com/kailas-cloud/knnsearch/internal/version"
)

const usage = "Usage: indexer [-config file] [-on-missing abort|skip] <jsonl_file> <index_name> [host] [port] [user] [password]"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("indexer", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "config file (default config/<ENV>.yaml)")
	onMissing := fs.String("on-missing", "", "documents without description: abort or skip")
	showVersion := fs.Bool("version", false, "print version and exit")
	fs.Usage = func() { fmt.Fprintln(stderr, usage); fs.PrintDefaults() }
	if err := fs.Parse(args); err != nil {
		return app.ExitFatal
	}
	if *showVersion {
		fmt.Fprintln(stdout, version.String("indexer"))
		return app.ExitOK
	}
	pos := fs.Args()
	if len(pos) < 2 || len(pos) > 6 {
		fmt.Fprintln(stderr, usage)
		return app.ExitFatal
	}
	source, indexName := pos[0], pos[1]

	app.LoadEnv()
	cfg, env, err := app.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return app.ExitFatal
	}
	if err := cfg.ApplyConnectionArgs(pos[2:]); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		fmt.Fprintln(stderr, usage)
		return app.ExitFatal
	}
	if *onMissing != "" {
		cfg.Indexing.OnMissing = *onMissing
	}

	logger, err := app.NewLogger(env, cfg)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return app.ExitFatal
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting indexer",
		zap.String("version", version.Version),
		zap.String("env", env),
		zap.String("source", source),
		zap.String("index", indexName),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)
	app.RegisterMetrics()

	def, err := app.LoadSchema(cfg)
	if err != nil {
		logger.Error("Invalid index schema", zap.Error(err))
		fmt.Fprintln(stderr, "Error:", err)
		return app.ExitFatal
	}

	store, err := app.OpenStore(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("Index store unavailable", zap.Error(err))
		fmt.Fprintln(stderr, "Error:", err)
		return app.ExitFatal
	}
	defer store.Close()

	emb, err := app.BuildEmbedding(ctx, cfg, store, logger)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return app.ExitFatal
	}

	indexer, err := app.NewIndexer(cfg, def, store, emb.Embedder, logger)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return app.ExitFatal
	}

	report, runErr := indexer.Run(ctx, source, indexName)
	for _, l := range present.Report(report) {
		fmt.Fprintln(stdout, l)
	}

	switch {
	case errors.Is(runErr, context.Canceled):
		fmt.Fprintln(stderr, "Interrupted")
		return app.ExitFatal
	case runErr != nil:
		fmt.Fprintln(stderr, "Error:", runErr)
		return app.ExitFatal
	case report.Failed > 0:
		return app.ExitPartial
	}
	return app.ExitOK
}
