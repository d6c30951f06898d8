// Command search answers free-text queries against a vector index, interactively.
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

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/kailas-cloud/knnsearch/internal/app"
	"github.com/kailas-cloud/knnsearch/internal/repl"
	"github.com/kailas-cloud/knnsearch/internal/tui"
	"github.com/kailas-cloud/knnsearch/internal/version"
)

const usage = "Usage: search [-config file] [-tui] <index_name> [host] [port] [user] [password]"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "config file (default config/<ENV>.yaml)")
	useTUI := fs.Bool("tui", false, "full-screen interface")
	k := fs.Int("k", 0, "nearest neighbors to consider (default query.k)")
	size := fs.Int("size", 0, "results to print (default query.size)")
	showVersion := fs.Bool("version", false, "print version and exit")
	fs.Usage = func() { fmt.Fprintln(stderr, usage); fs.PrintDefaults() }
	if err := fs.Parse(args); err != nil {
		return app.ExitFatal
	}
	if *showVersion {
		fmt.Fprintln(stdout, version.String("search"))
		return app.ExitOK
	}
	pos := fs.Args()
	if len(pos) < 1 || len(pos) > 5 {
		fmt.Fprintln(stderr, usage)
		return app.ExitFatal
	}
	indexName := pos[0]

	app.LoadEnv()
	cfg, env, err := app.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return app.ExitFatal
	}
	if err := cfg.ApplyConnectionArgs(pos[1:]); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		fmt.Fprintln(stderr, usage)
		return app.ExitFatal
	}
	cfg.ApplyDefaults()
	if err := cfg.OverrideQuery(*k, *size); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return app.ExitFatal
	}

	logger, err := app.NewLogger(env, cfg)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return app.ExitFatal
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Debug("Starting search",
		zap.String("version", version.Version),
		zap.String("index", indexName),
		zap.Int("k", cfg.Query.K),
		zap.Int("size", cfg.Query.Size),
	)
	app.RegisterMetrics()

	def, err := app.LoadSchema(cfg)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return app.ExitFatal
	}
	store, err := app.OpenStore(ctx, cfg.Database, logger)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return app.ExitFatal
	}
	defer store.Close()

	emb, err := app.BuildEmbedding(ctx, cfg, store, logger)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return app.ExitFatal
	}
	engine := app.NewQueryEngine(cfg, def, store, emb.Embedder, logger)

	if *useTUI {
		m := tui.New(ctx, engine, tui.Options{Index: indexName, K: cfg.Query.K, Size: cfg.Query.Size})
		p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			fmt.Fprintln(stderr, "Error:", err)
			return app.ExitFatal
		}
		return app.ExitOK
	}

	loop := repl.New(engine, repl.Options{Index: indexName, K: cfg.Query.K, Size: cfg.Query.Size}, stdin, stdout, logger)
	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(stderr, "Error:", err)
		return app.ExitFatal
	}
	return app.ExitOK
}
