// Package repl runs the interactive query loop over a line-oriented terminal.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/knnsearch/internal/domain"
	"github.com/kailas-cloud/knnsearch/internal/present"
)

// Prompt is printed before every read.
const Prompt = "Enter search query (or 'exit' to quit): "

// Searcher answers a single free-text query.
type Searcher interface {
	Search(ctx context.Context, indexName, text string, k, returnCount int) (domain.SearchResult, error)
}

// Options holds the fixed query parameters of a session.
type Options struct {
	Index string
	K     int
	Size  int
}

// Loop reads queries from in and writes results to out until exit, EOF or cancellation.
type Loop struct {
	searcher Searcher
	opts     Options
	in       io.Reader
	out      io.Writer
	logger   *zap.Logger
}

// New creates a query loop.
func New(searcher Searcher, opts Options, in io.Reader, out io.Writer, logger *zap.Logger) *Loop {
	return &Loop{searcher: searcher, opts: opts, in: in, out: out, logger: logger}
}

type line struct {
	text string
	err  error
}

// Run blocks until the user types exit, input ends, or ctx is done.
// EOF and exit return nil; cancellation returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	lines := make(chan line)
	next := make(chan struct{}, 1)
	go l.read(ctx, lines, next)

	for {
		if _, err := io.WriteString(l.out, Prompt); err != nil {
			return fmt.Errorf("write prompt: %w", err)
		}
		next <- struct{}{}

		var in line
		select {
		case <-ctx.Done():
			fmt.Fprintln(l.out)
			return ctx.Err()
		case in = <-lines:
		}
		if in.err != nil {
			if errors.Is(in.err, io.EOF) {
				fmt.Fprintln(l.out)
				return nil
			}
			return fmt.Errorf("read query: %w", in.err)
		}

		text := strings.TrimSpace(in.text)
		if strings.EqualFold(text, "exit") {
			return nil
		}
		if text == "" {
			continue
		}
		l.query(ctx, text)
	}
}

// read delivers one line per signal on next so the scanner never runs ahead of the prompt.
func (l *Loop) read(ctx context.Context, lines chan<- line, next <-chan struct{}) {
	sc := bufio.NewScanner(l.in)
	for {
		select {
		case <-ctx.Done():
			return
		case <-next:
		}
		var in line
		if sc.Scan() {
			in.text = sc.Text()
		} else {
			in.err = sc.Err()
			if in.err == nil {
				in.err = io.EOF
			}
		}
		select {
		case <-ctx.Done():
			return
		case lines <- in:
		}
		if in.err != nil {
			return
		}
	}
}

func (l *Loop) query(ctx context.Context, text string) {
	res, err := l.searcher.Search(ctx, l.opts.Index, text, l.opts.K, l.opts.Size)
	if err != nil {
		l.logger.Debug("Query failed", zap.String("query", text), zap.Error(err))
		fmt.Fprintf(l.out, "Error: %v\n\n", err)
		return
	}
	for _, s := range present.Format(res) {
		fmt.Fprintln(l.out, s)
	}
	fmt.Fprintln(l.out)
}
