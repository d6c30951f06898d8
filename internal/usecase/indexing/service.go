package indexing

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/knnsearch/internal/db"
	"github.com/kailas-cloud/knnsearch/internal/domain"
	"github.com/kailas-cloud/knnsearch/internal/metrics"
)

// maxLineSize bounds a single JSONL record.
const maxLineSize = 16 << 20

// ErrTooManyFailures aborts a run whose failures exceed Options.MaxFailures.
var ErrTooManyFailures = errors.New("too many failed documents")

// Service streams JSONL documents, embeds their descriptions and writes them to the index.
// Documents are processed one at a time in source order.
type Service struct {
	prov   Provisioner
	writer DocumentWriter
	embed  domain.Embedder
	opts   Options
	logger *zap.Logger
}

// New creates an indexing service.
func New(prov Provisioner, writer DocumentWriter, embed domain.Embedder, opts Options, logger *zap.Logger) *Service {
	if opts.IDField == "" {
		opts.IDField = "id"
	}
	if opts.OnMissing == "" {
		opts.OnMissing = MissingSkip
	}
	return &Service{prov: prov, writer: writer, embed: embed, opts: opts, logger: logger}
}

// Run provisions indexName and indexes every document of the file at sourcePath.
// "-" reads standard input.
func (s *Service) Run(ctx context.Context, sourcePath, indexName string) (domain.IndexingReport, error) {
	var r io.Reader
	if sourcePath == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(filepath.Clean(sourcePath))
		if err != nil {
			return domain.IndexingReport{Index: indexName}, fmt.Errorf("open source: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	return s.RunReader(ctx, r, indexName)
}

// RunReader is Run over an already opened source.
// The partial report is returned together with any fatal error.
func (s *Service) RunReader(
	ctx context.Context, r io.Reader, indexName string,
) (report domain.IndexingReport, err error) {
	start := time.Now()
	report.Index = indexName

	if err := s.prov.Ensure(ctx, indexName, s.opts.Schema); err != nil {
		report.Duration = time.Since(start)
		return report, err //nolint:wrapcheck // already ErrProvisioning
	}
	defer func() {
		report.Duration = time.Since(start)
		s.logSummary(&report)
	}()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		report.Attempted++
		if err := s.indexLine(ctx, &report, indexName, line, raw); err != nil {
			return report, err
		}
		if s.opts.MaxFailures > 0 && report.Failed > s.opts.MaxFailures {
			return report, fmt.Errorf("%w: %d > %d", ErrTooManyFailures, report.Failed, s.opts.MaxFailures)
		}
	}
	if err := sc.Err(); err != nil {
		return report, fmt.Errorf("read source at line %d: %w", line+1, err)
	}
	return report, nil
}

// indexLine handles one record. Per-document failures go to the report;
// only run-stopping conditions are returned.
func (s *Service) indexLine(
	ctx context.Context, report *domain.IndexingReport, indexName string, line int, raw []byte,
) error {
	doc, err := domain.ParseDocument(raw)
	if err != nil {
		s.fail(report, indexName, line, "", err)
		return nil
	}

	id := s.documentID(doc)
	log := s.logger.With(zap.String("index", indexName), zap.Int("line", line), zap.String("id", id))

	desc, err := doc.Description()
	if err != nil {
		if s.opts.OnMissing == MissingAbort {
			s.fail(report, indexName, line, id, err)
			return fmt.Errorf("line %d: %w", line, err)
		}
		report.AddSkipped(line, err)
		metrics.IndexerDocumentsTotal.WithLabelValues(indexName, metrics.StatusSkipped).Inc()
		log.Debug("Document skipped", zap.Error(err))
		return nil
	}

	res, err := s.embed.Embed(ctx, []string{desc}, domain.IntentDocument, s.opts.Dim)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.fail(report, indexName, line, id, fmt.Errorf("embed: %w", err))
		return nil
	}

	status := metrics.StatusIndexed
	if vec, ok := res.First(); ok {
		if err := domain.CheckDim(vec, s.opts.Dim); err != nil {
			s.fail(report, indexName, line, id, err)
			return nil
		}
		doc.SetVector(vec)
	} else {
		doc.DropVector()
		status = metrics.StatusWithoutVector
		log.Warn("No embedding returned, indexing without vector")
	}

	data, err := doc.Marshal()
	if err != nil {
		s.fail(report, indexName, line, id, err)
		return nil
	}

	key := db.KeyPrefix(indexName) + id
	writeStart := time.Now()
	err = s.opts.Retry.Do(ctx, func(ctx context.Context) error {
		return s.writer.JSONSet(ctx, key, "$", data) //nolint:wrapcheck // wrapped below
	})
	metrics.IndexerWriteDuration.WithLabelValues(indexName).Observe(time.Since(writeStart).Seconds())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.fail(report, indexName, line, id, fmt.Errorf("%w: %w", domain.ErrIndexWrite, err))
		return nil
	}

	report.Succeeded++
	if status == metrics.StatusWithoutVector {
		report.WithoutVector++
	}
	metrics.IndexerDocumentsTotal.WithLabelValues(indexName, status).Inc()
	log.Debug("Document indexed", zap.String("key", key), zap.Bool("vector", doc.HasVector()))
	return nil
}

func (s *Service) fail(report *domain.IndexingReport, indexName string, line int, id string, err error) {
	report.AddError(line, id, err)
	metrics.IndexerDocumentsTotal.WithLabelValues(indexName, metrics.StatusFailed).Inc()
	s.logger.Debug("Document failed",
		zap.String("index", indexName),
		zap.Int("line", line),
		zap.String("id", id),
		zap.Error(err),
	)
}

// documentID uses the configured ID field when it holds a string or number.
func (s *Service) documentID(doc domain.Document) string {
	switch v := doc[s.opts.IDField].(type) {
	case string:
		if v != "" {
			return v
		}
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return uuid.NewString()
}

func (s *Service) logSummary(report *domain.IndexingReport) {
	s.logger.Info("Indexing finished",
		zap.String("index", report.Index),
		zap.Int("attempted", report.Attempted),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Int("without_vector", report.WithoutVector),
		zap.Duration("duration", report.Duration),
	)
}
