package knnsearch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/knnsearch/internal/db"
	"github.com/kailas-cloud/knnsearch/internal/domain"
)

// ErrNotFound is returned by Get for an unknown document.
var ErrNotFound = errors.New("knnsearch: not found")

// Get returns the stored fields of one document without its vector.
func (c *Client) Get(ctx context.Context, indexName, id string) (map[string]any, error) {
	start := time.Now()
	fields, err := c.get(ctx, indexName, id)
	c.obs.observe("get", start, err)
	return fields, err
}

func (c *Client) get(ctx context.Context, indexName, id string) (map[string]any, error) {
	raw, err := c.store.JSONGet(ctx, db.KeyPrefix(indexName)+id)
	if db.IsNotFound(err) {
		return nil, fmt.Errorf("%w: document %q in %s", ErrNotFound, id, indexName)
	}
	if err != nil {
		return nil, fmt.Errorf("knnsearch: get %s: %w", id, err)
	}
	doc, err := domain.ParseDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("knnsearch: decode %s: %w", id, err)
	}
	doc.DropVector()
	return doc, nil
}

// Count returns the number of documents indexed under indexName.
func (c *Client) Count(ctx context.Context, indexName string) (int, error) {
	start := time.Now()
	n, err := c.store.IndexDocCount(ctx, indexName)
	c.obs.observe("count", start, err)
	if err != nil {
		return 0, fmt.Errorf("knnsearch: count %s: %w", indexName, err)
	}
	return n, nil
}

// Drop removes the index definition. Documents stay in the store and are picked
// up again when the index is re-created.
func (c *Client) Drop(ctx context.Context, indexName string) error {
	start := time.Now()
	err := c.store.DropIndex(ctx, indexName)
	c.obs.observe("drop", start, err)
	if err != nil {
		return fmt.Errorf("knnsearch: drop %s: %w", indexName, err)
	}
	return nil
}
