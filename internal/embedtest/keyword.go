// Package embedtest provides deterministic embedders for tests.
package embedtest

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"github.com/kailas-cloud/knnsearch/internal/domain"
)

var _ domain.Embedder = (*Keyword)(nil)

// Keyword embeds text as a bag of known words: each word in Axes adds 1 to its axis.
// Text without known words points along the last axis.
type Keyword struct {
	Axes map[string]int
	// Empty lists texts that yield no embedding.
	Empty map[string]bool
	// Dim overrides the returned length; zero honors the requested dimensionality.
	Dim int

	mu    sync.Mutex
	calls []Call
}

// Call records one Embed invocation.
type Call struct {
	Texts  []string
	Intent domain.TaskIntent
	Dim    int
}

// NewCatalog returns a Keyword embedder that separates footwear, headwear and colors.
func NewCatalog() *Keyword {
	return &Keyword{Axes: map[string]int{
		"shoe": 0, "shoes": 0, "footwear": 0, "sneaker": 0, "boot": 0,
		"hat": 1, "cap": 1, "headwear": 1,
		"red": 2, "blue": 3, "green": 4,
	}}
}

// Embed implements domain.Embedder.
func (k *Keyword) Embed(_ context.Context, texts []string, intent domain.TaskIntent, dim int) (domain.EmbeddingResult, error) {
	k.mu.Lock()
	k.calls = append(k.calls, Call{Texts: append([]string(nil), texts...), Intent: intent, Dim: dim})
	k.mu.Unlock()

	n := dim
	if k.Dim > 0 {
		n = k.Dim
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		if k.Empty[t] {
			return domain.EmbeddingResult{}, nil
		}
		out = append(out, k.vector(t, n))
	}
	return domain.EmbeddingResult{Embeddings: out, TotalTokens: len(texts)}, nil
}

func (k *Keyword) vector(text string, n int) []float32 {
	vec := make([]float32, n)
	known := false
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !unicode.IsLetter(r) })
	for _, w := range words {
		if axis, ok := k.Axes[w]; ok && axis < n {
			vec[axis]++
			known = true
		}
	}
	if !known && n > 0 {
		vec[n-1] = 1
	}
	return vec
}

// Calls returns a copy of the recorded invocations.
func (k *Keyword) Calls() []Call {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]Call(nil), k.calls...)
}
