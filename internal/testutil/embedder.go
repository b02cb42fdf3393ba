// Package testutil holds deterministic stand-ins for model-backed collaborators.
package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"
)

// HashEmbedder embeds text as a normalized bag of hashed lowercase words, so
// texts sharing words score close together.
type HashEmbedder struct {
	Dim int

	mu    sync.Mutex
	calls int
}

func NewHashEmbedder() *HashEmbedder {
	return &HashEmbedder{Dim: 256}
}

func (e *HashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.count()
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = e.embed(text)
	}
	return vectors, nil
}

func (e *HashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	e.count()
	return e.embed(text), nil
}

// Calls reports how many embedding requests were made.
func (e *HashEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *HashEmbedder) count() {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
}

func (e *HashEmbedder) embed(text string) []float32 {
	vector := make([]float32, e.Dim)
	// The last dimension keeps every vector non-zero.
	vector[e.Dim-1] = 0.01

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, word := range words {
		h := fnv.New32a()
		h.Write([]byte(word))
		vector[int(h.Sum32())%(e.Dim-1)]++
	}

	var sum float64
	for _, v := range vector {
		sum += float64(v * v)
	}
	norm := float32(math.Sqrt(sum))
	for i := range vector {
		vector[i] /= norm
	}
	return vector
}
