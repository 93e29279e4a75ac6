// Package remote adapts chromem-go's hosted embedding functions
// (OpenAI, Ollama) to memory.Embedder.
package remote

import (
	"context"
	"sync/atomic"

	chromem "github.com/philippgille/chromem-go"
	"github.com/pkg/errors"
)

// Embedder calls a remote embedding API.
type Embedder struct {
	fn   chromem.EmbeddingFunc
	dims atomic.Int64
}

// NewOpenAI embeds with the OpenAI embeddings API. An empty model
// selects text-embedding-3-small.
func NewOpenAI(apiKey, model string) *Embedder {
	m := chromem.EmbeddingModelOpenAI(model)
	if model == "" {
		m = chromem.EmbeddingModelOpenAI3Small
	}
	dims := 1536
	if m == chromem.EmbeddingModelOpenAI3Large {
		dims = 3072
	}
	return NewFunc(chromem.NewEmbeddingFuncOpenAI(apiKey, m), dims)
}

// NewOllama embeds with a local Ollama server. An empty baseURL uses
// chromem-go's default of http://localhost:11434/api.
func NewOllama(model, baseURL string) *Embedder {
	return NewFunc(chromem.NewEmbeddingFuncOllama(model, baseURL), 0)
}

// NewFunc wraps an arbitrary chromem embedding func.
func NewFunc(fn chromem.EmbeddingFunc, dims int) *Embedder {
	e := &Embedder{fn: fn}
	e.dims.Store(int64(dims))
	return e
}

// Embed calls the remote API.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.fn(ctx, text)
	if err != nil {
		return nil, errors.Wrap(err, "remote embed")
	}
	e.dims.CompareAndSwap(0, int64(len(vec)))
	return vec, nil
}

// Dimensions returns the vector size, 0 until known.
func (e *Embedder) Dimensions() int {
	return int(e.dims.Load())
}
