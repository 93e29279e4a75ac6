package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// MockEmbedder is an offline embedder for tests and local runs.
// It hashes lowercase word tokens into a fixed number of buckets, so texts
// sharing words land close together while identical texts are identical.
type MockEmbedder struct {
	dimensions int
}

// New creates a new mock embedder with 384 dimensions.
func New() *MockEmbedder {
	return NewWithDimensions(384)
}

// NewWithDimensions creates a mock embedder with the given vector size.
func NewWithDimensions(dims int) *MockEmbedder {
	if dims <= 0 {
		dims = 384
	}
	return &MockEmbedder{dimensions: dims}
}

// Embed creates a deterministic bag-of-words embedding from text.
func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embedding := make([]float32, m.dimensions)

	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(m.dimensions))
		// Sign bit spreads collisions
		if sum&(1<<63) != 0 {
			embedding[idx] -= 1
		} else {
			embedding[idx] += 1
		}
	}

	return normalize(embedding), nil
}

// Dimensions returns the embedding size.
func (m *MockEmbedder) Dimensions() int {
	return m.dimensions
}

// normalize converts embedding to unit vector.
func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	// Empty text still needs a non-zero vector
	if norm == 0 {
		vec[0] = 1
		return vec
	}

	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}
