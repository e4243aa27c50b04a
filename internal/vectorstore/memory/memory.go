package memory

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"docrag/internal/vectorstore"
)

// Storage is a flat in-memory index scored by brute-force inner product
// over L2-normalised vectors.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float64
}

func NewStorage() *Storage { return &Storage{} }

func (s *Storage) Init(dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.vectors = nil
	return nil
}

// Add normalises copies of vectors and appends them. Nothing is stored if
// any vector has the wrong dimension.
func (s *Storage) Add(vectors [][]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		return errors.New("storage not initialised")
	}
	normed := make([][]float64, len(vectors))
	for i, v := range vectors {
		if len(v) != s.dimension {
			return fmt.Errorf("vector %d: dimension %d, want %d", i, len(v), s.dimension)
		}
		normed[i] = Normalize(v)
	}
	s.vectors = append(s.vectors, normed...)
	return nil
}

// Search scores query against every stored vector and returns at most topK
// matches by descending score; equal scores keep insertion order.
func (s *Storage) Search(query []float64, topK int) ([]vectorstore.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(query) != s.dimension {
		return nil, fmt.Errorf("query dimension %d, want %d", len(query), s.dimension)
	}
	if topK <= 0 {
		return nil, errors.New("topK must be positive")
	}
	q := Normalize(query)
	matches := make([]vectorstore.Match, len(s.vectors))
	for i, v := range s.vectors {
		matches[i] = vectorstore.Match{Position: i, Score: dot(v, q)}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if topK > len(matches) {
		topK = len(matches)
	}
	return matches[:topK], nil
}

func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}

func (s *Storage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = nil
	s.dimension = 0
}

// Normalize returns v divided by its Euclidean norm. A zero vector is
// returned as a zero copy.
func Normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	norm := 0.0
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return out
	}
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
