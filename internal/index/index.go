// Package index turns a document into a queryable semantic index: it chunks
// the text into overlapping word windows, embeds each chunk once and answers
// cosine-similarity queries with top-K selection and threshold filtering.
//
// An Index is a two-state machine, Empty -> Built -> Empty (Reset). Build on
// a built index is a no-op; Retrieve on an empty index fails with a
// ValidationError wrapping domain.ErrNotBuilt. Build and Reset must be
// serialised by the caller; Retrieve on a built index is safe for
// concurrent use.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"docrag/internal/chunker"
	"docrag/internal/domain"
	"docrag/internal/vectorstore"
	"docrag/internal/vectorstore/memory"
)

const (
	DefaultTopK      = 5
	DefaultThreshold = 0.2
)

// State is the lifecycle state of an Index.
type State int

const (
	StateEmpty State = iota
	StateBuilt
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateBuilt:
		return "built"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Config holds chunking and retrieval defaults. The zero Config means
// DefaultConfig. Otherwise zero ChunkSize, TopK, MinChunkLength and
// MaxChunkSize take the package defaults while Overlap and Threshold are
// used as given. MaxChunkSize never exceeds chunker.DefaultMaxChunkSize.
type Config struct {
	ChunkSize      int
	Overlap        int
	MinChunkLength int
	MaxChunkSize   int
	TopK           int
	Threshold      float64
}

// DefaultConfig returns the standard chunking and retrieval settings.
func DefaultConfig() Config {
	return Config{
		ChunkSize:      chunker.DefaultChunkSize,
		Overlap:        chunker.DefaultOverlap,
		MinChunkLength: chunker.DefaultMinChunkLength,
		MaxChunkSize:   chunker.DefaultMaxChunkSize,
		TopK:           DefaultTopK,
		Threshold:      DefaultThreshold,
	}
}

// Hit is one retrieved chunk with its position in the chunk sequence.
type Hit struct {
	Position int     `json:"position"`
	Score    float64 `json:"score"`
	Text     string  `json:"text"`
}

// Index owns the chunk sequence of one document and the similarity
// structure over the chunk embeddings.
type Index struct {
	embedder domain.Embedder
	store    vectorstore.Storage
	chunker  *chunker.WindowChunker
	cfg      Config
	log      *slog.Logger

	state     State
	chunks    []string
	dimension int
}

// New creates an empty index. A nil logger discards log output.
func New(embedder domain.Embedder, cfg Config, log *slog.Logger) *Index {
	return NewWithStorage(embedder, memory.NewStorage(), cfg, log)
}

// NewWithStorage creates an empty index backed by the given similarity structure.
func NewWithStorage(embedder domain.Embedder, store vectorstore.Storage, cfg Config, log *slog.Logger) *Index {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = chunker.DefaultChunkSize
	}
	if cfg.MinChunkLength == 0 {
		cfg.MinChunkLength = chunker.DefaultMinChunkLength
	}
	if cfg.MaxChunkSize <= 0 || cfg.MaxChunkSize > chunker.DefaultMaxChunkSize {
		cfg.MaxChunkSize = chunker.DefaultMaxChunkSize
	}
	if cfg.TopK == 0 {
		cfg.TopK = DefaultTopK
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Index{
		embedder: embedder,
		store:    store,
		chunker:  chunker.NewWindowChunker(cfg.MinChunkLength, cfg.MaxChunkSize),
		cfg:      cfg,
		log:      log.With("component", "index", "embedder", embedder.Name()),
	}
}

// State reports the lifecycle state.
func (x *Index) State() State { return x.state }

// Len returns the number of indexed chunks.
func (x *Index) Len() int { return len(x.chunks) }

// Dimension returns the embedding dimension recorded at build time, or 0.
func (x *Index) Dimension() int { return x.dimension }

// Chunks returns a copy of the chunk sequence.
func (x *Index) Chunks() []string {
	out := make([]string, len(x.chunks))
	copy(out, x.chunks)
	return out
}

// Config returns the effective configuration.
func (x *Index) Config() Config { return x.cfg }

// Validate reports whether text can be built with the configured chunk
// size and overlap, without embedding anything.
func (x *Index) Validate(text string) error {
	return x.chunker.Validate(text, x.cfg.ChunkSize, x.cfg.Overlap)
}

// Chunk splits text into overlapping word windows without touching index state.
func (x *Index) Chunk(text string, chunkSize, overlap int) ([]string, error) {
	x.log.Debug("chunking text", "chars", len(text), "chunk_size", chunkSize, "overlap", overlap)
	chunks, err := x.chunker.Split(text, chunkSize, overlap)
	if err != nil {
		return nil, err
	}
	x.log.Info("created text chunks", "chunks", len(chunks), "words", len(strings.Fields(text)))
	return chunks, nil
}

// Build indexes text with the configured chunk size and overlap.
func (x *Index) Build(ctx context.Context, text string) error {
	return x.BuildSized(ctx, text, x.cfg.ChunkSize, x.cfg.Overlap)
}

// BuildSized chunks and embeds text and builds the similarity structure.
// It returns nil without recomputing anything if the index is already built.
// On any failure the index is left empty.
func (x *Index) BuildSized(ctx context.Context, text string, chunkSize, overlap int) error {
	if x.state == StateBuilt {
		x.log.Info("index already built, skipping rebuild")
		return nil
	}
	x.log.Info("building index")

	chunks, err := x.Chunk(text, chunkSize, overlap)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return &domain.IndexError{Op: "build", Err: errors.New("no valid chunks created from input text")}
	}

	if err := x.populate(ctx, chunks); err != nil {
		x.clear()
		x.log.Error("index build failed", "error", err)
		return &domain.IndexError{Op: "build", Err: err}
	}
	x.state = StateBuilt
	x.log.Info("index built", "chunks", len(x.chunks), "dimension", x.dimension, "vectors", x.store.Len())
	return nil
}

func (x *Index) populate(ctx context.Context, chunks []string) error {
	x.chunks = chunks
	if p, ok := x.embedder.(domain.CorpusPreparer); ok {
		if err := p.Prepare(chunks); err != nil {
			return fmt.Errorf("prepare embedder: %w", err)
		}
	}
	vectors, err := x.embedder.Embed(ctx, chunks)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}
	dim := len(vectors[0])
	if dim == 0 {
		return errors.New("embedder returned empty vectors")
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("chunk %d: embedding dimension %d, want %d", i, len(v), dim)
		}
		if !finite(v) {
			return fmt.Errorf("chunk %d: embedding has non-finite components", i)
		}
	}
	x.dimension = dim
	if err := x.store.Init(dim); err != nil {
		return fmt.Errorf("init similarity structure: %w", err)
	}
	if err := x.store.Add(vectors); err != nil {
		return fmt.Errorf("add embeddings: %w", err)
	}
	return nil
}

// Retrieve returns chunk texts for query using the configured top-K and threshold.
func (x *Index) Retrieve(ctx context.Context, query string) ([]string, error) {
	return x.RetrieveTop(ctx, query, x.cfg.TopK, x.cfg.Threshold)
}

// RetrieveTop returns the texts of the topK most similar chunks whose score
// is strictly greater than threshold, best first. An empty result is not an error.
func (x *Index) RetrieveTop(ctx context.Context, query string, topK int, threshold float64) ([]string, error) {
	hits, err := x.RetrieveScored(ctx, query, topK, threshold)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	return texts, nil
}

// RetrieveScored is RetrieveTop with positions and scores attached.
func (x *Index) RetrieveScored(ctx context.Context, query string, topK int, threshold float64) ([]Hit, error) {
	const op = "retrieve"
	if x.state != StateBuilt {
		return nil, &domain.ValidationError{Op: op, Err: domain.ErrNotBuilt}
	}
	if strings.TrimSpace(query) == "" {
		return nil, domain.NewValidationError(op, "query must be a non-empty string")
	}
	if topK <= 0 {
		return nil, domain.NewValidationError(op, "top_k must be a positive integer, got %d", topK)
	}
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return nil, domain.NewValidationError(op, "threshold must be between 0 and 1, got %v", threshold)
	}
	if topK > len(x.chunks) {
		x.log.Warn("top_k exceeds available chunks", "top_k", topK, "chunks", len(x.chunks))
		topK = len(x.chunks)
	}

	vectors, err := x.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, &domain.IndexError{Op: op, Err: fmt.Errorf("embed query: %w", err)}
	}
	if len(vectors) != 1 {
		return nil, &domain.IndexError{Op: op, Err: fmt.Errorf("embedder returned %d vectors for 1 query", len(vectors))}
	}
	if len(vectors[0]) != x.dimension {
		return nil, &domain.IndexError{Op: op, Err: fmt.Errorf("query dimension %d, index dimension %d", len(vectors[0]), x.dimension)}
	}
	if !finite(vectors[0]) {
		return nil, &domain.IndexError{Op: op, Err: errors.New("query embedding has non-finite components")}
	}

	matches, err := x.store.Search(vectors[0], topK)
	if err != nil {
		return nil, &domain.IndexError{Op: op, Err: err}
	}
	hits := make([]Hit, 0, len(matches))
	for _, m := range matches {
		if m.Position >= len(x.chunks) || m.Score <= threshold {
			continue
		}
		x.log.Debug("selected chunk", "position", m.Position, "score", m.Score)
		hits = append(hits, Hit{Position: m.Position, Score: m.Score, Text: x.chunks[m.Position]})
	}
	x.log.Info("retrieved relevant chunks", "hits", len(hits), "top_k", topK, "threshold", threshold)
	return hits, nil
}

// Reset returns the index to the empty state unconditionally.
func (x *Index) Reset() {
	x.clear()
	x.log.Info("index reset")
}

func (x *Index) clear() {
	defer func() {
		if r := recover(); r != nil {
			x.log.Error("similarity structure panicked on clear", "panic", r)
			x.store = memory.NewStorage()
		}
		x.chunks = nil
		x.dimension = 0
		x.state = StateEmpty
	}()
	x.store.Clear()
}

func finite(v []float64) bool {
	for _, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
