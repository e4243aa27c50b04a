// Package session drives one document chat: it owns the index for the
// currently loaded document, serialises loads and resets against queries
// and measures the context handed to the answer generator.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"docrag/internal/domain"
	"docrag/internal/extract"
	"docrag/internal/index"
)

// Index is the retrieval core a session drives.
type Index interface {
	Validate(text string) error
	Build(ctx context.Context, text string) error
	RetrieveScored(ctx context.Context, query string, topK int, threshold float64) ([]index.Hit, error)
	Reset()
	Len() int
	Stats() index.Stats
}

type Config struct {
	TopK             int
	Threshold        float64
	SummarySentences int
	// TokenEncoding names a tiktoken encoding. Empty, or an encoding that
	// cannot be loaded, falls back to WordEstimate.
	TokenEncoding string
}

type Document struct {
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`
}

type LoadResult struct {
	Document Document `json:"document"`
	Chunks   int      `json:"chunks"`
	Summary  string   `json:"summary"`
}

// Answer is the retrieval side of a chat turn. Empty means no chunk passed
// the threshold and the caller should answer without document context.
type Answer struct {
	Query         string      `json:"query"`
	Hits          []index.Hit `json:"hits"`
	ContextTokens int         `json:"context_tokens"`
	Empty         bool        `json:"empty"`
}

// Context joins the retrieved chunks the way they are placed in a prompt.
func (a *Answer) Context() string {
	parts := make([]string, len(a.Hits))
	for i, h := range a.Hits {
		parts[i] = h.Text
	}
	return strings.Join(parts, "\n\n")
}

type Info struct {
	ID       string      `json:"session_id"`
	Document *Document   `json:"document,omitempty"`
	Summary  string      `json:"summary,omitempty"`
	LoadedAt *time.Time  `json:"loaded_at,omitempty"`
	Stats    index.Stats `json:"stats"`
}

type Session struct {
	id         string
	cfg        Config
	idx        Index
	summarizer domain.Summarizer
	tokens     TokenCounter
	log        *slog.Logger

	mu       sync.RWMutex
	doc      *Document
	summary  string
	loadedAt time.Time
}

// New creates a session around idx. summarizer may be nil.
func New(cfg Config, idx Index, summarizer domain.Summarizer, log *slog.Logger) *Session {
	if cfg.TopK <= 0 {
		cfg.TopK = index.DefaultTopK
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	id := uuid.NewString()
	log = log.With("session", id)

	var tokens TokenCounter = WordEstimate{}
	if cfg.TokenEncoding != "" {
		tc, err := NewTiktokenCounter(cfg.TokenEncoding)
		if err != nil {
			log.Warn("token encoding unavailable, estimating from word count", "encoding", cfg.TokenEncoding, "error", err)
		} else {
			tokens = tc
		}
	}
	return &Session{id: id, cfg: cfg, idx: idx, summarizer: summarizer, tokens: tokens, log: log}
}

func (s *Session) ID() string { return s.id }

// LoadText replaces the current document with text. Text the index rejects
// leaves the current document in place; a failed build leaves the session
// without a document.
func (s *Session) LoadText(ctx context.Context, name, text string) (*LoadResult, error) {
	return s.load(ctx, Document{Name: name}, text)
}

// LoadDocument replaces the current document with an extracted one.
func (s *Session) LoadDocument(ctx context.Context, doc *extract.Document) (*LoadResult, error) {
	return s.load(ctx, Document{Name: doc.Name, Title: doc.Title}, doc.Text)
}

// LoadFile extracts the file at path and loads it.
func (s *Session) LoadFile(ctx context.Context, path string) (*LoadResult, error) {
	doc, err := extract.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return s.LoadDocument(ctx, doc)
}

func (s *Session) load(ctx context.Context, doc Document, text string) (*LoadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	if err := s.idx.Validate(text); err != nil {
		s.log.Warn("document rejected", "document", doc.Name, "error", err)
		return nil, err
	}
	s.clearLocked()
	if err := s.idx.Build(ctx, text); err != nil {
		s.log.Error("document load failed", "document", doc.Name, "error", err)
		return nil, err
	}

	summary := ""
	if s.summarizer != nil {
		var err error
		summary, err = s.summarizer.Summarize(text, s.cfg.SummarySentences)
		if err != nil {
			s.log.Warn("summary failed", "document", doc.Name, "error", err)
			summary = ""
		}
	}
	s.doc = &doc
	s.summary = summary
	s.loadedAt = time.Now()
	s.log.Info("document loaded", "document", doc.Name, "chunks", s.idx.Len(), "took", time.Since(start))
	return &LoadResult{Document: doc, Chunks: s.idx.Len(), Summary: summary}, nil
}

// Ask retrieves context for query with the configured top-K and threshold.
func (s *Session) Ask(ctx context.Context, query string) (*Answer, error) {
	return s.AskTop(ctx, query, s.cfg.TopK, s.cfg.Threshold)
}

func (s *Session) AskTop(ctx context.Context, query string, topK int, threshold float64) (*Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hits, err := s.idx.RetrieveScored(ctx, query, topK, threshold)
	if err != nil {
		return nil, err
	}
	ans := &Answer{Query: query, Hits: hits, Empty: len(hits) == 0}
	if ans.Empty {
		s.log.Info("no relevant context found, answering without document context", "query_chars", len(query))
		return ans, nil
	}
	ans.ContextTokens = s.tokens.Count(ans.Context())
	return ans, nil
}

// Reset removes the current document.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	s.log.Info("document removed")
}

func (s *Session) clearLocked() {
	s.idx.Reset()
	s.doc = nil
	s.summary = ""
	s.loadedAt = time.Time{}
}

func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info := Info{ID: s.id, Summary: s.summary, Stats: s.idx.Stats()}
	if s.doc != nil {
		doc := *s.doc
		loaded := s.loadedAt
		info.Document = &doc
		info.LoadedAt = &loaded
	}
	return info
}

// Retrieval returns the default top-K and threshold used by Ask.
func (s *Session) Retrieval() (topK int, threshold float64) {
	return s.cfg.TopK, s.cfg.Threshold
}
