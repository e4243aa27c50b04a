// Package app assembles a document session from configuration.
package app

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"docrag/internal/config"
	"docrag/internal/embedding"
	"docrag/internal/index"
	"docrag/internal/session"
	"docrag/internal/summarizer"
	"docrag/internal/vectorstore"
	"docrag/internal/vectorstore/memory"
	"docrag/internal/vectorstore/qdrant"
)

// NewSession wires the embedder, similarity structure, index and
// summarizer selected by cfg into a session.
func NewSession(cfg *config.AppConfig, log *slog.Logger) (*session.Session, error) {
	emb, err := embedding.New(cfg.Embedder)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	store, err := NewStorage(cfg.VectorStore)
	if err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}
	if cfg.Summarizer.Type != "" && cfg.Summarizer.Type != "frequency" {
		return nil, fmt.Errorf("unknown summarizer: %s", cfg.Summarizer.Type)
	}

	idx := index.NewWithStorage(emb, store, index.Config{
		ChunkSize:      cfg.Chunker.ChunkSize,
		Overlap:        cfg.Chunker.Overlap,
		MinChunkLength: cfg.Chunker.MinChunkLength,
		MaxChunkSize:   cfg.Chunker.MaxChunkSize,
		TopK:           cfg.Retrieval.TopK,
		Threshold:      cfg.Retrieval.Threshold,
	}, log)
	return session.New(session.Config{
		TopK:             cfg.Retrieval.TopK,
		Threshold:        cfg.Retrieval.Threshold,
		SummarySentences: cfg.Summarizer.MaxSentences,
		TokenEncoding:    cfg.Retrieval.TokenEncoding,
	}, idx, summarizer.NewFrequency(), log), nil
}

// NewStorage builds the similarity structure selected by cfg.
func NewStorage(cfg config.VectorStoreConfig) (vectorstore.Storage, error) {
	switch cfg.Type {
	case "memory", "":
		return memory.NewStorage(), nil
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, fmt.Errorf("qdrant config missing")
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     os.Getenv(cfg.Qdrant.APIKeyEnv),
			Collection: cfg.Qdrant.Collection,
			Timeout:    time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
		}), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
	}
}
