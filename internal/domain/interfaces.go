package domain

import "context"

// Embedder converts free text into numeric vector representations.
// Embed must preserve input order and be deterministic for identical input.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// CorpusPreparer is implemented by embedders that must be fitted to the
// chunk corpus before embedding it (TF-IDF and friends).
type CorpusPreparer interface {
	Prepare(corpus []string) error
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
