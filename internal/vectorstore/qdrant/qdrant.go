package qdrant

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"docrag/internal/vectorstore"
)

// Storage keeps chunk vectors in a Qdrant collection over its REST API.
// The collection uses cosine distance and is recreated on every Init.
// Point IDs are chunk positions.
type Storage struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client

	mu        sync.RWMutex
	dimension int
	count     int
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *Storage) Init(dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropCollection()
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if err := s.do(http.MethodPut, s.collectionURL(""), body, nil); err != nil {
		return err
	}
	s.dimension = dimension
	s.count = 0
	return nil
}

// Add upserts vectors with IDs continuing from the current count.
func (s *Storage) Add(vectors [][]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		return errors.New("storage not initialised")
	}
	points := make([]map[string]any, len(vectors))
	for i, v := range vectors {
		if len(v) != s.dimension {
			return fmt.Errorf("vector %d: dimension %d, want %d", i, len(v), s.dimension)
		}
		pos := s.count + i
		points[i] = map[string]any{
			"id":      pos,
			"vector":  v,
			"payload": map[string]any{"position": pos},
		}
	}
	if err := s.do(http.MethodPut, s.collectionURL("/points?wait=true"), map[string]any{"points": points}, nil); err != nil {
		return err
	}
	s.count += len(vectors)
	return nil
}

// Search asks Qdrant for every point and ranks locally so that equal
// scores come back in position order.
func (s *Storage) Search(query []float64, topK int) ([]vectorstore.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(query) != s.dimension {
		return nil, fmt.Errorf("query dimension %d, want %d", len(query), s.dimension)
	}
	if topK <= 0 {
		return nil, errors.New("topK must be positive")
	}
	if s.count == 0 {
		return nil, nil
	}

	var matches []vectorstore.Match
	if isZero(query) {
		// cosine is undefined for a zero query; every chunk scores 0
		matches = make([]vectorstore.Match, s.count)
		for i := range matches {
			matches[i] = vectorstore.Match{Position: i}
		}
	} else {
		req := map[string]any{
			"vector":       query,
			"limit":        s.count,
			"with_payload": false,
		}
		var resp struct {
			Result []struct {
				ID    uint64  `json:"id"`
				Score float64 `json:"score"`
			} `json:"result"`
		}
		if err := s.do(http.MethodPost, s.collectionURL("/points/search"), req, &resp); err != nil {
			return nil, err
		}
		matches = make([]vectorstore.Match, 0, len(resp.Result))
		for _, r := range resp.Result {
			matches = append(matches, vectorstore.Match{Position: int(r.ID), Score: r.Score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Position < matches[j].Position
	})
	if topK > len(matches) {
		topK = len(matches)
	}
	return matches[:topK], nil
}

func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Clear drops the collection. Failures are ignored; the next Init recreates it.
func (s *Storage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropCollection()
	s.dimension = 0
	s.count = 0
}

func (s *Storage) dropCollection() {
	req, err := http.NewRequest(http.MethodDelete, s.collectionURL(""), nil)
	if err != nil {
		return
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	if resp, err := s.client.Do(req); err == nil {
		resp.Body.Close()
	}
}

func (s *Storage) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

func (s *Storage) do(method, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func isZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
