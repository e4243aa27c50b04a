package index

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"testing"

	"docrag/internal/domain"
)

// fakeEmbedder maps a text to a fixed vector keyed by its first word.
// Unknown keys embed to the zero vector.
type fakeEmbedder struct {
	vectors  map[string][]float64
	dim      int
	embedErr error
	dropLast bool
	calls    int
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{
		dim: 2,
		vectors: map[string][]float64{
			"alphaword": {1, 0},
			"betaword":  {0, 1},
			"gammaword": {1, 1},
			"diagword":  {1, 1},
		},
	}
}

func (f *fakeEmbedder) Name() string { return "fake" }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	f.calls++
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([][]float64, 0, len(texts))
	for _, t := range texts {
		key := ""
		if fields := strings.Fields(t); len(fields) > 0 {
			key = fields[0]
		}
		v, ok := f.vectors[key]
		if !ok {
			v = make([]float64, f.dim)
		}
		out = append(out, append([]float64(nil), v...))
	}
	if f.dropLast && len(out) > 1 {
		out = out[:len(out)-1]
	}
	return out, nil
}

type preparingEmbedder struct {
	*fakeEmbedder
	prepared   []string
	prepareErr error
}

func (p *preparingEmbedder) Prepare(corpus []string) error {
	p.prepared = corpus
	return p.prepareErr
}

// threeChunkText yields exactly three chunks with chunk size 3 and no overlap.
const threeChunkText = "alphaword x1 x2 betaword y1 y2 gammaword z1 z2"

func newTestIndex(e domain.Embedder, log *slog.Logger) *Index {
	return New(e, Config{ChunkSize: 3, Overlap: 0, TopK: 5, Threshold: 0.2}, log)
}

func buildTestIndex(t *testing.T, e domain.Embedder) *Index {
	t.Helper()
	x := newTestIndex(e, nil)
	if err := x.Build(context.Background(), threeChunkText); err != nil {
		t.Fatalf("build: %v", err)
	}
	return x
}

func TestBuild_IndexesChunks(t *testing.T) {
	x := buildTestIndex(t, newFakeEmbedder())
	if x.State() != StateBuilt {
		t.Fatalf("expected built state, got %v", x.State())
	}
	want := []string{"alphaword x1 x2", "betaword y1 y2", "gammaword z1 z2"}
	got := x.Chunks()
	if len(got) != len(want) {
		t.Fatalf("expected %d chunks, got %d: %q", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk %d: got %q, want %q", i, got[i], want[i])
		}
	}
	if x.Len() != 3 || x.Dimension() != 2 {
		t.Errorf("unexpected len/dimension: %d/%d", x.Len(), x.Dimension())
	}
}

func TestBuild_IsIdempotent(t *testing.T) {
	e := newFakeEmbedder()
	x := buildTestIndex(t, e)
	if err := x.Build(context.Background(), "betaword entirely different document text here"); err != nil {
		t.Fatalf("second build: %v", err)
	}
	if e.calls != 1 {
		t.Errorf("expected embedder to run once, ran %d times", e.calls)
	}
	if x.Len() != 3 || x.Chunks()[0] != "alphaword x1 x2" {
		t.Errorf("second build must not change chunks: %q", x.Chunks())
	}
}

func TestBuild_InvalidTextLeavesIndexEmpty(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		chunkSize int
		overlap   int
	}{
		{"empty", "", 3, 0},
		{"whitespace", "   \n\t ", 3, 0},
		{"too short", "tiny", 3, 0},
		{"zero chunk size", threeChunkText, 0, 0},
		{"chunk size above ceiling", threeChunkText, 2001, 0},
		{"negative overlap", threeChunkText, 3, -1},
		{"overlap equals chunk size", threeChunkText, 3, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newFakeEmbedder()
			x := newTestIndex(e, nil)
			err := x.BuildSized(context.Background(), tt.text, tt.chunkSize, tt.overlap)
			if !domain.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if x.State() != StateEmpty || x.Len() != 0 {
				t.Errorf("index must stay empty, state=%v len=%d", x.State(), x.Len())
			}
			if e.calls != 0 {
				t.Errorf("embedder must not run on invalid input")
			}
		})
	}
}

func TestBuild_NoValidChunksIsIndexError(t *testing.T) {
	x := newTestIndex(newFakeEmbedder(), nil)
	err := x.BuildSized(context.Background(), "a b c d e f", 2, 0)
	if !domain.IsIndex(err) {
		t.Fatalf("expected index error, got %v", err)
	}
	if x.State() != StateEmpty {
		t.Errorf("expected empty state, got %v", x.State())
	}
}

func TestBuild_RollsBackOnFailure(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakeEmbedder)
	}{
		{"embedder error", func(f *fakeEmbedder) { f.embedErr = errors.New("model unavailable") }},
		{"vector count mismatch", func(f *fakeEmbedder) { f.dropLast = true }},
		{"inconsistent dimension", func(f *fakeEmbedder) { f.vectors["betaword"] = []float64{0, 1, 0} }},
		{"NaN component", func(f *fakeEmbedder) { f.vectors["betaword"] = []float64{math.NaN(), 1} }},
		{"infinite component", func(f *fakeEmbedder) { f.vectors["gammaword"] = []float64{math.Inf(1), 1} }},
		{"empty vectors", func(f *fakeEmbedder) {
			f.dim = 0
			f.vectors = map[string][]float64{}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newFakeEmbedder()
			tt.setup(e)
			x := newTestIndex(e, nil)
			err := x.Build(context.Background(), threeChunkText)
			if !domain.IsIndex(err) {
				t.Fatalf("expected index error, got %v", err)
			}
			if x.State() != StateEmpty || x.Len() != 0 || x.Dimension() != 0 {
				t.Errorf("expected rollback, state=%v len=%d dim=%d", x.State(), x.Len(), x.Dimension())
			}
			if _, err := x.Retrieve(context.Background(), "alphaword"); !errors.Is(err, domain.ErrNotBuilt) {
				t.Errorf("expected not-built after rollback, got %v", err)
			}

			fresh := newFakeEmbedder()
			x.embedder = fresh
			if err := x.Build(context.Background(), threeChunkText); err != nil {
				t.Fatalf("build after rollback: %v", err)
			}
			if x.Len() != 3 {
				t.Errorf("expected 3 chunks after rebuild, got %d", x.Len())
			}
		})
	}
}

func TestBuild_PreparesCorpusEmbedders(t *testing.T) {
	p := &preparingEmbedder{fakeEmbedder: newFakeEmbedder()}
	x := buildTestIndex(t, p)
	if len(p.prepared) != x.Len() {
		t.Errorf("expected embedder prepared on %d chunks, got %d", x.Len(), len(p.prepared))
	}

	failing := &preparingEmbedder{fakeEmbedder: newFakeEmbedder(), prepareErr: errors.New("empty vocabulary")}
	y := newTestIndex(failing, nil)
	if err := y.Build(context.Background(), threeChunkText); !domain.IsIndex(err) {
		t.Fatalf("expected index error, got %v", err)
	}
	if y.State() != StateEmpty {
		t.Errorf("expected empty state after prepare failure")
	}
}

func TestRetrieve_BeforeBuild(t *testing.T) {
	x := newTestIndex(newFakeEmbedder(), nil)
	_, err := x.Retrieve(context.Background(), "alphaword")
	if !domain.IsValidation(err) || !errors.Is(err, domain.ErrNotBuilt) {
		t.Fatalf("expected not-built validation error, got %v", err)
	}
}

func TestRetrieve_RanksAndFilters(t *testing.T) {
	x := buildTestIndex(t, newFakeEmbedder())
	hits, err := x.RetrieveScored(context.Background(), "alphaword question", 5, 0.2)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	// alpha scores 1, gamma 1/sqrt(2), beta 0 and is filtered.
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %+v", hits)
	}
	if hits[0].Position != 0 || hits[1].Position != 2 {
		t.Errorf("unexpected ranking: %+v", hits)
	}
	if hits[0].Score < hits[1].Score {
		t.Errorf("scores must be non-increasing: %+v", hits)
	}
	if hits[0].Text != "alphaword x1 x2" {
		t.Errorf("unexpected text: %q", hits[0].Text)
	}
}

func TestRetrieve_TiesPreferEarlierChunks(t *testing.T) {
	x := buildTestIndex(t, newFakeEmbedder())
	texts, err := x.RetrieveTop(context.Background(), "diagword", 3, 0.2)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	want := []string{"gammaword z1 z2", "alphaword x1 x2", "betaword y1 y2"}
	if len(texts) != len(want) {
		t.Fatalf("expected %d texts, got %q", len(want), texts)
	}
	for i := range want {
		if texts[i] != want[i] {
			t.Errorf("position %d: got %q, want %q", i, texts[i], want[i])
		}
	}
}

func TestRetrieve_ThresholdIsStrict(t *testing.T) {
	x := buildTestIndex(t, newFakeEmbedder())
	texts, err := x.RetrieveTop(context.Background(), "alphaword", 5, 1.0)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(texts) != 0 {
		t.Errorf("a score equal to the threshold must be excluded, got %q", texts)
	}
}

func TestRetrieve_HigherThresholdNeverAddsResults(t *testing.T) {
	x := buildTestIndex(t, newFakeEmbedder())
	prev := -1
	for _, th := range []float64{0, 0.2, 0.5, 0.8, 0.99} {
		texts, err := x.RetrieveTop(context.Background(), "diagword", 3, th)
		if err != nil {
			t.Fatalf("retrieve at %v: %v", th, err)
		}
		if prev >= 0 && len(texts) > prev {
			t.Errorf("threshold %v returned %d results, previous returned %d", th, len(texts), prev)
		}
		prev = len(texts)
	}
}

func TestRetrieve_NoMatchIsEmptyNotError(t *testing.T) {
	x := buildTestIndex(t, newFakeEmbedder())
	texts, err := x.Retrieve(context.Background(), "unrelated question")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(texts) != 0 {
		t.Errorf("expected no results, got %q", texts)
	}
}

func TestRetrieve_CapsTopKAndWarns(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	x := newTestIndex(newFakeEmbedder(), log)
	if err := x.Build(context.Background(), threeChunkText); err != nil {
		t.Fatalf("build: %v", err)
	}
	texts, err := x.RetrieveTop(context.Background(), "diagword", 1000, 0)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(texts) != 3 {
		t.Errorf("expected all 3 chunks, got %d", len(texts))
	}
	if !strings.Contains(buf.String(), "level=WARN") || !strings.Contains(buf.String(), "top_k exceeds available chunks") {
		t.Errorf("expected a warning about top_k, log was:\n%s", buf.String())
	}
}

func TestRetrieve_TopKLimitsResults(t *testing.T) {
	x := buildTestIndex(t, newFakeEmbedder())
	texts, err := x.RetrieveTop(context.Background(), "diagword", 1, 0)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(texts) != 1 || texts[0] != "gammaword z1 z2" {
		t.Errorf("expected only the best chunk, got %q", texts)
	}
}

func TestRetrieve_RejectsInvalidArguments(t *testing.T) {
	x := buildTestIndex(t, newFakeEmbedder())
	tests := []struct {
		name      string
		query     string
		topK      int
		threshold float64
	}{
		{"empty query", "", 5, 0.2},
		{"blank query", "  \t", 5, 0.2},
		{"zero top k", "alphaword", 0, 0.2},
		{"negative top k", "alphaword", -2, 0.2},
		{"negative threshold", "alphaword", 5, -0.1},
		{"threshold above one", "alphaword", 5, 1.1},
		{"NaN threshold", "alphaword", 5, math.NaN()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := x.RetrieveTop(context.Background(), tt.query, tt.topK, tt.threshold)
			if !domain.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
	if x.State() != StateBuilt {
		t.Errorf("invalid queries must not change state")
	}
}

func TestRetrieve_QueryDimensionMismatch(t *testing.T) {
	e := newFakeEmbedder()
	x := buildTestIndex(t, e)
	e.vectors["wideword"] = []float64{1, 0, 0}
	_, err := x.Retrieve(context.Background(), "wideword")
	if !domain.IsIndex(err) {
		t.Fatalf("expected index error, got %v", err)
	}
}

func TestRetrieve_NonFiniteQueryIsIndexError(t *testing.T) {
	e := newFakeEmbedder()
	x := buildTestIndex(t, e)
	e.vectors["nanword"] = []float64{math.NaN(), 0}
	e.vectors["infword"] = []float64{math.Inf(-1), 1}
	for _, q := range []string{"nanword", "infword"} {
		if _, err := x.Retrieve(context.Background(), q); !domain.IsIndex(err) {
			t.Errorf("%s: expected index error, got %v", q, err)
		}
	}
	if x.State() != StateBuilt {
		t.Errorf("failed queries must not change state")
	}
}

func TestRetrieve_EmbedFailureIsIndexError(t *testing.T) {
	e := newFakeEmbedder()
	x := buildTestIndex(t, e)
	e.embedErr = errors.New("connection refused")
	if _, err := x.Retrieve(context.Background(), "alphaword"); !domain.IsIndex(err) {
		t.Fatalf("expected index error, got %v", err)
	}
	if x.State() != StateBuilt {
		t.Errorf("a failed query must not change state")
	}
}

func TestRetrieve_IsDeterministic(t *testing.T) {
	x := buildTestIndex(t, newFakeEmbedder())
	first, err := x.RetrieveScored(context.Background(), "diagword", 3, 0)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := x.RetrieveScored(context.Background(), "diagword", 3, 0)
		if err != nil {
			t.Fatalf("retrieve: %v", err)
		}
		for j := range first {
			if again[j] != first[j] {
				t.Fatalf("run %d differs at %d: %+v vs %+v", i, j, again[j], first[j])
			}
		}
	}
}

func TestReset(t *testing.T) {
	e := newFakeEmbedder()
	x := buildTestIndex(t, e)
	x.Reset()
	if x.State() != StateEmpty || x.Len() != 0 || x.Dimension() != 0 {
		t.Fatalf("expected empty index after reset")
	}
	if _, err := x.Retrieve(context.Background(), "alphaword"); !errors.Is(err, domain.ErrNotBuilt) {
		t.Errorf("expected not-built after reset, got %v", err)
	}
	x.Reset()

	if err := x.Build(context.Background(), "betaword one two"); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if e.calls != 2 || x.Len() != 1 {
		t.Errorf("expected fresh build, calls=%d len=%d", e.calls, x.Len())
	}
}

func TestStats(t *testing.T) {
	x := newTestIndex(newFakeEmbedder(), nil)
	if st := x.Stats(); st.Built || st.ChunkCount != 0 || st.AvgChunkLength != 0 {
		t.Errorf("unexpected stats for empty index: %+v", st)
	}
	if err := x.Build(context.Background(), threeChunkText); err != nil {
		t.Fatalf("build: %v", err)
	}
	st := x.Stats()
	if !st.Built || st.ChunkCount != 3 || st.IndexSize != 3 || st.Dimension != 2 || st.Embedder != "fake" {
		t.Errorf("unexpected stats: %+v", st)
	}
	if st.MinChunkLength != 14 || st.MaxChunkLength != 15 {
		t.Errorf("unexpected chunk lengths: %+v", st)
	}
}

func TestChunk_DoesNotTouchState(t *testing.T) {
	x := newTestIndex(newFakeEmbedder(), nil)
	chunks, err := x.Chunk(threeChunkText, 3, 0)
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if len(chunks) != 3 || x.State() != StateEmpty {
		t.Errorf("expected 3 chunks and empty state, got %d/%v", len(chunks), x.State())
	}
}

func TestNew_ZeroConfigUsesDefaults(t *testing.T) {
	x := New(newFakeEmbedder(), Config{}, nil)
	if got := x.Config(); got != DefaultConfig() {
		t.Errorf("expected defaults, got %+v", got)
	}
}

func TestNew_PartialConfigKeepsExplicitZeros(t *testing.T) {
	x := New(newFakeEmbedder(), Config{ChunkSize: 3}, nil)
	got := x.Config()
	if got.Overlap != 0 || got.Threshold != 0 {
		t.Errorf("overlap and threshold must be used as given, got %+v", got)
	}
	if got.TopK != DefaultTopK || got.MinChunkLength != 10 || got.MaxChunkSize != 2000 {
		t.Errorf("unset sizes must take defaults, got %+v", got)
	}
}

func TestChunk_CeilingCannotBeRaised(t *testing.T) {
	x := New(newFakeEmbedder(), Config{MaxChunkSize: 5000}, nil)
	if got := x.Config().MaxChunkSize; got != 2000 {
		t.Errorf("expected max chunk size clamped to 2000, got %d", got)
	}
	text := strings.Repeat("word ", 3000)
	if _, err := x.Chunk(text, 2500, 50); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidate_DoesNotEmbed(t *testing.T) {
	e := newFakeEmbedder()
	x := newTestIndex(e, nil)
	if err := x.Validate("tiny"); !domain.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
	if err := x.Validate(threeChunkText); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if e.calls != 0 || x.State() != StateEmpty {
		t.Errorf("validate must not embed or build, calls=%d state=%v", e.calls, x.State())
	}
}
