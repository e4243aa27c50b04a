package index

import "unicode/utf8"

// Stats summarises the current index.
type Stats struct {
	Built          bool    `json:"built"`
	Embedder       string  `json:"embedder"`
	ChunkCount     int     `json:"chunk_count"`
	Dimension      int     `json:"dimension"`
	IndexSize      int     `json:"index_size"`
	AvgChunkLength float64 `json:"avg_chunk_length"`
	MinChunkLength int     `json:"min_chunk_length"`
	MaxChunkLength int     `json:"max_chunk_length"`
}

// Stats reports chunk and similarity-structure statistics. Lengths are in
// characters and are zero for an empty index.
func (x *Index) Stats() Stats {
	st := Stats{
		Built:      x.state == StateBuilt,
		Embedder:   x.embedder.Name(),
		ChunkCount: len(x.chunks),
		Dimension:  x.dimension,
		IndexSize:  x.store.Len(),
	}
	if len(x.chunks) == 0 {
		return st
	}
	total := 0
	for i, c := range x.chunks {
		n := utf8.RuneCountInString(c)
		total += n
		if i == 0 || n < st.MinChunkLength {
			st.MinChunkLength = n
		}
		if n > st.MaxChunkLength {
			st.MaxChunkLength = n
		}
	}
	st.AvgChunkLength = float64(total) / float64(len(x.chunks))
	return st
}
