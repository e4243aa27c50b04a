package vectorstore

// Match is a single search hit: the position of the stored vector in
// insertion order and its inner-product score against the query.
type Match struct {
	Position int
	Score    float64
}

// Storage holds L2-normalised vectors and answers inner-product
// (cosine) nearest-neighbour queries.
type Storage interface {
	Init(dimension int) error
	Add(vectors [][]float64) error
	Search(query []float64, topK int) ([]Match, error)
	Len() int
	Clear()
}
