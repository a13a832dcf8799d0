// Package vectorindex provides exact nearest-neighbour search over
// fixed-size vectors.
package vectorindex

import (
	"container/heap"
	"fmt"

	"github.com/starford/notemind/internal/apperr"
)

// Hit is one search result.
type Hit struct {
	Row      int
	Distance float32
}

// Flat is an append-only brute-force index using squared Euclidean
// distance. It is not safe for concurrent Add and Search; callers publish
// a Flat only after it is fully built.
type Flat struct {
	dim  int
	data []float32
}

// NewFlat creates an empty index for vectors of size dim.
func NewFlat(dim int) *Flat {
	return &Flat{dim: dim}
}

// Dim returns the vector size.
func (f *Flat) Dim() int { return f.dim }

// Len returns the number of rows.
func (f *Flat) Len() int {
	if f.dim == 0 {
		return 0
	}
	return len(f.data) / f.dim
}

// Vector returns row i. The slice aliases index storage.
func (f *Flat) Vector(i int) []float32 {
	return f.data[i*f.dim : (i+1)*f.dim]
}

// Add appends vectors as new rows. Any vector of the wrong size rejects
// the whole call.
func (f *Flat) Add(vectors ...[]float32) error {
	for i, v := range vectors {
		if len(v) != f.dim {
			return fmt.Errorf("vectorindex: add: vector %d has %d dimensions, index has %d: %w", i, len(v), f.dim, apperr.ErrDimensionMismatch)
		}
	}
	for _, v := range vectors {
		f.data = append(f.data, v...)
	}
	return nil
}

// Search returns, for each query, the k nearest rows ordered by ascending
// distance, ties broken by lower row. An empty index or k <= 0 yields empty
// result lists.
func (f *Flat) Search(queries [][]float32, k int) ([][]Hit, error) {
	out := make([][]Hit, len(queries))
	n := f.Len()
	for qi, q := range queries {
		if len(q) != f.dim {
			return nil, fmt.Errorf("vectorindex: search: query %d has %d dimensions, index has %d: %w", qi, len(q), f.dim, apperr.ErrDimensionMismatch)
		}
		if k <= 0 || n == 0 {
			out[qi] = []Hit{}
			continue
		}
		h := make(maxHeap, 0, min(k, n))
		for row := 0; row < n; row++ {
			d := f.distance(q, row)
			if len(h) < k {
				heap.Push(&h, Hit{Row: row, Distance: d})
				continue
			}
			if less(Hit{Row: row, Distance: d}, h[0]) {
				h[0] = Hit{Row: row, Distance: d}
				heap.Fix(&h, 0)
			}
		}
		hits := make([]Hit, len(h))
		for i := len(h) - 1; i >= 0; i-- {
			hits[i] = heap.Pop(&h).(Hit)
		}
		out[qi] = hits
	}
	return out, nil
}

func (f *Flat) distance(q []float32, row int) float32 {
	v := f.data[row*f.dim : (row+1)*f.dim]
	var s float64
	for i, x := range q {
		d := float64(x) - float64(v[i])
		s += d * d
	}
	return float32(s)
}

func less(a, b Hit) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.Row < b.Row
}

// maxHeap keeps the worst of the current k best at the root.
type maxHeap []Hit

func (h maxHeap) Len() int           { return len(h) }
func (h maxHeap) Less(i, j int) bool { return less(h[j], h[i]) }
func (h maxHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x any)        { *h = append(*h, x.(Hit)) }
func (h *maxHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
