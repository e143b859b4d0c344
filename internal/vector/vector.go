// Package vector provides a flat in-memory cosine similarity index.
//
// Vectors are L2-normalized at insertion, so similarity reduces to a dot
// product. The index is immutable after Build; the retrieval layer swaps
// whole indexes atomically instead of mutating one in place.
package vector

import (
	"fmt"
	"math"
	"sort"
)

// Entry pairs a document ID with its embedding.
type Entry struct {
	DocID  int64
	Vector []float32
}

// Match is one ranked query result. Score is 1/(1+d) where d = 1 - cosine
// similarity, so identical vectors score 1.0 and scores decay toward 0.
type Match struct {
	DocID int64
	Score float64
}

// Index is a read-only flat cosine index. Safe for concurrent queries.
type Index struct {
	dim     int
	entries []Entry
}

// Build creates an index from entries. All vectors must share the same
// dimensionality; each is normalized to unit length.
func Build(entries []Entry) (*Index, error) {
	idx := &Index{}
	if len(entries) == 0 {
		return idx, nil
	}

	idx.dim = len(entries[0].Vector)
	idx.entries = make([]Entry, len(entries))
	for i, e := range entries {
		if len(e.Vector) != idx.dim {
			return nil, fmt.Errorf("vector: entry %d has dimension %d, want %d", i, len(e.Vector), idx.dim)
		}
		idx.entries[i] = Entry{DocID: e.DocID, Vector: Normalize(e.Vector)}
	}
	return idx, nil
}

// Len returns the number of indexed vectors.
func (idx *Index) Len() int { return len(idx.entries) }

// Query returns up to k matches ranked by descending score. If k exceeds the
// index size, every entry is returned. An empty index returns no matches.
func (idx *Index) Query(query []float32, k int) ([]Match, error) {
	if len(idx.entries) == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != idx.dim {
		return nil, fmt.Errorf("vector: query has dimension %d, want %d", len(query), idx.dim)
	}

	q := Normalize(query)
	matches := make([]Match, len(idx.entries))
	for i, e := range idx.entries {
		d := 1 - dot(q, e.Vector)
		matches[i] = Match{DocID: e.DocID, Score: 1 / (1 + float64(d))}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].DocID < matches[j].DocID
	})

	if k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

// Normalize returns a unit-length copy of v. The zero vector is returned
// unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
