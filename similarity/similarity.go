// Package similarity provides pluggable text similarity strategies used by
// the relevance ranking, the semantic cache, and the consolidation
// clustering. The default is lexical Jaccard over word sets; callers with an
// embedding collaborator can swap in cosine similarity.
package similarity

import (
	"math"
	"strings"
)

// Func scores the similarity of two texts in [0,1].
type Func func(a, b string) float64

// Jaccard computes |A∩B| / |A∪B| over the word sets of the two texts.
// It returns 0 when either word set is empty.
func Jaccard(a, b string) float64 {
	setA := TokenSet(a)
	setB := TokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// TokenSet lowercases and splits text into its set of word tokens.
func TokenSet(text string) map[string]bool {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// Cosine computes the cosine similarity of two vectors. It returns 0 for
// mismatched lengths, empty vectors, or zero-magnitude vectors.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
