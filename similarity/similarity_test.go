package similarity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJaccard(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1.0, Jaccard("hello world", "world hello"))
	require.Equal(t, 0.0, Jaccard("hello", "goodbye"))
	require.Equal(t, 0.0, Jaccard("", "hello"))
	require.Equal(t, 0.0, Jaccard("", ""))

	// |{qué, es, python} ∩ {qué, es, python, lenguaje}| = 3, union = 4.
	require.InDelta(t, 0.75, Jaccard("qué es python", "qué es python lenguaje"), 1e-9)

	// Case and duplicate words collapse into the set.
	require.Equal(t, 1.0, Jaccard("Go go GO", "go"))
}

func TestTokenSet(t *testing.T) {
	t.Parallel()

	set := TokenSet("The quick the QUICK fox")
	require.Len(t, set, 3)
	require.True(t, set["the"])
	require.True(t, set["quick"])
	require.True(t, set["fox"])
}

func TestCosine(t *testing.T) {
	t.Parallel()

	require.InDelta(t, 1.0, Cosine([]float64{1, 0}, []float64{2, 0}), 1e-9)
	require.InDelta(t, 0.0, Cosine([]float64{1, 0}, []float64{0, 1}), 1e-9)
	require.InDelta(t, -1.0, Cosine([]float64{1, 0}, []float64{-1, 0}), 1e-9)

	require.Equal(t, 0.0, Cosine([]float64{1, 0}, []float64{1}))
	require.Equal(t, 0.0, Cosine(nil, nil))
	require.Equal(t, 0.0, Cosine([]float64{0, 0}, []float64{1, 1}))
}
