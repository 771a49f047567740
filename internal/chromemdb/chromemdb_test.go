package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"pdf-analyzer/internal/apperrors"
	"pdf-analyzer/internal/embedding"
)

type fixedEmbedder struct {
	vectors [][]float32
	err     error
}

func (f fixedEmbedder) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return f.vectors, f.err
}

func (f fixedEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	if len(f.vectors) == 0 {
		return nil, f.err
	}
	return f.vectors[0], f.err
}

func chunks(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("chunk number %d about topic%d", i, i)
	}
	return out
}

func TestQueryReturnsMinOfCountAndK(t *testing.T) {
	ctx := context.Background()
	e := embedding.NewHashEmbedder(32)
	q, err := e.EmbedQuery(ctx, "topic2")
	require.NoError(t, err)

	for _, n := range []int{1, 3, 4, 7} {
		idx, err := BuildIndex(ctx, e, chunks(n), "hash")
		require.NoError(t, err)
		require.Equal(t, n, idx.Len())

		matches, err := idx.Query(ctx, q, 4)
		require.NoError(t, err)
		require.Len(t, matches, min(n, 4), "n=%d", n)
		for i := 1; i < len(matches); i++ {
			require.GreaterOrEqual(t, matches[i-1].Similarity, matches[i].Similarity)
		}
	}
}

func TestQueryRanksRelevantChunkFirst(t *testing.T) {
	ctx := context.Background()
	e := embedding.NewHashEmbedder(128)
	docs := []string{
		"bananas are yellow fruit",
		"the eiffel tower stands in paris",
		"rust is a systems language",
	}
	idx, err := BuildIndex(ctx, e, docs, "hash")
	require.NoError(t, err)

	q, _ := e.EmbedQuery(ctx, "where is the eiffel tower")
	matches, err := idx.Query(ctx, q, 1)
	require.NoError(t, err)
	require.Equal(t, 1, matches[0].ChunkIndex)
	require.Equal(t, docs[1], matches[0].Content)
}

func TestBuildIndexIdempotent(t *testing.T) {
	ctx := context.Background()
	e := embedding.NewHashEmbedder(16)
	q, _ := e.EmbedQuery(ctx, "chunk topic5")

	var runs [][]Match
	for range 3 {
		idx, err := BuildIndex(ctx, e, chunks(10), "hash")
		require.NoError(t, err)
		matches, err := idx.Query(ctx, q, 4)
		require.NoError(t, err)
		runs = append(runs, matches)
	}
	require.Equal(t, runs[0], runs[1])
	require.Equal(t, runs[1], runs[2])
}

func TestBuildIndexRejectsMalformedEmbeddings(t *testing.T) {
	ctx := context.Background()
	cases := map[string]fixedEmbedder{
		"service error":  {err: errors.New("connection refused")},
		"count mismatch": {vectors: [][]float32{{1, 0}}},
		"zero vector":    {vectors: [][]float32{{1, 0}, {0, 0}}},
		"dimension":      {vectors: [][]float32{{1, 0}, {1, 0, 0}}},
		"empty":          {vectors: [][]float32{{}, {}}},
	}
	for name, e := range cases {
		_, err := BuildIndex(ctx, e, []string{"a", "b"}, "stub")
		require.True(t, apperrors.IsCode(err, apperrors.CodeEmbedding), name)
	}
}

func TestBuildIndexNoChunks(t *testing.T) {
	_, err := BuildIndex(context.Background(), embedding.NewHashEmbedder(8), nil, "hash")
	require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
}

func TestQueryDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx, err := BuildIndex(ctx, embedding.NewHashEmbedder(8), chunks(2), "hash")
	require.NoError(t, err)
	require.Equal(t, 8, idx.Dimension())
	require.Equal(t, "hash", idx.Model())

	_, err = idx.Query(ctx, make([]float32, 16), 2)
	require.True(t, apperrors.IsCode(err, apperrors.CodeEmbedding))
}
