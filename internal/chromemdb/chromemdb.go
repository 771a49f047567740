package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"pdf-analyzer/internal/apperrors"
)

const (
	collectionName = "chunks"
	metaChunkIndex = "chunk_index"
)

var errQueryOnly = errors.New("index embeds chunks up front")

// Match is a retrieved chunk with its cosine similarity to the query.
type Match struct {
	ChunkIndex int
	Content    string
	Similarity float32
}

// Index is an immutable in-memory vector index over the chunks of one
// processed document. A new Index is built for every "process" action.
type Index struct {
	collection *chromem.Collection
	dimension  int
	model      string
}

// BuildIndex embeds every chunk in one batched call and loads the vectors into
// a fresh chromem collection. Nothing is returned unless all chunks embedded.
func BuildIndex(ctx context.Context, embedder embeddings.Embedder, chunks []string, model string) (*Index, error) {
	if len(chunks) == 0 {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "no chunks to index", nil)
	}

	vectors, err := embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeEmbedding, "failed to embed chunks", err)
	}
	if len(vectors) != len(chunks) {
		return nil, apperrors.Wrap(apperrors.CodeEmbedding,
			fmt.Sprintf("embedding service returned %d vectors for %d chunks", len(vectors), len(chunks)), nil)
	}

	dimension := len(vectors[0])
	docs := make([]chromem.Document, len(chunks))
	for i, vec := range vectors {
		if err := checkVector(vec, dimension); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeEmbedding, fmt.Sprintf("malformed embedding for chunk %d", i), err)
		}
		docs[i] = chromem.Document{
			ID:        strconv.Itoa(i),
			Content:   chunks[i],
			Metadata:  map[string]string{metaChunkIndex: strconv.Itoa(i)},
			Embedding: vec,
		}
	}

	db := chromem.NewDB()
	collection, err := db.CreateCollection(collectionName, map[string]string{"model": model}, rejectEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("failed to add documents: %w", err)
	}

	log.Debug().Int("chunks", len(docs)).Int("dimension", dimension).Str("model", model).Msg("Built index")
	return &Index{collection: collection, dimension: dimension, model: model}, nil
}

// Query returns up to k chunks ordered by descending similarity. Ties keep
// chunk order so repeated queries return identical results.
func (idx *Index) Query(ctx context.Context, queryEmbedding []float32, k int) ([]Match, error) {
	if err := checkVector(queryEmbedding, idx.dimension); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeEmbedding, "question embedding does not match the index", err)
	}
	n := min(k, idx.collection.Count())
	if n <= 0 {
		return nil, nil
	}

	results, err := idx.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: queryEmbedding,
		NResults:       n,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		i, err := strconv.Atoi(r.Metadata[metaChunkIndex])
		if err != nil {
			return nil, fmt.Errorf("corrupt chunk index %q: %w", r.Metadata[metaChunkIndex], err)
		}
		matches = append(matches, Match{ChunkIndex: i, Content: r.Content, Similarity: r.Similarity})
	}
	sort.SliceStable(matches, func(a, b int) bool {
		if matches[a].Similarity != matches[b].Similarity {
			return matches[a].Similarity > matches[b].Similarity
		}
		return matches[a].ChunkIndex < matches[b].ChunkIndex
	})
	return matches, nil
}

// Len is the number of indexed chunks.
func (idx *Index) Len() int {
	return idx.collection.Count()
}

// Dimension is the embedding dimension every vector in the index shares.
func (idx *Index) Dimension() int {
	return idx.dimension
}

// Model is the embedding model the index was built with.
func (idx *Index) Model() string {
	return idx.model
}

func checkVector(vec []float32, dimension int) error {
	if len(vec) == 0 {
		return errors.New("empty vector")
	}
	if len(vec) != dimension {
		return fmt.Errorf("dimension %d, want %d", len(vec), dimension)
	}
	var sum float64
	for _, x := range vec {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return errors.New("vector contains NaN or Inf")
		}
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return errors.New("zero vector")
	}
	return nil
}

// rejectEmbedding keeps chromem from falling back to its default OpenAI
// embedding function; all vectors are computed by the caller.
func rejectEmbedding(context.Context, string) ([]float32, error) {
	return nil, errQueryOnly
}
