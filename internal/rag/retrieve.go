package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/embeddings"

	"pdf-analyzer/internal/apperrors"
	"pdf-analyzer/internal/chromemdb"
)

// Retriever embeds a question and looks up the closest chunks.
type Retriever struct {
	embedder embeddings.Embedder
	model    string
	timeout  time.Duration
}

func NewRetriever(embedder embeddings.Embedder, model string, timeout time.Duration) *Retriever {
	return &Retriever{embedder: embedder, model: model, timeout: timeout}
}

// Retrieve returns at most k chunks by descending similarity. A nil index
// yields no chunks, which the Answerer treats as missing context.
func (r *Retriever) Retrieve(ctx context.Context, idx *chromemdb.Index, question string, k int) ([]chromemdb.Match, error) {
	if idx == nil {
		return nil, nil
	}
	// an index can outlive the Service that built it, e.g. after a config reload
	if idx.Model() != r.model {
		return nil, apperrors.Wrap(apperrors.CodeEmbedding,
			fmt.Sprintf("index was built with %q but questions are embedded with %q", idx.Model(), r.model), nil)
	}

	embedCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		embedCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	vec, err := r.embedder.EmbedQuery(embedCtx, question)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeEmbedding, "failed to embed question", err)
	}
	return idx.Query(ctx, vec, k)
}
