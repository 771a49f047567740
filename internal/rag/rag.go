package rag

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"golang.org/x/sync/errgroup"

	"pdf-analyzer/internal/apperrors"
	"pdf-analyzer/internal/chromemdb"
	"pdf-analyzer/internal/chunker"
	"pdf-analyzer/internal/config"
	"pdf-analyzer/internal/helper"
	"pdf-analyzer/internal/llmservice"
	"pdf-analyzer/internal/models"
	"pdf-analyzer/internal/parser"
	"pdf-analyzer/internal/session"
)

const previewRunes = 160

// LinkFinder supplies the web and video links shown next to an answer.
type LinkFinder interface {
	Lookup(ctx context.Context, question string) models.LinkSet
}

// Service runs the process and ask actions against a caller-owned Session.
type Service struct {
	embedder  embeddings.Embedder
	model     string
	retriever *Retriever
	answerer  *Answerer
	links     LinkFinder
	cfg       *config.Config
}

// NewService wires the pipeline. links may be nil.
func NewService(embedder embeddings.Embedder, gen llmservice.Generator, links LinkFinder, cfg *config.Config) *Service {
	model := cfg.LLM.Provider + "/" + cfg.LLM.EmbeddingModel
	return &Service{
		embedder:  embedder,
		model:     model,
		retriever: NewRetriever(embedder, model, cfg.Timeouts.Embed),
		answerer:  NewAnswerer(gen, cfg.Timeouts.Generate, cfg.Retry),
		links:     links,
		cfg:       cfg,
	}
}

// Process extracts, chunks and indexes the files, then swaps the new index
// into the session. On any failure the previous index stays in place.
func (s *Service) Process(ctx context.Context, sess *session.Session, files []parser.File) (models.ProcessResult, error) {
	start := time.Now()

	doc, err := parser.ExtractText(files)
	if err != nil {
		return models.ProcessResult{}, err
	}
	if strings.TrimSpace(doc.Text) == "" {
		return models.ProcessResult{}, apperrors.Wrap(apperrors.CodeExtraction, "no text could be extracted from the uploaded files", nil)
	}

	chunks := chunker.Chunk(doc.Text, s.cfg.RAG.ChunkSize, s.cfg.RAG.ChunkOverlap)
	log.Debug().Int("characters", len([]rune(doc.Text))).Int("chunks", len(chunks)).Msg("Chunked document")

	embedCtx := ctx
	if s.cfg.Timeouts.Embed > 0 {
		var cancel context.CancelFunc
		embedCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeouts.Embed)
		defer cancel()
	}
	idx, err := chromemdb.BuildIndex(embedCtx, s.embedder, chunks, s.model)
	if err != nil {
		return models.ProcessResult{}, err
	}
	sess.ReplaceIndex(idx)

	result := models.ProcessResult{
		Files:      doc.Files,
		Pages:      doc.Pages,
		Characters: len([]rune(doc.Text)),
		Chunks:     idx.Len(),
		Dimension:  idx.Dimension(),
		Duration:   time.Since(start),
	}
	log.Info().Str("session", sess.ID).Int("files", result.Files).Int("pages", result.Pages).
		Int("chunks", result.Chunks).Dur("took", result.Duration).Msg("Processed documents")
	return result, nil
}

// Ask answers a question from the session's current index while looking up
// links concurrently. The record is appended only when an answer was produced.
func (s *Service) Ask(ctx context.Context, sess *session.Session, question string) (models.Turn, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return models.Turn{}, apperrors.Wrap(apperrors.CodeInvalidInput, "question must not be empty", nil)
	}

	var (
		answer  string
		matches []chromemdb.Match
		links   models.LinkSet
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		matches, err = s.retriever.Retrieve(gctx, sess.Index(), question, s.cfg.RAG.TopK)
		if err != nil {
			return err
		}
		contextChunks := make([]string, len(matches))
		for i, m := range matches {
			contextChunks[i] = m.Content
		}
		answer, err = s.answerer.Answer(gctx, question, contextChunks)
		return err
	})
	if s.links != nil {
		g.Go(func() error {
			links = s.links.Lookup(gctx, question)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Str("session", sess.ID).Msg("Question failed")
		return models.Turn{}, err
	}

	record := models.QARecord{
		Question: question,
		Answer:   answer,
		Links:    links,
		AskedAt:  time.Now(),
	}
	sess.Append(record)

	sources := make([]models.Source, len(matches))
	for i, m := range matches {
		sources[i] = models.Source{
			ChunkIndex: m.ChunkIndex,
			Similarity: m.Similarity,
			Preview:    helper.Preview(m.Content, previewRunes),
		}
	}
	log.Info().Str("session", sess.ID).Int("sources", len(sources)).Bool("fallback", IsFallback(answer)).Msg("Answered question")
	return models.Turn{Record: record, Previous: sess.Previous(), Sources: sources}, nil
}
