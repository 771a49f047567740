package rag

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pdf-analyzer/internal/apperrors"
	"pdf-analyzer/internal/chromemdb"
	"pdf-analyzer/internal/config"
	"pdf-analyzer/internal/embedding"
	"pdf-analyzer/internal/links"
	"pdf-analyzer/internal/llmservice"
	"pdf-analyzer/internal/models"
	"pdf-analyzer/internal/parser"
	"pdf-analyzer/internal/session"
)

// scriptedGenerator returns the queued results in order and then echoes the
// context section of the prompt.
type scriptedGenerator struct {
	mu      sync.Mutex
	results []result
	prompts []string
}

type result struct {
	text string
	err  error
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if len(g.results) > 0 {
		r := g.results[0]
		g.results = g.results[1:]
		return r.text, r.err
	}
	start := strings.Index(prompt, "Context:") + len("Context:")
	end := strings.LastIndex(prompt, "Question:")
	return strings.TrimSpace(prompt[start:end]), nil
}

func (g *scriptedGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

type stubLinks struct {
	set models.LinkSet
}

func (s stubLinks) Lookup(context.Context, string) models.LinkSet {
	return s.set
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.LLM.Provider = config.ProviderHash
	cfg.LLM.EmbeddingModel = "fnv"
	cfg.LLM.HashDimension = 128
	cfg.RAG.ChunkSize = 200
	cfg.RAG.ChunkOverlap = 20
	cfg.RAG.TopK = 2
	cfg.Retry.BaseBackoff = time.Millisecond
	cfg.Retry.MaxBackoff = 4 * time.Millisecond
	return cfg
}

func noSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

const corpus = "The mitochondria is the powerhouse of the cell. It produces energy as ATP.\n\n" +
	"Photosynthesis happens in chloroplasts, where light becomes chemical energy.\n\n" +
	"The Treaty of Westphalia was signed in 1648 and ended the Thirty Years War."

func txtFile(text string) []parser.File {
	return []parser.File{{Name: "notes.txt", Data: []byte(text)}}
}

func TestAnswerWithoutContextSkipsGeneration(t *testing.T) {
	gen := &scriptedGenerator{}
	a := NewAnswerer(gen, time.Second, config.Default().Retry)

	answer, err := a.Answer(context.Background(), "anything", nil)
	require.NoError(t, err)
	require.Equal(t, models.FallbackAnswer, answer)
	require.Zero(t, gen.calls())
}

func TestAnswerPromptBindsContextAndQuestion(t *testing.T) {
	gen := &scriptedGenerator{results: []result{{text: "ok"}}}
	a := NewAnswerer(gen, time.Second, config.Default().Retry)

	_, err := a.Answer(context.Background(), "Who won?", []string{"first chunk", "second chunk"})
	require.NoError(t, err)
	require.Len(t, gen.prompts, 1)
	require.Contains(t, gen.prompts[0], "first chunk\n\nsecond chunk")
	require.Contains(t, gen.prompts[0], "Question:\nWho won?")
	require.Contains(t, gen.prompts[0], `"`+models.FallbackAnswer+`"`)
}

func TestAnswerCleansOutput(t *testing.T) {
	cases := map[string]string{
		"<think>let me see</think>\nThe cell makes ATP.":                 "The cell makes ATP.",
		"Answer is not available in the context.":                        models.FallbackAnswer,
		`"answer is not available in the context"`:                       models.FallbackAnswer,
		"<think>\nhmm\n</think> answer is not available in the context": models.FallbackAnswer,
	}
	for raw, want := range cases {
		gen := &scriptedGenerator{results: []result{{text: raw}}}
		a := NewAnswerer(gen, time.Second, config.Default().Retry)
		got, err := a.Answer(context.Background(), "q", []string{"ctx"})
		require.NoError(t, err)
		require.Equal(t, want, got, raw)
	}
}

func TestAnswerRetriesWithBackoff(t *testing.T) {
	transient := errors.New("503 service unavailable")
	gen := &scriptedGenerator{results: []result{{err: transient}, {text: "   "}, {text: "done"}}}
	cfg := testConfig()
	a := NewAnswerer(gen, time.Second, cfg.Retry)
	var delays []time.Duration
	a.sleep = noSleep(&delays)

	answer, err := a.Answer(context.Background(), "q", []string{"ctx"})
	require.NoError(t, err)
	require.Equal(t, "done", answer)
	require.Equal(t, 3, gen.calls())
	require.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, delays)
}

func TestAnswerGivesUpAfterMaxAttempts(t *testing.T) {
	boom := errors.New("connection refused")
	gen := &scriptedGenerator{results: []result{{err: boom}, {err: boom}, {err: boom}, {text: "too late"}}}
	a := NewAnswerer(gen, time.Second, testConfig().Retry)
	var delays []time.Duration
	a.sleep = noSleep(&delays)

	_, err := a.Answer(context.Background(), "q", []string{"ctx"})
	require.True(t, apperrors.IsCode(err, apperrors.CodeGeneration))
	require.ErrorIs(t, err, boom)
	require.Equal(t, 3, gen.calls())
	require.Len(t, delays, 2)
}

func TestBackoffIsCapped(t *testing.T) {
	a := NewAnswerer(&scriptedGenerator{}, time.Second, config.RetryConfig{
		MaxAttempts: 10, BaseBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond,
	})
	require.Equal(t, 100*time.Millisecond, a.backoff(1))
	require.Equal(t, 200*time.Millisecond, a.backoff(2))
	require.Equal(t, 300*time.Millisecond, a.backoff(3))
	require.Equal(t, 300*time.Millisecond, a.backoff(8))
}

func newService(t *testing.T, gen llmservice.Generator, lf LinkFinder) (*Service, *session.Session) {
	t.Helper()
	cfg := testConfig()
	return NewService(embedding.NewHashEmbedder(cfg.LLM.HashDimension), gen, lf, cfg), session.New()
}

func TestProcessBuildsIndex(t *testing.T) {
	svc, sess := newService(t, &scriptedGenerator{}, nil)

	res, err := svc.Process(context.Background(), sess, txtFile(corpus))
	require.NoError(t, err)
	require.Equal(t, 1, res.Files)
	require.Equal(t, len([]rune(corpus)), res.Characters)
	require.Greater(t, res.Chunks, 1)
	require.Equal(t, 128, res.Dimension)
	require.NotNil(t, sess.Index())
}

func TestProcessFailureKeepsPreviousIndex(t *testing.T) {
	svc, sess := newService(t, &scriptedGenerator{}, nil)
	_, err := svc.Process(context.Background(), sess, txtFile(corpus))
	require.NoError(t, err)
	before := sess.Index()

	_, err = svc.Process(context.Background(), sess, []parser.File{{Name: "bad.pdf", Data: []byte("not a pdf")}})
	require.True(t, apperrors.IsCode(err, apperrors.CodeExtraction))
	require.Same(t, before, sess.Index())

	_, err = svc.Process(context.Background(), sess, txtFile("   \n  "))
	require.True(t, apperrors.IsCode(err, apperrors.CodeExtraction))
	require.Same(t, before, sess.Index())
}

func TestAskEchoedContextContainsFact(t *testing.T) {
	svc, sess := newService(t, &scriptedGenerator{}, nil)
	_, err := svc.Process(context.Background(), sess, txtFile(corpus))
	require.NoError(t, err)

	turn, err := svc.Ask(context.Background(), sess, "When was the Treaty of Westphalia signed?")
	require.NoError(t, err)
	require.Contains(t, turn.Record.Answer, "1648")
	require.NotEmpty(t, turn.Sources)
	require.LessOrEqual(t, len(turn.Sources), 2)
}

func TestAskUnrelatedTopicReturnsFallback(t *testing.T) {
	svc, sess := newService(t, llmservice.NewClient(llmservice.ExtractiveModel{}, 0.3), nil)
	_, err := svc.Process(context.Background(), sess, txtFile(corpus))
	require.NoError(t, err)

	turn, err := svc.Ask(context.Background(), sess, "Who composed Bolero?")
	require.NoError(t, err)
	require.Equal(t, models.FallbackAnswer, turn.Record.Answer)
}

func TestAskWithoutIndexReturnsFallback(t *testing.T) {
	gen := &scriptedGenerator{}
	svc, sess := newService(t, gen, nil)

	turn, err := svc.Ask(context.Background(), sess, "What is ATP?")
	require.NoError(t, err)
	require.Equal(t, models.FallbackAnswer, turn.Record.Answer)
	require.Zero(t, gen.calls())
	require.Equal(t, 1, sess.Len())
}

func TestAskTwoQuestionsHistory(t *testing.T) {
	svc, sess := newService(t, &scriptedGenerator{}, nil)
	_, err := svc.Process(context.Background(), sess, txtFile(corpus))
	require.NoError(t, err)

	first, err := svc.Ask(context.Background(), sess, "What is the mitochondria?")
	require.NoError(t, err)
	require.Empty(t, first.Previous)

	second, err := svc.Ask(context.Background(), sess, "Where does photosynthesis happen?")
	require.NoError(t, err)

	history := sess.History()
	require.Len(t, history, 2)
	require.Equal(t, "What is the mitochondria?", history[0].Question)
	require.Equal(t, "Where does photosynthesis happen?", history[1].Question)
	require.Equal(t, []models.QARecord{history[0]}, second.Previous)
}

func TestAskWebErrorStillAnswers(t *testing.T) {
	failing := links.NewAugmenter(
		failingSearcher{},
		okSearcher{urls: []string{"https://www.youtube.com/watch?v=abc"}},
		5, 5, time.Second,
	)
	svc, sess := newService(t, &scriptedGenerator{}, failing)
	_, err := svc.Process(context.Background(), sess, txtFile(corpus))
	require.NoError(t, err)

	turn, err := svc.Ask(context.Background(), sess, "What does the mitochondria produce?")
	require.NoError(t, err)
	require.NotEmpty(t, turn.Record.Answer)
	require.Empty(t, turn.Record.Links.Web.URLs)
	require.True(t, turn.Record.Links.Web.Failed())
	require.Equal(t, []string{"https://www.youtube.com/watch?v=abc"}, turn.Record.Links.Video.URLs)

	latest, ok := sess.Latest()
	require.True(t, ok)
	require.Equal(t, turn.Record.Links, latest.Links)
}

func TestAskGenerationFailureLeavesLogIntact(t *testing.T) {
	boom := errors.New("quota exceeded")
	gen := &scriptedGenerator{results: []result{{text: "first answer"}, {err: boom}, {err: boom}, {err: boom}}}
	svc, sess := newService(t, gen, stubLinks{})
	svc.answerer.sleep = noSleep(new([]time.Duration))
	_, err := svc.Process(context.Background(), sess, txtFile(corpus))
	require.NoError(t, err)

	_, err = svc.Ask(context.Background(), sess, "What is ATP?")
	require.NoError(t, err)

	_, err = svc.Ask(context.Background(), sess, "What is chlorophyll?")
	require.True(t, apperrors.IsCode(err, apperrors.CodeGeneration))
	require.Equal(t, 1, sess.Len())
	require.Equal(t, "first answer", sess.History()[0].Answer)
}

func TestAskEmptyQuestion(t *testing.T) {
	svc, sess := newService(t, &scriptedGenerator{}, nil)
	_, err := svc.Ask(context.Background(), sess, "  \t")
	require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
	require.Zero(t, sess.Len())
}

func TestRetrieveRejectsForeignEmbeddingModel(t *testing.T) {
	ctx := context.Background()
	e := embedding.NewHashEmbedder(16)
	idx, err := chromemdb.BuildIndex(ctx, e, []string{"alpha beta"}, "hash/a")
	require.NoError(t, err)

	_, err = NewRetriever(e, "hash/b", time.Second).Retrieve(ctx, idx, "alpha", 4)
	require.True(t, apperrors.IsCode(err, apperrors.CodeEmbedding))

	matches, err := NewRetriever(e, "hash/a", time.Second).Retrieve(ctx, nil, "alpha", 4)
	require.NoError(t, err)
	require.Empty(t, matches)
}

type failingSearcher struct{}

func (failingSearcher) Search(context.Context, string, int) ([]string, error) {
	return nil, errors.New("dial tcp: connection refused")
}

type okSearcher struct{ urls []string }

func (s okSearcher) Search(context.Context, string, int) ([]string, error) {
	return s.urls, nil
}

// flakyEmbedder delegates to a hash embedder until told to fail.
type flakyEmbedder struct {
	*embedding.HashEmbedder
	failDocs  bool
	failQuery bool
}

func (f *flakyEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if f.failDocs {
		return nil, errors.New("embedding endpoint unreachable")
	}
	return f.HashEmbedder.EmbedDocuments(ctx, texts)
}

func (f *flakyEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.failQuery {
		return nil, errors.New("embedding endpoint unreachable")
	}
	return f.HashEmbedder.EmbedQuery(ctx, text)
}

func TestEmbeddingFailuresLeaveSessionIntact(t *testing.T) {
	cfg := testConfig()
	embedder := &flakyEmbedder{HashEmbedder: embedding.NewHashEmbedder(cfg.LLM.HashDimension)}
	gen := &scriptedGenerator{}
	svc := NewService(embedder, gen, nil, cfg)
	sess := session.New()

	_, err := svc.Process(context.Background(), sess, txtFile(corpus))
	require.NoError(t, err)
	before := sess.Index()

	embedder.failDocs = true
	_, err = svc.Process(context.Background(), sess, txtFile("A completely different document about volcanoes."))
	require.True(t, apperrors.IsCode(err, apperrors.CodeEmbedding))
	require.Same(t, before, sess.Index())

	embedder.failDocs = false
	embedder.failQuery = true
	_, err = svc.Ask(context.Background(), sess, "What is ATP?")
	require.True(t, apperrors.IsCode(err, apperrors.CodeEmbedding))
	require.Zero(t, sess.Len())
	require.Zero(t, gen.calls())
}
