package rag

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/prompts"

	"pdf-analyzer/internal/apperrors"
	"pdf-analyzer/internal/config"
	"pdf-analyzer/internal/llmservice"
	"pdf-analyzer/internal/models"
)

var thinkRe = regexp.MustCompile(models.ThinkTag)

// Answerer produces an answer constrained to the retrieved context.
type Answerer struct {
	gen     llmservice.Generator
	prompt  prompts.PromptTemplate
	timeout time.Duration
	retry   config.RetryConfig
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewAnswerer(gen llmservice.Generator, timeout time.Duration, retry config.RetryConfig) *Answerer {
	return &Answerer{
		gen:     gen,
		prompt:  prompts.NewPromptTemplate(models.AnswerPromptTemplate, []string{"context", "question"}),
		timeout: timeout,
		retry:   retry,
		sleep:   sleepContext,
	}
}

// Answer calls the generation service with the question and context chunks.
// With no context at all the fallback sentence is returned without a call.
func (a *Answerer) Answer(ctx context.Context, question string, contextChunks []string) (string, error) {
	if len(contextChunks) == 0 {
		return models.FallbackAnswer, nil
	}

	prompt, err := a.prompt.Format(map[string]any{
		"context":  strings.Join(contextChunks, models.ContextSeparator),
		"question": question,
	})
	if err != nil {
		return "", fmt.Errorf("failed to build prompt: %w", err)
	}

	attempts := max(a.retry.MaxAttempts, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		answer, err := a.generate(ctx, prompt)
		if err == nil {
			return answer, nil
		}
		lastErr = err
		if ctx.Err() != nil || attempt == attempts {
			break
		}

		delay := a.backoff(attempt)
		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("Generation failed, retrying")
		if err := a.sleep(ctx, delay); err != nil {
			break
		}
	}
	return "", apperrors.Wrap(apperrors.CodeGeneration, "failed to generate answer", lastErr)
}

func (a *Answerer) generate(ctx context.Context, prompt string) (string, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	raw, err := a.gen.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	answer := cleanAnswer(raw)
	if answer == "" {
		return "", llmservice.ErrEmptyResponse
	}
	return answer, nil
}

// backoff doubles from BaseBackoff on every attempt, capped at MaxBackoff.
func (a *Answerer) backoff(attempt int) time.Duration {
	d := a.retry.BaseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if a.retry.MaxBackoff > 0 && d >= a.retry.MaxBackoff {
			return a.retry.MaxBackoff
		}
	}
	return d
}

// cleanAnswer removes reasoning blocks and maps paraphrases of the fallback
// sentence onto the exact literal.
func cleanAnswer(raw string) string {
	answer := strings.TrimSpace(thinkRe.ReplaceAllString(raw, ""))
	normalized := strings.ToLower(strings.Trim(answer, "\"'`*. \n"))
	if normalized == models.FallbackAnswer {
		return models.FallbackAnswer
	}
	return answer
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsFallback reports whether an answer is the "not in context" sentence.
func IsFallback(answer string) bool {
	return answer == models.FallbackAnswer
}
