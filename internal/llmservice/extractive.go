package llmservice

import (
	"context"
	"strings"
	"unicode"

	"github.com/tmc/langchaingo/llms"

	"pdf-analyzer/internal/models"
)

// ExtractiveModel is an offline llms.Model used with the hash embedder. It
// answers with the context sentences that share the most words with the
// question, or the fallback sentence when none do.
type ExtractiveModel struct{}

func (m ExtractiveModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m ExtractiveModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	var prompt strings.Builder
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				prompt.WriteString(text.Text)
			}
		}
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: extract(prompt.String())}},
	}, nil
}

func extract(prompt string) string {
	contextText, question := splitPrompt(prompt)
	terms := map[string]bool{}
	for _, w := range words(question) {
		if len(w) > 3 {
			terms[w] = true
		}
	}

	var (
		best      string
		bestScore int
	)
	for _, sentence := range strings.FieldsFunc(contextText, func(r rune) bool {
		return r == '.' || r == '\n' || r == '?' || r == '!'
	}) {
		score := 0
		for _, w := range words(sentence) {
			if terms[w] {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = strings.TrimSpace(sentence), score
		}
	}
	if bestScore == 0 {
		return models.FallbackAnswer
	}
	return best + "."
}

func splitPrompt(prompt string) (string, string) {
	const contextMark, questionMark, answerMark = "Context:", "Question:", "Answer:"
	c := strings.Index(prompt, contextMark)
	q := strings.LastIndex(prompt, questionMark)
	if c < 0 || q < c {
		return prompt, prompt
	}
	question := prompt[q+len(questionMark):]
	if a := strings.LastIndex(question, answerMark); a >= 0 {
		question = question[:a]
	}
	return prompt[c+len(contextMark) : q], question
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

var _ llms.Model = ExtractiveModel{}
