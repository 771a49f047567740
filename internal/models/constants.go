package models

const (
	// FallbackAnswer is emitted verbatim when the retrieved context cannot
	// support an answer. Callers may pattern-match on it.
	FallbackAnswer = "answer is not available in the context"

	ThinkTag = `(?s)<think>.*?</think>`

	ContextSeparator = "\n\n"
)

var (
	// AnswerPromptTemplate binds the retrieved context and the user question.
	AnswerPromptTemplate = `
Answer the question as detailed as possible from the provided context, make sure to provide all the details, if the answer is not in
provided context just say, "` + FallbackAnswer + `", don't provide the wrong answer

Context:
{{.context}}?

Question:
{{.question}}

Answer:
`
)
