package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapAndIsCode(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(CodeEmbedding, "failed to embed chunks", cause)

	require.True(t, IsCode(err, CodeEmbedding))
	require.False(t, IsCode(err, CodeGeneration))
	require.ErrorIs(t, err, cause)
	require.Equal(t, "failed to embed chunks: connection refused", err.Error())
}

func TestCodeSurvivesFmtWrapping(t *testing.T) {
	err := fmt.Errorf("process: %w", Wrap(CodeExtraction, "unsupported file", nil))

	require.Equal(t, CodeExtraction, Code(err))
	require.Equal(t, "unsupported file", Message(err))
}

func TestMessageFallsBackToError(t *testing.T) {
	require.Equal(t, "", Message(nil))
	require.Equal(t, "plain", Message(errors.New("plain")))
	require.Equal(t, "", Code(errors.New("plain")))
}
