package helper

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPreview(t *testing.T) {
	require.Equal(t, "a b c", Preview("  a\n\tb   c ", 10))
	require.Equal(t, "héllo…", Preview("héllo world", 5))
	require.Equal(t, "short", Preview("short", 0))
}

func TestPrettyPrint(t *testing.T) {
	var buf bytes.Buffer
	PrettyPrint(&buf, map[string]int{"chunks": 3})
	require.Equal(t, "{\n  \"chunks\": 3\n}\n", buf.String())
}
