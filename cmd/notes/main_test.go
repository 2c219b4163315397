package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEnv(t *testing.T) {
	t.Helper()
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("SQLITE_DIR", t.TempDir())
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("EMBEDDING_PROVIDER", "auto")
	t.Setenv("GENERATION_PROVIDER", "auto")
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	flagTitle, flagTags, flagTopK, flagLimit, flagJSON, flagVerbose = "", nil, 0, 20, false, false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_AddAskListStatus(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "", "add", "--title", "Gardening", "Tomatoes need full sun and regular watering")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved text")
	assert.Contains(t, out, "(Gardening)")

	out, err = execute(t, "Basil grows well next to tomatoes", "add", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved text")

	out, err = execute(t, "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Gardening")
	assert.Contains(t, out, "Basil grows well")

	out, err = execute(t, "", "ask", "how", "much", "sun", "do", "tomatoes", "need?")
	require.NoError(t, err)
	assert.Contains(t, out, "From your saved content:")
	assert.Contains(t, out, "keyword search")

	out, err = execute(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Items:           2")
	assert.Contains(t, out, "Search mode:     keyword")
}

func TestCLI_Errors(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "", "show", "missing")
	assert.Error(t, err)

	_, err = execute(t, "", "add-url", "not a url")
	assert.Error(t, err)

	_, err = execute(t, "", "reindex")
	assert.Error(t, err)
}

func TestOneLine(t *testing.T) {
	assert.Equal(t, "a b c", oneLine("a\n b\tc", 10))
	assert.Equal(t, "abc...", oneLine("abcdef", 3))
}
