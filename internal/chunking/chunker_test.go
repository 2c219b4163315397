package chunking

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numberedWords(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "w%03d ", i)
	}
	return b.String()
}

func TestSplit_ShortTextIsSingleTrimmedChunk(t *testing.T) {
	chunker := NewChunker(Config{Mode: ModeMulti, ChunkSize: 100, ChunkOverlap: 10})

	chunks := chunker.Split("   Python was created by Guido van Rossum in 1991.  \n")

	require.Len(t, chunks, 1)
	assert.Equal(t, "Python was created by Guido van Rossum in 1991.", chunks[0])
}

func TestSplit_EmptyAndBlankInput(t *testing.T) {
	chunker := NewChunker(Config{})

	assert.Empty(t, chunker.Split(""))
	assert.Empty(t, chunker.Split(" \n\t  "))
}

func TestSplit_SnapsToSentenceBoundary(t *testing.T) {
	// 40 character window, first period at index 31 (beyond half the window)
	chunker := NewChunker(Config{Mode: ModeMulti, ChunkSize: 10})
	text := "This is the first sentence here. And then more words follow on and on and on."

	chunks := chunker.Split(text)

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, "This is the first sentence here.", chunks[0])
}

func TestSplit_IgnoresBreakInFirstHalf(t *testing.T) {
	chunker := NewChunker(Config{Mode: ModeMulti, ChunkSize: 10})
	text := "Hi. " + strings.Repeat("a", 80)

	chunks := chunker.Split(text)

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Len(t, chunks[0], 40, "window should not snap to a break before the midpoint")
}

func TestSplit_OverlapRepeatsBoundaryText(t *testing.T) {
	chunker := NewChunker(Config{Mode: ModeMulti, ChunkSize: 10, ChunkOverlap: 2})
	text := numberedWords(60)

	chunks := chunker.Split(text)
	require.Greater(t, len(chunks), 2)

	for i := 1; i < len(chunks); i++ {
		prevStart := strings.Index(text, chunks[i-1])
		curStart := strings.Index(text, chunks[i])
		require.GreaterOrEqual(t, prevStart, 0)
		require.GreaterOrEqual(t, curStart, 0)

		assert.Greater(t, curStart, prevStart, "chunk %d must start after chunk %d", i, i-1)
		assert.Less(t, curStart, prevStart+len(chunks[i-1]), "chunk %d must overlap chunk %d", i, i-1)
	}
}

func TestSplit_NoOverlapCoversText(t *testing.T) {
	chunker := NewChunker(Config{Mode: ModeMulti, ChunkSize: 10})
	text := numberedWords(40)

	chunks := chunker.Split(text)

	joined := strings.Join(chunks, " ")
	assert.Equal(t, strings.TrimSpace(text), joined)
}

func TestSplit_SingleModeKeepsFirstChunk(t *testing.T) {
	chunker := NewChunker(Config{Mode: ModeSingle, ChunkSize: 10, ChunkOverlap: 5})
	text := numberedWords(40)

	chunks := chunker.Split(text)

	require.Len(t, chunks, 1)
	assert.True(t, strings.HasPrefix(text, chunks[0]))
}

func TestSplit_MultiByteText(t *testing.T) {
	chunker := NewChunker(Config{Mode: ModeMulti, ChunkSize: 5, ChunkOverlap: 1})
	text := strings.Repeat("héllo wörld ", 50)

	chunks := chunker.Split(text)

	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c))
		assert.Contains(t, text, c)
	}
}

func TestSplit_OverlapLargerThanWindowTerminates(t *testing.T) {
	chunker := NewChunker(Config{Mode: ModeMulti, ChunkSize: 2, ChunkOverlap: 10})
	text := numberedWords(20)

	chunks := chunker.Split(text)

	assert.NotEmpty(t, chunks)
	assert.Less(t, len(chunks), len(text))
}

func TestSplit_ChunksAreTrimmedSubstrings(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	alphabet := []rune("abc def. ghi\n  jk.\t")

	for iter := 0; iter < 200; iter++ {
		n := rng.Intn(400)
		runes := make([]rune, n)
		for i := range runes {
			runes[i] = alphabet[rng.Intn(len(alphabet))]
		}
		text := string(runes)

		chunker := NewChunker(Config{
			Mode:         ModeMulti,
			ChunkSize:    1 + rng.Intn(20),
			ChunkOverlap: rng.Intn(5),
		})

		for _, c := range chunker.Split(text) {
			require.NotEmpty(t, c)
			require.Equal(t, strings.TrimSpace(c), c)
			require.Contains(t, text, c)
		}
	}
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("single")
	require.NoError(t, err)
	assert.Equal(t, ModeSingle, mode)

	mode, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeMulti, mode)

	_, err = ParseMode("bogus")
	assert.Error(t, err)
}
