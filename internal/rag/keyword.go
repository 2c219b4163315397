package rag

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bull/notes-rag/internal/storage"
)

// KeywordScoreScale maps a keyword score onto confidence as
// min(1, score/KeywordScoreScale). It is a heuristic, not a probability.
const KeywordScoreScale = 10.0

// keywords lower-cases the question, splits on whitespace, strips
// surrounding punctuation and drops tokens of two characters or fewer.
// Repeated words are kept, so they weigh more.
func keywords(question string) []string {
	var out []string
	for _, tok := range strings.Fields(strings.ToLower(question)) {
		// Plain whitespace splitting would keep "need?" and never match
		// "need" in content, so edge punctuation is stripped on purpose.
		// Inner punctuation ("don't", "e-mail") stays.
		tok = strings.TrimFunc(tok, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if utf8.RuneCountInString(tok) > 2 {
			out = append(out, tok)
		}
	}
	return out
}

// keywordScore sums the non-overlapping occurrences of each keyword in content.
func keywordScore(content string, kws []string) int {
	lower := strings.ToLower(content)
	score := 0
	for _, kw := range kws {
		score += strings.Count(lower, kw)
	}
	return score
}

type scoredChunk struct {
	record *storage.ChunkRecord
	score  float64
}

// rankByKeywords scores every record, keeps positive scores and returns the
// top k by descending score. Equal scores keep store order.
func rankByKeywords(records []*storage.ChunkRecord, question string, k int) []scoredChunk {
	kws := keywords(question)
	if len(kws) == 0 {
		return nil
	}

	var scored []scoredChunk
	for _, rec := range records {
		if s := keywordScore(rec.Content, kws); s > 0 {
			scored = append(scored, scoredChunk{record: rec, score: float64(s)})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}
