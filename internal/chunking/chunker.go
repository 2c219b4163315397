// Package chunking splits item content into bounded, overlapping windows for
// retrieval.
package chunking

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// CharsPerToken approximates a token as four characters. No tokenizer is used.
const CharsPerToken = 4

const (
	DefaultChunkSize    = 512 // tokens
	DefaultChunkOverlap = 50  // tokens
)

// Mode selects the chunking policy.
type Mode string

const (
	// ModeSingle keeps one chunk per item. Paired with a hard content cap it
	// bounds memory per item.
	ModeSingle Mode = "single"
	// ModeMulti emits overlapping windows over the whole content.
	ModeMulti Mode = "multi"
)

// ParseMode converts a config string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSingle:
		return ModeSingle, nil
	case ModeMulti, "":
		return ModeMulti, nil
	default:
		return "", fmt.Errorf("unknown chunk mode %q (want single or multi)", s)
	}
}

// Config controls window and overlap sizes, both in tokens.
type Config struct {
	Mode         Mode
	ChunkSize    int
	ChunkOverlap int
}

// Chunker splits text into trimmed, non-empty windows. Windows that end
// before the end of text are snapped back to the last sentence terminator or
// newline when that break lies in the second half of the window.
type Chunker struct {
	mode         Mode
	windowChars  int
	overlapChars int
}

// NewChunker creates a chunker. Zero sizes fall back to the defaults; single
// mode ignores overlap.
func NewChunker(cfg Config) *Chunker {
	size := cfg.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	overlap := cfg.ChunkOverlap
	if overlap < 0 {
		overlap = 0
	}
	mode := cfg.Mode
	if mode == "" {
		mode = ModeMulti
	}
	if mode == ModeSingle {
		overlap = 0
	}
	return &Chunker{
		mode:         mode,
		windowChars:  size * CharsPerToken,
		overlapChars: overlap * CharsPerToken,
	}
}

// Mode reports the configured policy.
func (c *Chunker) Mode() Mode {
	return c.mode
}

// WindowChars is the window size in characters.
func (c *Chunker) WindowChars() int {
	return c.windowChars
}

// Split returns the ordered chunks of text. The loop always advances by at
// least one character, so it terminates for any input.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	var chunks []string

	start := 0
	for start < len(runes) {
		end := min(start+c.windowChars, len(runes))
		piece := runes[start:end]

		if end < len(runes) {
			if cut := lastBreak(piece); cut > c.windowChars/2 {
				piece = piece[:cut+1]
			}
		}

		lead := leadingSpace(piece)
		chunk := strings.TrimSpace(string(piece[lead:]))
		if chunk != "" {
			chunks = append(chunks, chunk)
			if c.mode == ModeSingle {
				break
			}
		}

		if start+len(piece) >= len(runes) {
			break
		}

		// Offsets follow the trimmed chunk, so trailing whitespace is
		// revisited (and trimmed again) by the next window.
		advance := lead + utf8.RuneCountInString(chunk) - c.overlapChars
		if advance <= 0 {
			advance = len(piece)
		}
		start += advance
	}

	return chunks
}

func leadingSpace(piece []rune) int {
	n := 0
	for n < len(piece) && unicode.IsSpace(piece[n]) {
		n++
	}
	return n
}

// lastBreak returns the index of the last '.' or '\n' in piece, or -1.
func lastBreak(piece []rune) int {
	for i := len(piece) - 1; i >= 0; i-- {
		if piece[i] == '.' || piece[i] == '\n' {
			return i
		}
	}
	return -1
}
