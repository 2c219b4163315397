// Package generation produces answers from a system instruction and a user
// message built from retrieved context.
package generation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// DefaultMaxTokens is the maximum user message length before truncation (in tokens).
const DefaultMaxTokens = 16000

// Provider names accepted by config.
const (
	ProviderOpenAI     = "openai"
	ProviderGemini     = "gemini"
	ProviderExtractive = "extractive"
)

// Generator produces an answer. Remote failures are returned as *provider.Error.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
	Name() string
}

// Message section headers. Extractive relies on them to find the passages.
const (
	contextHeader  = "Context:\n"
	questionHeader = "\n\nQuestion: "
)

// UserMessage formats the numbered context block and the question.
func UserMessage(contextBlock, question string) string {
	return contextHeader + contextBlock + questionHeader + question
}

// truncator caps prompt size. Uses rough estimate of 4 characters per token.
type truncator struct {
	maxTokens int
	logger    *slog.Logger
}

func newTruncator(maxTokens int, logger *slog.Logger) truncator {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if logger == nil {
		logger = slog.Default()
	}
	return truncator{maxTokens: maxTokens, logger: logger}
}

func (t truncator) truncate(content string) string {
	maxChars := t.maxTokens * 4
	n := utf8.RuneCountInString(content)
	if n <= maxChars {
		return content
	}

	t.logger.Warn("truncating prompt",
		"from_chars", n,
		"to_chars", maxChars,
		"max_tokens", t.maxTokens)

	return string([]rune(content)[:maxChars])
}

// Extractive answers without a language model by quoting the top passages.
// It is used when no generation provider is configured.
type Extractive struct {
	// MaxPassages is how many passages are quoted. Zero means 2.
	MaxPassages int
	// MaxChars caps each quoted passage. Zero means 300.
	MaxChars int
}

var _ Generator = (*Extractive)(nil)

func (e *Extractive) Name() string { return ProviderExtractive }

func (e *Extractive) Generate(ctx context.Context, system, user string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	maxPassages := e.MaxPassages
	if maxPassages <= 0 {
		maxPassages = 2
	}
	maxChars := e.MaxChars
	if maxChars <= 0 {
		maxChars = 300
	}

	passages := splitPassages(user)
	if len(passages) == 0 {
		return "The saved content does not contain enough information to answer this question.", nil
	}
	if len(passages) > maxPassages {
		passages = passages[:maxPassages]
	}

	var b strings.Builder
	b.WriteString("From your saved content:")
	for _, p := range passages {
		b.WriteString("\n\n")
		b.WriteString(clip(p, maxChars))
	}
	return b.String(), nil
}

// splitPassages returns the "[n] ..." passages of a message built by UserMessage.
func splitPassages(user string) []string {
	body, ok := strings.CutPrefix(user, contextHeader)
	if !ok {
		return nil
	}
	if i := strings.LastIndex(body, questionHeader); i >= 0 {
		body = body[:i]
	}

	var passages []string
	for _, p := range strings.Split(body, "\n\n[") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "[") {
			p = "[" + p
		}
		passages = append(passages, p)
	}
	return passages
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n])) + "..."
}

// ParseProvider normalizes a generation provider name. Empty selects auto.
func ParseProvider(s string) (string, error) {
	switch p := strings.ToLower(strings.TrimSpace(s)); p {
	case "", "auto":
		return "auto", nil
	case ProviderOpenAI, ProviderGemini, ProviderExtractive:
		return p, nil
	default:
		return "", fmt.Errorf("unknown generation provider %q", s)
	}
}
