// Package embedding turns text into fixed-dimension vectors.
//
// Backends are chosen once at startup from configuration: OpenAI, Gemini, or
// None. None is a null object: the retrieval pipeline checks Enabled once and
// switches to keyword search instead of probing the environment per request.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoProvider is returned by the None embedder.
var ErrNoProvider = errors.New("no embedding provider configured")

// Embedder generates embeddings. Failures from the remote service are
// returned as *provider.Error.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}

// Provider names accepted by config.
const (
	ProviderAuto   = "auto"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderNone   = "none"
)

// ParseProvider normalizes a provider name.
func ParseProvider(s string) (string, error) {
	switch p := strings.ToLower(strings.TrimSpace(s)); p {
	case "":
		return ProviderAuto, nil
	case ProviderAuto, ProviderOpenAI, ProviderGemini, ProviderNone:
		return p, nil
	default:
		return "", fmt.Errorf("unknown embedding provider %q", s)
	}
}

type none struct{}

// None returns the null-object embedder.
func None() Embedder {
	return none{}
}

func (none) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, ErrNoProvider
}

func (none) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, ErrNoProvider
}

func (none) Dimensions() int { return 0 }

func (none) Name() string { return ProviderNone }

// Enabled reports whether e can produce embeddings.
func Enabled(e Embedder) bool {
	if e == nil {
		return false
	}
	_, isNone := e.(none)
	return !isNone
}

// Mode controls when chunk embeddings are computed.
type Mode string

const (
	// ModeEager embeds chunks during ingestion.
	ModeEager Mode = "eager"
	// ModeLazy defers embedding to the first query that needs it.
	ModeLazy Mode = "lazy"
)

// ParseMode normalizes an embedding mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeLazy, "":
		return ModeLazy, nil
	case ModeEager:
		return ModeEager, nil
	default:
		return "", fmt.Errorf("unknown embedding mode %q (want eager or lazy)", s)
	}
}

// toFloat32 converts []float64 to []float32.
// OpenAI returns float64, but the index stores float32.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
