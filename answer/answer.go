package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"docquery/index"
)

// NoInformation is the fixed reply for an empty retrieval set; no
// generation call is made in that case.
const NoInformation = "I don't have any information about that in the uploaded documents."

const grounding = "Answer the question using ONLY the context below. " +
	"Every statement must be supported by the context. " +
	"If the context does not contain the answer, reply exactly: " +
	"\"I cannot answer this question from the provided documents.\""

// GenerationError reports a failed generation call. The retrieved
// sources are carried along so callers can still show them.
type GenerationError struct {
	Sources []string
	Err     error
}

func (e *GenerationError) Error() string { return fmt.Sprintf("answer generation: %v", e.Err) }

func (e *GenerationError) Unwrap() error { return e.Err }

// Answer is a generated reply plus the documents it was grounded on.
type Answer struct {
	Text    string   `json:"answer"`
	Sources []string `json:"sources"`
}

// Generator produces prose from a fully assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Synthesizer assembles a grounded prompt from retrieved chunks and
// post-processes the model output with citations.
type Synthesizer struct {
	log       *slog.Logger
	generator Generator
}

func NewSynthesizer(log *slog.Logger, generator Generator) *Synthesizer {
	return &Synthesizer{log: log, generator: generator}
}

func (s *Synthesizer) Answer(ctx context.Context, question string, hits []index.Result) (Answer, error) {
	if len(hits) == 0 {
		return Answer{Text: NoInformation}, nil
	}

	sources := citedSources(hits)

	text, err := s.generator.Generate(ctx, buildPrompt(question, hits))
	if err != nil {
		return Answer{}, &GenerationError{Sources: sources, Err: err}
	}

	return Answer{Text: strings.TrimSpace(text), Sources: sources}, nil
}

func buildPrompt(question string, hits []index.Result) string {
	var sb strings.Builder
	sb.WriteString(grounding)
	sb.WriteString("\n\nContext:\n")
	for _, h := range hits {
		fmt.Fprintf(&sb, "\n[source: %s]\n%s\n", h.Chunk.Source, h.Chunk.Text)
	}
	sb.WriteString("\nQuestion: ")
	sb.WriteString(question)
	return sb.String()
}

// citedSources deduplicates source names, preserving retrieval order.
func citedSources(hits []index.Result) []string {
	seen := make(map[string]struct{}, len(hits))
	var sources []string
	for _, h := range hits {
		if _, ok := seen[h.Chunk.Source]; ok {
			continue
		}
		seen[h.Chunk.Source] = struct{}{}
		sources = append(sources, h.Chunk.Source)
	}
	return sources
}

// GeminiGenerator calls the Gemini API. The client is created lazily on
// first use and reused for the process lifetime.
type GeminiGenerator struct {
	APIKey      string
	Model       string
	Temperature float32

	once   sync.Once
	client *genai.Client
	err    error
}

func (g *GeminiGenerator) init(ctx context.Context) (*genai.Client, error) {
	g.once.Do(func() {
		g.client, g.err = genai.NewClient(ctx, option.WithAPIKey(g.APIKey))
	})
	return g.client, g.err
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	client, err := g.init(ctx)
	if err != nil {
		return "", fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(g.Model)
	model.SetTemperature(g.Temperature)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty generation response")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	return sb.String(), nil
}
