// Package gemini synthesizes tool sources with Google's Gemini models.
package gemini

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/fentz26/gapforge/internal/config"
	"github.com/fentz26/gapforge/internal/connectors"
	"github.com/fentz26/gapforge/internal/models"
	"google.golang.org/genai"
)

// generateFunc sends one prompt and returns the model's text.
type generateFunc func(ctx context.Context, prompt string) (string, error)

// Synthesizer implements connectors.Synthesizer over genai.
type Synthesizer struct {
	model    string
	generate generateFunc
}

// New creates a Gemini synthesizer. The key comes from the environment, never the config file.
func New(ctx context.Context, cfg config.SynthesisConfig, apiKey string) (*Synthesizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s is not set", models.ErrConfiguration, cfg.APIKeyEnv)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	s := &Synthesizer{model: cfg.Model}
	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(cfg.Temperature),
	}
	s.generate = func(ctx context.Context, prompt string) (string, error) {
		resp, err := client.Models.GenerateContent(ctx, s.model, genai.Text(prompt), genCfg)
		if err != nil {
			return "", err
		}
		return resp.Text(), nil
	}
	return s, nil
}

// Synthesize asks the model for a Go source file and strips any markdown fences.
func (s *Synthesizer) Synthesize(ctx context.Context, req connectors.SynthesisRequest) (string, error) {
	text, err := s.generate(ctx, Prompt(req))
	if err != nil {
		return "", fmt.Errorf("%w: gemini %s: %v", models.ErrSynthesis, s.model, err)
	}
	code := StripFences(text)
	if code == "" {
		return "", fmt.Errorf("%w: gemini %s returned no code", models.ErrSynthesis, s.model)
	}
	return code, nil
}

// Prompt renders the generation prompt for req.
func Prompt(req connectors.SynthesisRequest) string {
	var b strings.Builder

	switch req.Kind {
	case connectors.SynthesizeLibraryWrapper:
		fmt.Fprintf(&b, "Generate a Go wrapper around the library %s for the capability: %s\n\n",
			req.Context["source"], req.Capability)
	case connectors.SynthesizeAPIWrapper:
		fmt.Fprintf(&b, "Generate a Go client wrapper around the HTTP API %s for the capability: %s\n\n",
			req.Context["source"], req.Capability)
	default:
		fmt.Fprintf(&b, "Generate a self-contained Go tool for the capability: %s\n\n", req.Capability)
	}

	fmt.Fprintf(&b, "# Description\n%s\n\n", req.Description)

	if len(req.Context) > 0 {
		b.WriteString("# Context\n")
		keys := make([]string, 0, len(req.Context))
		for k := range req.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, req.Context[k])
		}
		b.WriteString("\n")
	}

	b.WriteString(`# Requirements
1. Package name: tools. Standard library imports only, plus the wrapped library if any.
2. Export func Analyze(ctx context.Context, code string) (Result, error).
3. Result has fields Score float64 (0-1), Checks map[string]bool, Issues []string, Suggestions []string.
4. Return errors, never panic.
`)
	if req.Kind == connectors.SynthesizeAPIWrapper {
		b.WriteString(`5. Read the API key from an environment variable. Use a 10 second http.Client timeout.
6. Retry 429 and 5xx responses up to 3 times with exponential backoff.
`)
	}
	b.WriteString("\nReturn ONLY the Go source file. No explanation or markdown.\n")
	return b.String()
}

// StripFences extracts the first fenced code block, or returns text trimmed.
func StripFences(text string) string {
	start := strings.Index(text, "```")
	if start < 0 {
		return strings.TrimSpace(text)
	}
	body := text[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:] // drop the language tag line
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}
