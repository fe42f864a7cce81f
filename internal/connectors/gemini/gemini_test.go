package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/fentz26/gapforge/internal/config"
	"github.com/fentz26/gapforge/internal/connectors"
	"github.com/fentz26/gapforge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "  package tools\n", "package tools"},
		{"go fence", "Here you go:\n```go\npackage tools\n```\nenjoy", "package tools"},
		{"bare fence", "```\npackage tools\n```", "package tools"},
		{"unterminated", "```go\npackage tools\n", "package tools"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.in))
		})
	}
}

func TestPrompt(t *testing.T) {
	p := Prompt(connectors.SynthesisRequest{
		Capability:  "Security Scanning",
		Description: "Find hardcoded secrets",
		Kind:        connectors.SynthesizeAPIWrapper,
		Context:     map[string]string{"source": "snyk", "url": "https://snyk.io"},
	})
	assert.Contains(t, p, "HTTP API snyk")
	assert.Contains(t, p, "Find hardcoded secrets")
	assert.Contains(t, p, "- source: snyk\n- url: https://snyk.io")
	assert.Contains(t, p, "exponential backoff")

	build := Prompt(connectors.SynthesisRequest{Capability: "Gap Analysis", Kind: connectors.SynthesizeBuild})
	assert.Contains(t, build, "self-contained Go tool")
	assert.NotContains(t, build, "backoff")
}

func TestSynthesize(t *testing.T) {
	var sent string
	s := &Synthesizer{model: "test-model", generate: func(ctx context.Context, prompt string) (string, error) {
		sent = prompt
		return "```go\npackage tools\n\nfunc Analyze() {}\n```", nil
	}}

	code, err := s.Synthesize(context.Background(), connectors.SynthesisRequest{Capability: "Gap Analysis"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(code, "package tools"))
	assert.Contains(t, sent, "Gap Analysis")
}

func TestSynthesize_Failures(t *testing.T) {
	failing := &Synthesizer{model: "m", generate: func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("quota exhausted")
	}}
	_, err := failing.Synthesize(context.Background(), connectors.SynthesisRequest{})
	assert.ErrorIs(t, err, models.ErrSynthesis)
	assert.Contains(t, err.Error(), "quota exhausted")

	empty := &Synthesizer{model: "m", generate: func(ctx context.Context, prompt string) (string, error) {
		return "```go\n```", nil
	}}
	_, err = empty.Synthesize(context.Background(), connectors.SynthesisRequest{})
	assert.ErrorIs(t, err, models.ErrSynthesis)
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New(context.Background(), config.DefaultConfig().Synthesis, "")
	assert.ErrorIs(t, err, models.ErrConfiguration)
}
