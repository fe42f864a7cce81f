// Package connectors defines the external collaborators gapforge acquires tools through.
package connectors

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// SynthesisKind is what a synthesizer is asked to produce.
type SynthesisKind string

const (
	SynthesizeBuild          SynthesisKind = "build"
	SynthesizeLibraryWrapper SynthesisKind = "library_wrapper"
	SynthesizeAPIWrapper     SynthesisKind = "api_wrapper"
)

// SynthesisRequest describes a tool to generate.
type SynthesisRequest struct {
	Capability  string            `json:"capability"`
	Description string            `json:"description"`
	Kind        SynthesisKind     `json:"kind"`
	Context     map[string]string `json:"context,omitempty"`
}

// Synthesizer generates Go source for a tool.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (string, error)
}

// CandidateKind is the kind of acquirable thing a discoverer returns.
type CandidateKind string

const (
	CandidateLibrary CandidateKind = "library"
	CandidateAPI     CandidateKind = "api"
)

// Candidate is one discovered library or API.
type Candidate struct {
	Name         string        `json:"name"`
	Kind         CandidateKind `json:"kind"`
	Description  string        `json:"description"`
	URL          string        `json:"url,omitempty"`
	Maturity     float64       `json:"maturity"` // 0-1
	MonthlyCost  float64       `json:"monthly_cost"`
	Requirements []string      `json:"requirements,omitempty"`
}

// Discoverer searches one source for candidates.
type Discoverer interface {
	// Kind returns the candidate kind this source yields.
	Kind() CandidateKind

	// Search returns up to max candidates matching terms, best first.
	Search(ctx context.Context, terms []string, max int) ([]Candidate, error)
}

// Verifier checks a synthesized tool file after it is written.
type Verifier interface {
	Verify(ctx context.Context, path string) (*ExecResult, error)
}

// ExecResult holds the result of a command execution.
type ExecResult struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exit_code"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// SearchAll queries every discoverer concurrently and merges the results
// by maturity, highest first. Any source failure fails the search.
func SearchAll(ctx context.Context, sources []Discoverer, terms []string, max int) ([]Candidate, error) {
	results := make([][]Candidate, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			found, err := src.Search(gctx, terms, max)
			if err != nil {
				return fmt.Errorf("%s search: %w", src.Kind(), err)
			}
			results[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []Candidate
	seen := make(map[string]bool)
	for _, found := range results {
		for _, c := range found {
			key := string(c.Kind) + "/" + strings.ToLower(c.Name)
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, c)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Maturity > merged[j].Maturity
	})
	if max > 0 && len(merged) > max {
		merged = merged[:max]
	}
	return merged, nil
}

// Keywords lowercases terms and splits them into distinct words of three or more letters.
func Keywords(terms []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range terms {
		for _, w := range strings.FieldsFunc(strings.ToLower(t), func(r rune) bool {
			return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
		}) {
			if len(w) < 3 || stopWords[w] || seen[w] {
				continue
			}
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}

// MaxQueryWords caps the keywords sent to a search backend. Backends that
// require every word to match return nothing for wider queries.
const MaxQueryWords = 4

// QueryWords returns the first MaxQueryWords keywords of terms. Callers put
// the most specific term first.
func QueryWords(terms []string) []string {
	words := Keywords(terms)
	if len(words) > MaxQueryWords {
		words = words[:MaxQueryWords]
	}
	return words
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true, "that": true, "this": true,
}
