// Package githubsearch discovers Go libraries through the GitHub search API.
package githubsearch

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/fentz26/gapforge/internal/connectors"
	"github.com/google/go-github/v69/github"
)

// Searcher implements connectors.Discoverer for GitHub repositories.
type Searcher struct {
	client *github.Client
	now    func() time.Time
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithBaseURL points the client at another API root, such as a test server.
func WithBaseURL(raw string) Option {
	return func(s *Searcher) {
		if !strings.HasSuffix(raw, "/") {
			raw += "/"
		}
		if u, err := url.Parse(raw); err == nil {
			s.client.BaseURL = u
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Searcher) { s.now = now }
}

// New creates a searcher. An empty token searches anonymously at a lower rate limit.
func New(token string, opts ...Option) *Searcher {
	client := github.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	s := &Searcher{client: client, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Kind returns the candidate kind.
func (s *Searcher) Kind() connectors.CandidateKind { return connectors.CandidateLibrary }

// Search finds Go repositories matching terms, most starred first.
func (s *Searcher) Search(ctx context.Context, terms []string, max int) ([]connectors.Candidate, error) {
	words := connectors.QueryWords(terms)
	if len(words) == 0 {
		return nil, nil
	}
	if max <= 0 {
		max = 5
	}

	query := strings.Join(words, " ") + " language:go archived:false"
	result, _, err := s.client.Search.Repositories(ctx, query, &github.SearchOptions{
		Sort:        "stars",
		Order:       "desc",
		ListOptions: github.ListOptions{PerPage: max},
	})
	if err != nil {
		return nil, fmt.Errorf("search repositories: %w", err)
	}

	now := s.now()
	out := make([]connectors.Candidate, 0, len(result.Repositories))
	for _, repo := range result.Repositories {
		if len(out) == max {
			break
		}
		out = append(out, connectors.Candidate{
			Name:         repo.GetFullName(),
			Kind:         connectors.CandidateLibrary,
			Description:  repo.GetDescription(),
			URL:          repo.GetHTMLURL(),
			Maturity:     maturity(repo, now),
			Requirements: []string{"github.com/" + repo.GetFullName()},
		})
	}
	return out, nil
}

// maturity scores a repository in [0,1]: stars on a log scale, recent
// pushes, and a license. Archived repositories are halved.
func maturity(repo *github.Repository, now time.Time) float64 {
	score := math.Min(math.Log10(float64(repo.GetStargazersCount())+1)/5, 1) * 0.6

	pushed := repo.GetPushedAt().Time
	switch age := now.Sub(pushed); {
	case pushed.IsZero():
	case age <= 365*24*time.Hour:
		score += 0.25
	case age <= 2*365*24*time.Hour:
		score += 0.1
	}
	if repo.GetLicense() != nil {
		score += 0.15
	}
	if repo.GetArchived() {
		score /= 2
	}
	return math.Round(score*100) / 100
}
