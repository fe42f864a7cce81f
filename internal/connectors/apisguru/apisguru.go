// Package apisguru discovers public HTTP APIs from the APIs.guru directory.
package apisguru

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/fentz26/gapforge/internal/connectors"
)

// entry is one API in list.json.
type entry struct {
	Preferred string             `json:"preferred"`
	Versions  map[string]version `json:"versions"`
}

type version struct {
	Updated    time.Time `json:"updated"`
	SwaggerURL string    `json:"swaggerUrl"`
	Info       struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"info"`
}

// Directory implements connectors.Discoverer over list.json.
type Directory struct {
	url     string
	monthly float64
	http    *http.Client
	retry   retry.Config
	now     func() time.Time

	mu   sync.Mutex
	list map[string]entry
}

// Option configures a Directory.
type Option func(*Directory)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Directory) { d.http = c }
}

// WithRetry sets the attempt count and first backoff delay.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(d *Directory) {
		d.retry.MaxAttempts = attempts
		d.retry.InitialDelay = delay
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Directory) { d.now = now }
}

// New creates a directory reading url. Every API is priced at monthly,
// since the directory carries no pricing.
func New(url string, monthly float64, opts ...Option) *Directory {
	d := &Directory{
		url:     url,
		monthly: monthly,
		http:    &http.Client{Timeout: 30 * time.Second},
		retry: retry.Config{
			MaxAttempts:   3,
			InitialDelay:  500 * time.Millisecond,
			BackoffPolicy: retry.BackoffExponential,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Kind returns the candidate kind.
func (d *Directory) Kind() connectors.CandidateKind { return connectors.CandidateAPI }

// Search matches terms against each API's preferred title and description.
func (d *Directory) Search(ctx context.Context, terms []string, max int) ([]connectors.Candidate, error) {
	words := connectors.QueryWords(terms)
	if len(words) == 0 {
		return nil, nil
	}
	list, err := d.load(ctx)
	if err != nil {
		return nil, err
	}

	type hit struct {
		c    connectors.Candidate
		hits int
	}
	now := d.now()
	var hits []hit
	for id, e := range list {
		v, ok := e.Versions[e.Preferred]
		if !ok {
			continue
		}
		text := strings.ToLower(v.Info.Title + " " + v.Info.Description)
		n := 0
		for _, w := range words {
			if strings.Contains(text, w) {
				n++
			}
		}
		if n == 0 {
			continue
		}
		hits = append(hits, hit{hits: n, c: connectors.Candidate{
			Name:        id,
			Kind:        connectors.CandidateAPI,
			Description: firstLine(v.Info.Description),
			URL:         v.SwaggerURL,
			Maturity:    maturity(e, v, now),
			MonthlyCost: d.monthly,
		}})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].hits != hits[j].hits {
			return hits[i].hits > hits[j].hits
		}
		if hits[i].c.Maturity != hits[j].c.Maturity {
			return hits[i].c.Maturity > hits[j].c.Maturity
		}
		return hits[i].c.Name < hits[j].c.Name
	})

	var out []connectors.Candidate
	for _, h := range hits {
		if max > 0 && len(out) == max {
			break
		}
		out = append(out, h.c)
	}
	return out, nil
}

// load fetches list.json once. Failed fetches are retried with backoff and not cached.
func (d *Directory) load(ctx context.Context) (map[string]entry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.list != nil {
		return d.list, nil
	}

	r := retry.New[map[string]entry](d.retry)
	list, err := r.Do(ctx, d.fetch)
	if err != nil {
		return nil, fmt.Errorf("fetch api directory: %w", err)
	}
	d.list = list
	return list, nil
}

func (d *Directory) fetch(ctx context.Context) (map[string]entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var list map[string]entry
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return list, nil
}

// maturity scores an API in [0,1] from its version history, how recently
// the preferred version was updated, and whether it is documented.
func maturity(e entry, v version, now time.Time) float64 {
	score := math.Min(float64(len(e.Versions))/5, 1) * 0.4

	switch age := now.Sub(v.Updated); {
	case v.Updated.IsZero():
	case age <= 365*24*time.Hour:
		score += 0.4
	case age <= 2*365*24*time.Hour:
		score += 0.2
	}
	if strings.TrimSpace(v.Info.Description) != "" {
		score += 0.2
	}
	return math.Round(score*100) / 100
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
