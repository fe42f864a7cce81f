// Package catalog is an offline Discoverer over configured catalog entries.
package catalog

import (
	"context"
	"sort"
	"strings"

	"github.com/fentz26/gapforge/internal/config"
	"github.com/fentz26/gapforge/internal/connectors"
	"github.com/fentz26/gapforge/internal/models"
)

// Catalog searches a fixed list of entries of one kind.
type Catalog struct {
	kind    connectors.CandidateKind
	entries []config.CatalogEntry
}

// New keeps the entries of kind.
func New(kind connectors.CandidateKind, entries []config.CatalogEntry) *Catalog {
	var keep []config.CatalogEntry
	for _, e := range entries {
		if string(e.Kind) == string(kind) {
			keep = append(keep, e)
		}
	}
	return &Catalog{kind: kind, entries: keep}
}

// Kind returns the candidate kind.
func (c *Catalog) Kind() connectors.CandidateKind { return c.kind }

// Search ranks entries by keyword hits, then maturity.
func (c *Catalog) Search(ctx context.Context, terms []string, max int) ([]connectors.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	words := connectors.Keywords(terms)

	type hit struct {
		entry config.CatalogEntry
		score int
	}
	var hits []hit
	for _, e := range c.entries {
		text := strings.ToLower(strings.ReplaceAll(e.Key, "_", " ") + " " + e.Source)
		score := 0
		for _, w := range words {
			if strings.Contains(text, w) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, hit{entry: e, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].entry.Maturity > hits[j].entry.Maturity
	})

	out := make([]connectors.Candidate, 0, len(hits))
	for _, h := range hits {
		if max > 0 && len(out) == max {
			break
		}
		out = append(out, toCandidate(h.entry))
	}
	return out, nil
}

func toCandidate(e config.CatalogEntry) connectors.Candidate {
	c := connectors.Candidate{
		Name:        e.Source,
		Kind:        connectors.CandidateLibrary,
		Description: strings.ReplaceAll(e.Key, "_", " "),
		Maturity:    e.Maturity / 10,
		MonthlyCost: e.MonthlyCost,
	}
	if e.Kind == models.ActionAPI {
		c.Kind = connectors.CandidateAPI
	}
	return c
}
