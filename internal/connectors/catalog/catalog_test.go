package catalog

import (
	"context"
	"testing"

	"github.com/fentz26/gapforge/internal/analyzer"
	"github.com/fentz26/gapforge/internal/connectors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch_Libraries(t *testing.T) {
	c := New(connectors.CandidateLibrary, analyzer.DefaultCatalog())
	assert.Equal(t, connectors.CandidateLibrary, c.Kind())

	found, err := c.Search(context.Background(), []string{"Test coverage checker"}, 5)
	require.NoError(t, err)
	require.NotEmpty(t, found)
	assert.Equal(t, "go tool cover", found[0].Name)
	assert.InDelta(t, 0.9, found[0].Maturity, 1e-9)
	for _, f := range found {
		assert.Equal(t, connectors.CandidateLibrary, f.Kind)
		assert.Zero(t, f.MonthlyCost)
	}
}

func TestSearch_APIs(t *testing.T) {
	c := New(connectors.CandidateAPI, analyzer.DefaultCatalog())
	found, err := c.Search(context.Background(), []string{"security scanning"}, 5)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "snyk", found[0].Name)
	assert.Equal(t, 25.0, found[0].MonthlyCost)
}

func TestSearch_NoMatch(t *testing.T) {
	c := New(connectors.CandidateLibrary, analyzer.DefaultCatalog())
	found, err := c.Search(context.Background(), []string{"quantum teleportation"}, 5)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestSearch_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(connectors.CandidateLibrary, analyzer.DefaultCatalog()).Search(ctx, []string{"linting"}, 5)
	assert.ErrorIs(t, err, context.Canceled)
}
