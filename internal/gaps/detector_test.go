package gaps

import (
	"bytes"
	"testing"

	"github.com/fentz26/gapforge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTools map[string][]string

func (s staticTools) ToolsFor(capability string) []string { return s[capability] }

func TestDetect_PriorityOrdering(t *testing.T) {
	d := NewDetector(nil, nil)
	gaps := d.Detect(map[string]int{"Production Readiness": 15, "Gap Analysis": 12})

	require.Len(t, gaps, len(DefaultCatalog))
	assert.Equal(t, "Production Readiness", gaps[0].Name)
	assert.InDelta(t, 13.5, gaps[0].Priority, 1e-9)
	assert.Equal(t, "Gap Analysis", gaps[1].Name)
	assert.InDelta(t, 8.4, gaps[1].Priority, 1e-9)
}

func TestDetect_NilFrequencyCountsOnce(t *testing.T) {
	gaps := NewDetector(nil, nil).Detect(nil)
	for _, g := range gaps {
		assert.Equal(t, 1, g.Frequency, g.Name)
	}
	assert.Equal(t, "Production Readiness", gaps[0].Name)
}

func TestDetect_MissingKeyIsZero(t *testing.T) {
	gaps := NewDetector(nil, nil).Detect(map[string]int{"Gap Analysis": 2})
	for _, g := range gaps {
		if g.Name != "Gap Analysis" {
			assert.Zero(t, g.Frequency, g.Name)
			assert.Zero(t, g.Priority, g.Name)
		}
	}
}

func TestDetect_StableTieBreak(t *testing.T) {
	// Multi-Dimensional Evaluation and Precision Policing share 0.6.
	gaps := NewDetector(nil, nil).Detect(map[string]int{
		"Precision Policing":           3,
		"Multi-Dimensional Evaluation": 3,
	})
	assert.Equal(t, "Multi-Dimensional Evaluation", gaps[0].Name)
	assert.Equal(t, "Precision Policing", gaps[1].Name)
}

func TestDetect_Status(t *testing.T) {
	tools := staticTools{
		"Gap Analysis":       {"checklist"},
		"Precision Policing": {"vague", "alternatives"},
		"Brutal Accuracy":    {},
		"Tradeoff Analysis":  {"a", "b"},
	}
	gaps := NewDetector(nil, tools).Detect(nil)
	byName := make(map[string]models.CapabilityGap)
	for _, g := range gaps {
		byName[g.Name] = g
	}

	tests := []struct {
		name string
		want models.GapStatus
	}{
		{"Production Readiness", models.GapStatusUnsupported},
		{"Gap Analysis", models.GapStatusPartial},
		{"Precision Policing", models.GapStatusFull},
		{"Brutal Accuracy", models.GapStatusNotAutomatable},
		// Overridden regardless of tool count.
		{"Tradeoff Analysis", models.GapStatusNotAutomatable},
		{"Mechanistic Understanding", models.GapStatusNotAutomatable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, byName[tt.name].Status)
		})
	}
}

func TestTopGaps(t *testing.T) {
	tools := staticTools{"Gap Analysis": {"x", "y"}}
	d := NewDetector(nil, tools)
	freq := map[string]int{
		"Production Readiness": 10,
		"Gap Analysis":         20, // fully supported
		"Brutal Accuracy":      50, // not automatable
		"Precision Policing":   4,
		"Diminishing Returns":  1,
	}

	top := d.TopGaps(freq, 5, 2)
	names := make([]string, len(top))
	for i, g := range top {
		names[i] = g.Name
	}
	assert.Equal(t, []string{"Production Readiness", "Precision Policing"}, names)

	assert.Len(t, d.TopGaps(freq, 1, 1), 1)
	assert.Empty(t, d.TopGaps(freq, 5, 100))
}

func TestLookup(t *testing.T) {
	d := NewDetector(nil, nil)
	g, err := d.Lookup(nil, "production readiness")
	require.NoError(t, err)
	assert.Equal(t, "Production Readiness", g.Name)
	assert.Len(t, g.Missing, 4)

	_, err = d.Lookup(nil, "Telepathy")
	assert.ErrorIs(t, err, models.ErrConfiguration)
}

func TestWriteReport(t *testing.T) {
	var buf bytes.Buffer
	WriteReport(&buf, NewDetector(nil, nil).Detect(nil))
	out := buf.String()
	assert.Contains(t, out, "Production Readiness")
	assert.Contains(t, out, "no tools exist")
	assert.Contains(t, out, "too low to tool")
}

func TestParseFrequencies(t *testing.T) {
	freq, err := ParseFrequencies([]string{"Gap Analysis=12", " Production Readiness = 3", "Gap Analysis=1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Gap Analysis": 13, "Production Readiness": 3}, freq)

	freq, err = ParseFrequencies(nil)
	require.NoError(t, err)
	assert.Nil(t, freq)

	for _, bad := range []string{"Gap Analysis", "=4", "Gap Analysis=x", "Gap Analysis=-1"} {
		_, err := ParseFrequencies([]string{bad})
		assert.ErrorIs(t, err, models.ErrConfiguration, bad)
	}
}
