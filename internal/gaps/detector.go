// Package gaps scores and prioritizes missing capabilities.
package gaps

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/fentz26/gapforge/internal/models"
)

// notAutomatableBelow is the automation potential under which a capability
// is never worth tooling, whatever its coverage.
const notAutomatableBelow = 0.3

// ToolSource reports the tools already serving a capability.
type ToolSource interface {
	ToolsFor(capability string) []string
}

// Detector derives capability gaps from the catalog and known tools.
type Detector struct {
	catalog []Capability
	tools   ToolSource
}

// NewDetector creates a detector over catalog. A nil catalog uses DefaultCatalog.
func NewDetector(catalog []Capability, tools ToolSource) *Detector {
	if catalog == nil {
		catalog = DefaultCatalog
	}
	return &Detector{catalog: catalog, tools: tools}
}

// Detect returns every catalog capability as a gap, highest priority first.
// A nil freq counts every capability once; keys absent from a non-nil map count zero.
func (d *Detector) Detect(freq map[string]int) []models.CapabilityGap {
	gaps := make([]models.CapabilityGap, 0, len(d.catalog))
	for _, c := range d.catalog {
		n := 1
		if freq != nil {
			n = freq[c.Name]
		}
		gaps = append(gaps, d.gapFor(c, n))
	}

	sort.SliceStable(gaps, func(i, j int) bool {
		return gaps[i].Priority > gaps[j].Priority
	})
	return gaps
}

// TopGaps returns the first n actionable gaps with frequency >= minFrequency.
// Fully supported and not-automatable gaps are never actionable.
func (d *Detector) TopGaps(freq map[string]int, n, minFrequency int) []models.CapabilityGap {
	var out []models.CapabilityGap
	for _, g := range d.Detect(freq) {
		if len(out) >= n {
			break
		}
		if g.Frequency < minFrequency {
			continue
		}
		if g.Status != models.GapStatusUnsupported && g.Status != models.GapStatusPartial {
			continue
		}
		out = append(out, g)
	}
	return out
}

// Lookup returns the gap for a single capability.
func (d *Detector) Lookup(freq map[string]int, name string) (models.CapabilityGap, error) {
	for _, g := range d.Detect(freq) {
		if strings.EqualFold(g.Name, name) {
			return g, nil
		}
	}
	return models.CapabilityGap{}, fmt.Errorf("%w: unknown capability %q", models.ErrConfiguration, name)
}

func (d *Detector) gapFor(c Capability, freq int) models.CapabilityGap {
	var existing []string
	if d.tools != nil {
		existing = d.tools.ToolsFor(c.Name)
	}

	status := models.GapStatusFull
	switch len(existing) {
	case 0:
		status = models.GapStatusUnsupported
	case 1:
		status = models.GapStatusPartial
	}
	if c.AutomationPotential < notAutomatableBelow {
		status = models.GapStatusNotAutomatable
	}

	return models.CapabilityGap{
		Name:                c.Name,
		Status:              status,
		ExistingTools:       existing,
		Missing:             append([]string(nil), c.Missing...),
		Frequency:           freq,
		AutomationPotential: c.AutomationPotential,
		Priority:            float64(freq) * c.AutomationPotential,
	}
}

// Justification explains a gap's status in one line.
func Justification(g models.CapabilityGap) string {
	switch g.Status {
	case models.GapStatusNotAutomatable:
		return fmt.Sprintf("automation potential %.1f is too low to tool %s", g.AutomationPotential, g.Name)
	case models.GapStatusUnsupported:
		return fmt.Sprintf("no tools exist for %s", g.Name)
	case models.GapStatusPartial:
		return fmt.Sprintf("only %d tool exists, may need enhancement", len(g.ExistingTools))
	default:
		return fmt.Sprintf("%d tools provide good coverage", len(g.ExistingTools))
	}
}

// WriteReport renders a gap report to w.
func WriteReport(w io.Writer, gaps []models.CapabilityGap) {
	counts := make(map[models.GapStatus]int)
	for _, g := range gaps {
		counts[g.Status]++
	}

	fmt.Fprintln(w, "Capability gap report")
	for _, s := range []models.GapStatus{
		models.GapStatusUnsupported, models.GapStatusPartial, models.GapStatusFull, models.GapStatusNotAutomatable,
	} {
		fmt.Fprintf(w, "  %-20s %d\n", s, counts[s])
	}
	fmt.Fprintln(w)

	for i, g := range gaps {
		fmt.Fprintf(w, "%d. %s [%s] priority=%.1f (freq %d x automation %.1f)\n",
			i+1, g.Name, g.Status, g.Priority, g.Frequency, g.AutomationPotential)
		fmt.Fprintf(w, "   %s\n", Justification(g))
		if len(g.ExistingTools) > 0 {
			fmt.Fprintf(w, "   tools: %s\n", strings.Join(g.ExistingTools, ", "))
		}
		for _, m := range g.Missing {
			fmt.Fprintf(w, "   - %s\n", m)
		}
	}
}

// ParseFrequencies parses "Name=n" pairs into a frequency map. A nil or
// empty input yields nil, which Detect reads as every capability once.
func ParseFrequencies(pairs []string) (map[string]int, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	freq := make(map[string]int, len(pairs))
	for _, p := range pairs {
		name, count, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: frequency %q is not name=count", models.ErrConfiguration, p)
		}
		n, err := strconv.Atoi(strings.TrimSpace(count))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: frequency %q needs a non-negative count", models.ErrConfiguration, p)
		}
		freq[name] += n
	}
	return freq, nil
}
