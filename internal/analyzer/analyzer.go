// Package analyzer decides whether to build, or buy a library or API, for a capability gap.
package analyzer

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/fentz26/gapforge/internal/config"
	"github.com/fentz26/gapforge/internal/models"
	"go.uber.org/zap"
)

const (
	maxComplexity   = 10
	maxBuildHours   = 40
	minFreeMaturity = 8
)

// Analyzer estimates build and buy options. It is stateless after construction.
type Analyzer struct {
	rate    float64
	catalog []config.CatalogEntry
	logger  *zap.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger for recommendation decisions.
func WithLogger(l *zap.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// New creates an analyzer pricing hours at rate. A nil catalog uses DefaultCatalog.
func New(rate float64, catalog []config.CatalogEntry, opts ...Option) *Analyzer {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	a := &Analyzer{rate: rate, catalog: catalog, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze recommends an acquisition strategy. The first matching rule wins:
//  1. a free option with maturity >= 8 (confidence 0.9)
//  2. a simple build: complexity <= 5 and hours <= 10 (0.8)
//  3. any buy option when the build exceeds 20 hours: the cheapest (0.7)
//  4. build (0.6)
func (a *Analyzer) Analyze(capability string, missing []string, potential float64) models.Recommendation {
	rec := a.recommend(capability, missing, potential)
	a.logger.Debug("acquisition recommended",
		zap.String("capability", capability),
		zap.String("action", string(rec.Action)),
		zap.Float64("confidence", rec.Confidence),
		zap.Float64("total_cost", rec.TotalCost),
		zap.Int("buy_options", len(rec.BuyOptions)),
	)
	return rec
}

func (a *Analyzer) recommend(capability string, missing []string, potential float64) models.Recommendation {
	build := a.EstimateBuild(missing, potential)
	buys := a.FindBuyOptions(missing)

	rec := models.Recommendation{
		Capability: capability,
		Build:      build,
		BuyOptions: buys,
		Missing:    append([]string(nil), missing...),
		Selected:   -1,
	}

	if i := bestFree(buys); i >= 0 {
		opt := buys[i]
		rec.Action = opt.Kind
		rec.Selected = i
		rec.TotalCost = opt.TwelveMonthCost
		rec.Confidence = 0.9
		rec.Rationale = fmt.Sprintf("Mature free %s (%s, maturity %.0f/10) available. Setup $%.0f vs $%.0f to build.",
			opt.Kind, opt.Source, opt.Maturity, opt.TwelveMonthCost, build.TwelveMonthCost)
		return rec
	}

	if build.Complexity <= 5 && build.Hours <= 10 {
		rec.Action = models.ActionBuild
		rec.TotalCost = build.TwelveMonthCost
		rec.Confidence = 0.8
		rec.Rationale = fmt.Sprintf("Simple implementation (%.1fh, %d LOC). Building is cost-effective.",
			build.Hours, build.LOC)
		return rec
	}

	if len(buys) > 0 && build.Hours > 20 {
		i := cheapest(buys)
		opt := buys[i]
		rec.Action = opt.Kind
		rec.Selected = i
		rec.TotalCost = opt.TwelveMonthCost
		rec.Confidence = 0.7
		rec.Rationale = fmt.Sprintf("Complex build (%.1fh). %s saves time at $%.0f vs $%.0f to build.",
			build.Hours, opt.Source, opt.TwelveMonthCost, build.TwelveMonthCost)
		return rec
	}

	rec.Action = models.ActionBuild
	rec.TotalCost = build.TwelveMonthCost
	rec.Confidence = 0.6
	rec.Rationale = fmt.Sprintf("Moderate complexity (%d/10). A custom tool fits best at $%.0f over 12 months.",
		build.Complexity, build.TwelveMonthCost)
	return rec
}

// EstimateBuild sizes an internal build from the number of missing
// sub-capabilities, discounted by how mechanical the capability is.
func (a *Analyzer) EstimateBuild(missing []string, potential float64) models.BuildOption {
	count := float64(len(missing))
	factor := 1 - potential*0.5

	base := math.Min(count*2*factor, maxComplexity)
	loc := len(missing) * int(100*factor)
	hours := math.Min(base*float64(loc)/50, maxBuildHours)
	hours = math.Round(hours*10) / 10
	maintenance := int(math.Min(base*0.8, 10))

	return models.BuildOption{
		Complexity:      int(base),
		Hours:           hours,
		LOC:             loc,
		Dependencies:    dependencies(missing),
		TestingEffort:   int(math.Min(base*0.7, 10)),
		Maintenance:     maintenance,
		TwelveMonthCost: hours*a.rate + float64(maintenance)*2*a.rate,
	}
}

// FindBuyOptions returns catalog entries whose key phrase appears in the
// joined sub-capability text, in catalog order.
func (a *Analyzer) FindBuyOptions(missing []string) []models.BuyOption {
	text := strings.ToLower(strings.Join(missing, " "))

	var opts []models.BuyOption
	for _, e := range a.catalog {
		phrase := strings.ReplaceAll(strings.ToLower(e.Key), "_", " ")
		if phrase == "" || !strings.Contains(text, phrase) {
			continue
		}
		opts = append(opts, a.buyOption(e))
	}
	return opts
}

func (a *Analyzer) buyOption(e config.CatalogEntry) models.BuyOption {
	lockIn := 2
	if e.Kind == models.ActionAPI {
		lockIn = 5
	}
	return models.BuyOption{
		Source:          e.Source,
		Kind:            e.Kind,
		MonthlyCost:     e.MonthlyCost,
		SetupHours:      e.SetupHours,
		Maturity:        e.Maturity,
		LearningCurve:   3,
		LockInRisk:      lockIn,
		TwelveMonthCost: e.MonthlyCost*12 + e.SetupHours*a.rate,
	}
}

// bestFree returns the cheapest free option with maturity >= 8, or -1.
func bestFree(opts []models.BuyOption) int {
	best := -1
	for i, o := range opts {
		if o.MonthlyCost != 0 || o.Maturity < minFreeMaturity {
			continue
		}
		if best < 0 || o.TwelveMonthCost < opts[best].TwelveMonthCost {
			best = i
		}
	}
	return best
}

func cheapest(opts []models.BuyOption) int {
	best := 0
	for i, o := range opts {
		if o.TwelveMonthCost < opts[best].TwelveMonthCost {
			best = i
		}
	}
	return best
}

func dependencies(missing []string) []string {
	text := strings.ToLower(strings.Join(missing, " "))
	seen := make(map[string]bool)
	var deps []string
	for _, h := range dependencyHints {
		if strings.Contains(text, h.keyword) && !seen[h.dep] {
			seen[h.dep] = true
			deps = append(deps, h.dep)
		}
	}
	sort.Strings(deps)
	return deps
}
