// Package performance records tool usage and derives keep/monitor/retire verdicts.
package performance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fentz26/gapforge/internal/models"
	"github.com/fentz26/gapforge/internal/store"
	"go.uber.org/zap"
)

// minRankedUses is the usage floor for BestTool.
const minRankedUses = 3

// Store is the append-only usage log.
type Store interface {
	AppendUsage(ctx context.Context, r models.UsageRecord) (models.UsageRecord, error)
	ScanUsage(ctx context.Context, f store.UsageFilter) ([]models.UsageRecord, error)
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Ledger tracks tool usage. Every query recomputes from the log.
type Ledger struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// New creates a ledger over s.
func New(s Store, logger *zap.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Ledger{store: s, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RecordUsage appends one usage record. Scores are clamped to [0,1].
func (l *Ledger) RecordUsage(ctx context.Context, r models.UsageRecord) (models.UsageRecord, error) {
	if r.Tool == "" || r.Capability == "" {
		return r, fmt.Errorf("%w: usage needs tool and capability", models.ErrConfiguration)
	}
	r.Score = clamp(r.Score, 0, 1)
	if r.LatencyMS < 0 {
		r.LatencyMS = 0
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = l.now().UTC()
	}

	saved, err := l.store.AppendUsage(ctx, r)
	if err != nil {
		return r, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	l.logger.Debug("usage recorded",
		zap.String("tool", r.Tool),
		zap.String("capability", r.Capability),
		zap.Bool("success", r.Success),
		zap.Float64("score", r.Score),
	)
	return saved, nil
}

// Metrics returns metrics for one pair, or nil when it has never been used.
func (l *Ledger) Metrics(ctx context.Context, tool, capability string) (*models.PerformanceMetrics, error) {
	if tool == "" || capability == "" {
		return nil, fmt.Errorf("%w: metrics need tool and capability", models.ErrConfiguration)
	}
	records, err := l.scan(ctx, store.UsageFilter{Tool: tool, Capability: capability})
	if err != nil {
		return nil, err
	}
	return Aggregate(records, l.now()), nil
}

// BestTool returns the highest ranked tool for capability among tools with
// at least three recorded uses.
func (l *Ledger) BestTool(ctx context.Context, capability string) (string, bool, error) {
	records, err := l.scan(ctx, store.UsageFilter{Capability: capability})
	if err != nil {
		return "", false, err
	}

	now := l.now()
	var best string
	bestScore := 0.0
	found := false
	groups := groupByPair(records)
	keys := make([]pairKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].tool < keys[j].tool })

	for _, k := range keys {
		group := groups[k]
		if len(group) < minRankedUses {
			continue
		}
		score := rank(Aggregate(group, now))
		if !found || score > bestScore {
			best, bestScore, found = k.tool, score, true
		}
	}
	return best, found, nil
}

// ToolsToRetire returns pairs with at least minUses records whose verdict is retire.
func (l *Ledger) ToolsToRetire(ctx context.Context, minUses int) ([]models.PerformanceMetrics, error) {
	all, err := l.AllMetrics(ctx)
	if err != nil {
		return nil, err
	}

	var out []models.PerformanceMetrics
	for _, m := range all {
		if m.UsageCount >= minUses && m.Recommendation == models.VerdictRetire {
			out = append(out, m)
		}
	}
	return out, nil
}

// AllMetrics returns metrics for every pair, sorted by tool then capability.
func (l *Ledger) AllMetrics(ctx context.Context) ([]models.PerformanceMetrics, error) {
	records, err := l.scan(ctx, store.UsageFilter{})
	if err != nil {
		return nil, err
	}

	now := l.now()
	var out []models.PerformanceMetrics
	for _, group := range groupByPair(records) {
		out = append(out, *Aggregate(group, now))
	}
	sortMetrics(out)
	return out, nil
}

// TopPerformers returns up to n pairs ranked by success rate times score.
func (l *Ledger) TopPerformers(ctx context.Context, n int) ([]models.PerformanceMetrics, error) {
	all, err := l.AllMetrics(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].SuccessRate*all[i].AvgScore > all[j].SuccessRate*all[j].AvgScore
	})
	if len(all) > n {
		all = all[:n]
	}
	return all, nil
}

// ToolCost is the spend attributed to one tool.
type ToolCost struct {
	Tool      string  `json:"tool"`
	Uses      int     `json:"uses"`
	TotalCost float64 `json:"total_cost"`
	AvgCost   float64 `json:"avg_cost"`
}

// CostAnalysis returns per-tool cost, most expensive first.
func (l *Ledger) CostAnalysis(ctx context.Context) ([]ToolCost, error) {
	records, err := l.scan(ctx, store.UsageFilter{})
	if err != nil {
		return nil, err
	}

	byTool := make(map[string]*ToolCost)
	for _, r := range records {
		c, ok := byTool[r.Tool]
		if !ok {
			c = &ToolCost{Tool: r.Tool}
			byTool[r.Tool] = c
		}
		c.Uses++
		c.TotalCost += r.Cost
	}

	out := make([]ToolCost, 0, len(byTool))
	for _, c := range byTool {
		c.AvgCost = c.TotalCost / float64(c.Uses)
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalCost != out[j].TotalCost {
			return out[i].TotalCost > out[j].TotalCost
		}
		return out[i].Tool < out[j].Tool
	})
	return out, nil
}

// DailyUsage summarizes one UTC day of usage.
type DailyUsage struct {
	Date        string  `json:"date"`
	Uses        int     `json:"uses"`
	Successes   int     `json:"successes"`
	SuccessRate float64 `json:"success_rate"`
	AvgScore    float64 `json:"avg_score"`
}

// UsageTrends returns per-day usage for the last days, oldest first.
func (l *Ledger) UsageTrends(ctx context.Context, days int) ([]DailyUsage, error) {
	since := l.now().UTC().AddDate(0, 0, -days)
	records, err := l.scan(ctx, store.UsageFilter{Since: since})
	if err != nil {
		return nil, err
	}

	byDay := make(map[string]*DailyUsage)
	scores := make(map[string]float64)
	for _, r := range records {
		day := r.Timestamp.UTC().Format("2006-01-02")
		d, ok := byDay[day]
		if !ok {
			d = &DailyUsage{Date: day}
			byDay[day] = d
		}
		d.Uses++
		if r.Success {
			d.Successes++
		}
		scores[day] += r.Score
	}

	out := make([]DailyUsage, 0, len(byDay))
	for day, d := range byDay {
		d.SuccessRate = float64(d.Successes) / float64(d.Uses) * 100
		d.AvgScore = scores[day] / float64(d.Uses)
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// Export writes every pair's metrics as indented JSON.
func (l *Ledger) Export(ctx context.Context, w io.Writer) error {
	all, err := l.AllMetrics(ctx)
	if err != nil {
		return err
	}

	doc := struct {
		ExportedAt time.Time                   `json:"exported_at"`
		Tools      []models.PerformanceMetrics `json:"tools"`
	}{
		ExportedAt: l.now().UTC(),
		Tools:      all,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func (l *Ledger) scan(ctx context.Context, f store.UsageFilter) ([]models.UsageRecord, error) {
	records, err := l.store.ScanUsage(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	return records, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
