package performance

import (
	"sort"
	"time"

	"github.com/fentz26/gapforge/internal/models"
)

// Aggregate derives metrics from every record of one (tool, capability) pair.
// The result does not depend on the order of records.
func Aggregate(records []models.UsageRecord, now time.Time) *models.PerformanceMetrics {
	if len(records) == 0 {
		return nil
	}

	// Sum in content order, never in store id order.
	sorted := append([]models.UsageRecord(nil), records...)
	sort.Slice(sorted, func(i, j int) bool {
		return contentLess(sorted[i], sorted[j])
	})

	m := &models.PerformanceMetrics{
		Tool:       sorted[0].Tool,
		Capability: sorted[0].Capability,
		UsageCount: len(sorted),
	}

	var successes int
	var latency, score float64
	for _, r := range sorted {
		if r.Success {
			successes++
		}
		latency += r.LatencyMS
		score += r.Score
		m.TotalCost += r.Cost
		if r.Timestamp.After(m.LastUsed) {
			m.LastUsed = r.Timestamp
		}
	}

	n := float64(len(sorted))
	m.SuccessRate = float64(successes) / n * 100
	m.AvgLatencyMS = latency / n
	m.AvgScore = score / n
	m.Recommendation = Verdict(m, now)
	return m
}

func contentLess(a, b models.UsageRecord) bool {
	switch {
	case !a.Timestamp.Equal(b.Timestamp):
		return a.Timestamp.Before(b.Timestamp)
	case a.Success != b.Success:
		return !a.Success
	case a.LatencyMS != b.LatencyMS:
		return a.LatencyMS < b.LatencyMS
	case a.Cost != b.Cost:
		return a.Cost < b.Cost
	case a.Score != b.Score:
		return a.Score < b.Score
	default:
		return a.Error < b.Error
	}
}

// Verdict applies the retirement policy:
// retire when success < 50% and (score < 0.3 or unused for over 30 days),
// monitor when success < 70% or score < 0.5, keep otherwise.
func Verdict(m *models.PerformanceMetrics, now time.Time) models.Verdict {
	idleDays := now.Sub(m.LastUsed).Hours() / 24

	switch {
	case m.SuccessRate < 50 && (m.AvgScore < 0.3 || idleDays > 30):
		return models.VerdictRetire
	case m.SuccessRate < 70 || m.AvgScore < 0.5:
		return models.VerdictMonitor
	default:
		return models.VerdictKeep
	}
}

// rank orders tools for a capability. Latency is a small penalty per 10s.
func rank(m *models.PerformanceMetrics) float64 {
	return m.SuccessRate/100*0.5 + m.AvgScore*0.4 - (m.AvgLatencyMS/10000)*0.1
}

type pairKey struct{ tool, capability string }

func groupByPair(records []models.UsageRecord) map[pairKey][]models.UsageRecord {
	out := make(map[pairKey][]models.UsageRecord)
	for _, r := range records {
		k := pairKey{r.Tool, r.Capability}
		out[k] = append(out[k], r)
	}
	return out
}

func sortMetrics(ms []models.PerformanceMetrics) {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].Tool != ms[j].Tool {
			return ms[i].Tool < ms[j].Tool
		}
		return ms[i].Capability < ms[j].Capability
	})
}
