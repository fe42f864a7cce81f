package acquisition

import (
	"context"

	"github.com/fentz26/gapforge/internal/models"
)

// retireMinUses is the usage floor for retirement candidates in a summary.
const retireMinUses = 5

// Summary is a cost and performance overview.
type Summary struct {
	Budgets          []models.BudgetStatus       `json:"budgets"`
	ForecastMonthly  float64                     `json:"forecast_monthly"`
	TopPerformers    []models.PerformanceMetrics `json:"top_performers"`
	RetireCandidates []models.PerformanceMetrics `json:"retire_candidates"`
}

// Summary gathers budget status, the monthly forecast, the five best
// performing tools and the tools due for retirement.
func (o *Orchestrator) Summary(ctx context.Context) (*Summary, error) {
	statuses, err := o.deps.Budget.Status(ctx)
	if err != nil {
		return nil, err
	}
	forecast, err := o.deps.Budget.ForecastMonthly(ctx)
	if err != nil {
		return nil, err
	}
	top, err := o.deps.Performance.TopPerformers(ctx, 5)
	if err != nil {
		return nil, err
	}
	retire, err := o.deps.Performance.ToolsToRetire(ctx, retireMinUses)
	if err != nil {
		return nil, err
	}

	return &Summary{
		Budgets:          statuses,
		ForecastMonthly:  forecast,
		TopPerformers:    top,
		RetireCandidates: retire,
	}, nil
}
