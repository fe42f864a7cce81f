package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/fentz26/gapforge/internal/audit"
	"github.com/fentz26/gapforge/internal/models"
	"go.uber.org/zap"
)

// Built-in job names.
const (
	JobBudgetRollover = "budget_rollover"
	JobRetireReview   = "retire_review"
)

// BudgetStatuser rolls budget windows as a side effect of reading them.
type BudgetStatuser interface {
	Status(ctx context.Context) ([]models.BudgetStatus, error)
}

// RetireSource lists tools whose verdict is retire.
type RetireSource interface {
	ToolsToRetire(ctx context.Context, minUses int) ([]models.PerformanceMetrics, error)
}

// Recorder writes audit records.
type Recorder interface {
	Record(ctx context.Context, action string, inputs interface{}, outcome, capability, details string) (*models.PDREntry, error)
}

// BudgetRollover keeps budget windows current while the server is idle.
func BudgetRollover(b BudgetStatuser) Job {
	return Job{
		Name:  JobBudgetRollover,
		Every: time.Hour,
		Run: func(ctx context.Context) error {
			_, err := b.Status(ctx)
			return err
		},
	}
}

// RetireReview records one review entry per tool that should be retired.
func RetireReview(src RetireSource, rec Recorder, minUses int, logger *zap.Logger) Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Job{
		Name:  JobRetireReview,
		Every: 24 * time.Hour,
		Run: func(ctx context.Context) error {
			tools, err := src.ToolsToRetire(ctx, minUses)
			if err != nil {
				return err
			}
			for _, m := range tools {
				logger.Warn("tool should be retired",
					zap.String("tool", m.Tool),
					zap.String("capability", m.Capability),
					zap.Float64("success_rate", m.SuccessRate),
					zap.Float64("avg_score", m.AvgScore),
				)
				if rec == nil {
					continue
				}
				details := fmt.Sprintf("%s: %d uses, %.0f%% success, score %.2f",
					m.Tool, m.UsageCount, m.SuccessRate, m.AvgScore)
				if _, err := rec.Record(ctx, audit.ActionReview, m, string(models.VerdictRetire), m.Capability, details); err != nil {
					return fmt.Errorf("%w: %v", models.ErrPersistence, err)
				}
			}
			return nil
		},
	}
}
