// Package controlplane provides the HTTP API and service layer for gapforge.
package controlplane

import (
	"context"
	"fmt"

	"github.com/fentz26/gapforge/internal/audit"
	"github.com/fentz26/gapforge/internal/budget"
	"github.com/fentz26/gapforge/internal/gaps"
	"github.com/fentz26/gapforge/internal/models"
	"github.com/fentz26/gapforge/internal/performance"
	"github.com/fentz26/gapforge/internal/store"
	"go.uber.org/zap"
)

// Service provides the control plane business logic.
type Service struct {
	store    *store.Store
	pdr      *audit.PDRWriter
	detector *gaps.Detector
	budget   *budget.Ledger
	perf     *performance.Ledger
	logger   *zap.Logger
}

// NewService creates a new control plane service.
func NewService(s *store.Store, pdr *audit.PDRWriter, det *gaps.Detector, b *budget.Ledger, p *performance.Ledger, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    s,
		pdr:      pdr,
		detector: det,
		budget:   b,
		perf:     p,
		logger:   logger,
	}
}

// Ping checks the database.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// --- Gap Operations ---

// Gaps returns every gap, or the top n actionable ones when n > 0.
func (s *Service) Gaps(freq map[string]int, n, minFrequency int) []models.CapabilityGap {
	if n > 0 {
		return s.detector.TopGaps(freq, n, minFrequency)
	}
	return s.detector.Detect(freq)
}

// --- Budget Operations ---

// Budgets returns the status of every tracked period.
func (s *Service) Budgets(ctx context.Context) ([]models.BudgetStatus, error) {
	return s.budget.Status(ctx)
}

// SetBudget replaces the budget for period and records the change.
func (s *Service) SetBudget(ctx context.Context, period models.Period, limit float64) (models.Budget, error) {
	b, err := s.budget.SetBudget(ctx, period, limit)
	if err != nil {
		return b, err
	}

	inputs := map[string]interface{}{"period": period, "limit": limit}
	details := fmt.Sprintf("%s limit set to $%.2f", period, limit)
	if _, err := s.pdr.Record(ctx, audit.ActionBudget, inputs, "set", "", details); err != nil {
		s.logger.Warn("failed to record budget change", zap.Error(err))
	}
	return b, nil
}

// Forecast returns the projected monthly spend.
func (s *Service) Forecast(ctx context.Context) (float64, error) {
	return s.budget.ForecastMonthly(ctx)
}

// Optimizations returns advisory cost hints.
func (s *Service) Optimizations(ctx context.Context) ([]models.Optimization, error) {
	return s.budget.Optimizations(ctx)
}

// Alerts returns up to n recent alerts.
func (s *Service) Alerts(ctx context.Context, n int) ([]models.Alert, error) {
	return s.budget.RecentAlerts(ctx, n)
}

// --- Tool Operations ---

// RecordUsage appends a usage record.
func (s *Service) RecordUsage(ctx context.Context, r models.UsageRecord) (models.UsageRecord, error) {
	return s.perf.RecordUsage(ctx, r)
}

// Metrics returns metrics for every tool and capability pair.
func (s *Service) Metrics(ctx context.Context) ([]models.PerformanceMetrics, error) {
	return s.perf.AllMetrics(ctx)
}

// BestTool returns the best ranked tool for capability.
func (s *Service) BestTool(ctx context.Context, capability string) (string, error) {
	if capability == "" {
		return "", fmt.Errorf("%w: capability is required", ErrBadRequest)
	}
	tool, ok, err := s.perf.BestTool(ctx, capability)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: no tool with enough uses for %q", ErrNotFound, capability)
	}
	return tool, nil
}

// ToolsToRetire returns tools whose verdict is retire.
func (s *Service) ToolsToRetire(ctx context.Context, minUses int) ([]models.PerformanceMetrics, error) {
	return s.perf.ToolsToRetire(ctx, minUses)
}

// --- Audit Operations ---

// Decisions returns recent audit records, optionally for one capability.
func (s *Service) Decisions(ctx context.Context, capability string, limit int) ([]models.PDREntry, error) {
	entries, err := s.store.ListPDR(ctx, capability, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	return entries, nil
}
