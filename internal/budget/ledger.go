// Package budget enforces rolling spend caps over daily, weekly and monthly windows.
package budget

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/fentz26/gapforge/internal/models"
	"go.uber.org/zap"
)

// Alert thresholds in percent utilization.
const (
	warnUtilization     = 80
	criticalUtilization = 95
)

// Store is the persistence the ledger needs.
type Store interface {
	Budgets(ctx context.Context) ([]models.Budget, error)
	SaveBudget(ctx context.Context, b models.Budget) error
	CommitCost(ctx context.Context, txn models.CostTransaction, budgets []models.Budget) (models.CostTransaction, error)
	TransactionsSince(ctx context.Context, since time.Time) ([]models.CostTransaction, error)
	AppendAlert(ctx context.Context, a models.Alert) (models.Alert, error)
	RecentAlerts(ctx context.Context, limit int) ([]models.Alert, error)
}

// Charge is a cost to record against every tracked period.
type Charge struct {
	Amount     float64
	Category   string
	Tool       string
	Capability string
	Kind       string
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Ledger tracks spend per period. Writers are serialized.
type Ledger struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
	mu     sync.Mutex
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

// SetBudget creates or replaces the budget for period with a fresh window starting now.
func (l *Ledger) SetBudget(ctx context.Context, period models.Period, limit float64) (models.Budget, error) {
	if !period.Valid() {
		return models.Budget{}, fmt.Errorf("%w: unknown budget period %q", models.ErrConfiguration, period)
	}
	if limit < 0 || math.IsNaN(limit) || math.IsInf(limit, 0) {
		return models.Budget{}, fmt.Errorf("%w: budget limit must be a non-negative number", models.ErrConfiguration)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b := freshWindow(period, money(limit), l.now())
	if err := l.store.SaveBudget(ctx, b); err != nil {
		return models.Budget{}, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	l.logger.Info("budget set", zap.String("period", string(period)), zap.Float64("limit", b.Limit))
	return b, nil
}

// RecordCost commits c against every tracked period, or rejects it whole.
// A rejection returns false with a nil error and leaves a critical alert.
// Negative amounts are refunds; period spend never drops below zero.
func (l *Ledger) RecordCost(ctx context.Context, c Charge) (bool, error) {
	if math.IsNaN(c.Amount) || math.IsInf(c.Amount, 0) {
		return false, fmt.Errorf("%w: cost amount must be finite", models.ErrConfiguration)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	budgets, err := l.rollover(ctx, now)
	if err != nil {
		return false, err
	}

	amount := money(c.Amount)
	updated := make([]models.Budget, 0, len(budgets))
	for _, b := range budgets {
		next := money(b.Spend + amount)
		if next > b.Limit && amount > 0 {
			return false, l.reject(ctx, b, amount, now)
		}
		b.Spend = math.Max(next, 0)
		updated = append(updated, b)
	}

	txn, err := l.store.CommitCost(ctx, models.CostTransaction{
		Amount:     amount,
		Category:   c.Category,
		Tool:       c.Tool,
		Capability: c.Capability,
		Kind:       c.Kind,
		Timestamp:  now,
	}, updated)
	if err != nil {
		return false, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	l.logger.Debug("cost recorded",
		zap.Int64("id", txn.ID),
		zap.Float64("amount", amount),
		zap.String("category", c.Category),
		zap.String("tool", c.Tool),
	)

	for _, b := range updated {
		if err := l.checkThresholds(ctx, b, now); err != nil {
			return true, err
		}
	}
	return true, nil
}

func (l *Ledger) reject(ctx context.Context, b models.Budget, amount float64, now time.Time) error {
	alert := models.Alert{
		Severity: models.SeverityCritical,
		Message: fmt.Sprintf("Transaction of $%.2f rejected: %s budget would reach $%.2f of $%.2f limit",
			amount, b.Period, b.Spend+amount, b.Limit),
		Period:    b.Period,
		Spend:     b.Spend,
		Limit:     b.Limit,
		Timestamp: now,
	}
	l.logger.Warn("cost rejected",
		zap.String("period", string(b.Period)),
		zap.Float64("amount", amount),
		zap.Float64("spend", b.Spend),
		zap.Float64("limit", b.Limit),
	)
	if _, err := l.store.AppendAlert(ctx, alert); err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	return nil
}

func (l *Ledger) checkThresholds(ctx context.Context, b models.Budget, now time.Time) error {
	util := utilization(b)

	var severity models.Severity
	switch {
	case util >= criticalUtilization:
		severity = models.SeverityCritical
	case util >= warnUtilization:
		severity = models.SeverityWarning
	default:
		return nil
	}

	alert := models.Alert{
		Severity:  severity,
		Message:   fmt.Sprintf("%s budget at %.1f%% ($%.2f of $%.2f)", b.Period, util, b.Spend, b.Limit),
		Period:    b.Period,
		Spend:     b.Spend,
		Limit:     b.Limit,
		Timestamp: now,
	}
	if _, err := l.store.AppendAlert(ctx, alert); err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	return nil
}

// rollover replaces elapsed windows with fresh zero-spend ones and returns
// the live budgets in period order.
func (l *Ledger) rollover(ctx context.Context, now time.Time) ([]models.Budget, error) {
	budgets, err := l.store.Budgets(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}

	for i, b := range budgets {
		if now.Before(b.WindowEnd) {
			continue
		}
		fresh := freshWindow(b.Period, b.Limit, now)
		if err := l.store.SaveBudget(ctx, fresh); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
		}
		l.logger.Info("budget window rolled over",
			zap.String("period", string(b.Period)),
			zap.Float64("previous_spend", b.Spend),
		)
		budgets[i] = fresh
	}

	sort.SliceStable(budgets, func(i, j int) bool {
		return budgets[i].Period.Days() < budgets[j].Period.Days()
	})
	return budgets, nil
}

// Status returns every tracked budget after lazily rolling over elapsed windows.
func (l *Ledger) Status(ctx context.Context) ([]models.BudgetStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	budgets, err := l.rollover(ctx, now)
	if err != nil {
		return nil, err
	}

	statuses := make([]models.BudgetStatus, 0, len(budgets))
	for _, b := range budgets {
		days := int(b.WindowEnd.Sub(now).Hours() / 24)
		if days < 0 {
			days = 0
		}
		statuses = append(statuses, models.BudgetStatus{
			Period:        b.Period,
			Limit:         b.Limit,
			Spend:         b.Spend,
			Remaining:     math.Max(money(b.Limit-b.Spend), 0),
			Utilization:   utilization(b),
			WindowEnd:     b.WindowEnd,
			DaysRemaining: days,
		})
	}
	return statuses, nil
}

// CanAfford reports whether amount fits the remaining allowance of every period.
// With no budgets tracked everything is affordable.
func (l *Ledger) CanAfford(ctx context.Context, amount float64) (bool, error) {
	statuses, err := l.Status(ctx)
	if err != nil {
		return false, err
	}
	for _, s := range statuses {
		if s.Remaining < amount {
			return false, nil
		}
	}
	return true, nil
}

// ForecastMonthly extrapolates the trailing seven days of spend to 30 days.
func (l *Ledger) ForecastMonthly(ctx context.Context) (float64, error) {
	txns, err := l.store.TransactionsSince(ctx, l.now().AddDate(0, 0, -7))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	if len(txns) == 0 {
		return 0, nil
	}

	var total float64
	for _, t := range txns {
		total += t.Amount
	}
	return money(total * 30 / 7), nil
}

// SpendingByCategory sums spend per category over the last days.
func (l *Ledger) SpendingByCategory(ctx context.Context, days int) (map[string]float64, error) {
	txns, err := l.store.TransactionsSince(ctx, l.now().AddDate(0, 0, -days))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}

	out := make(map[string]float64)
	for _, t := range txns {
		out[t.Category] = money(out[t.Category] + t.Amount)
	}
	return out, nil
}

// Optimizations returns advisory cost-saving hints from the last 30 days,
// highest priority first. Nothing is enforced.
func (l *Ledger) Optimizations(ctx context.Context) ([]models.Optimization, error) {
	byCategory, err := l.SpendingByCategory(ctx, 30)
	if err != nil {
		return nil, err
	}

	var total float64
	for _, v := range byCategory {
		total += v
	}
	if total <= 0 {
		return nil, nil
	}

	var opts []models.Optimization
	if api := byCategory[models.CategoryAPI]; api/total > 0.5 {
		opts = append(opts, models.Optimization{
			Kind:             "caching",
			Description:      fmt.Sprintf("API calls are %.0f%% of spend; cache responses to avoid repeat calls", api/total*100),
			EstimatedSavings: money(api * 0.3),
			Effort:           "medium",
			Priority:         0.8,
		})
	}
	if gen := byCategory[models.CategoryToolGeneration]; gen/total > 0.3 {
		opts = append(opts, models.Optimization{
			Kind:             "cheaper_models",
			Description:      fmt.Sprintf("Tool generation is %.0f%% of spend; use a cheaper model for routine synthesis", gen/total*100),
			EstimatedSavings: money(gen * 0.6),
			Effort:           "low",
			Priority:         0.9,
		})
	}
	opts = append(opts, models.Optimization{
		Kind:             "retire_unused",
		Description:      "Retire underutilized paid tools",
		EstimatedSavings: money(total * 0.15),
		Effort:           "medium",
		Priority:         0.7,
	})

	sort.SliceStable(opts, func(i, j int) bool {
		return opts[i].Priority > opts[j].Priority
	})
	return opts, nil
}

// RecentAlerts returns up to n alerts, newest first.
func (l *Ledger) RecentAlerts(ctx context.Context, n int) ([]models.Alert, error) {
	alerts, err := l.store.RecentAlerts(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	return alerts, nil
}

// Summary is the cost overview of the ledger.
type Summary struct {
	Budgets         []models.BudgetStatus `json:"budgets"`
	ByCategory      map[string]float64    `json:"by_category"`
	ForecastMonthly float64               `json:"forecast_monthly"`
	Optimizations   []models.Optimization `json:"optimizations"`
	Alerts          []models.Alert        `json:"alerts"`
}

// Summary collects status, 30-day category spend, the forecast, hints and the last ten alerts.
func (l *Ledger) Summary(ctx context.Context) (*Summary, error) {
	var sum Summary
	var err error
	if sum.Budgets, err = l.Status(ctx); err != nil {
		return nil, err
	}
	if sum.ByCategory, err = l.SpendingByCategory(ctx, 30); err != nil {
		return nil, err
	}
	if sum.ForecastMonthly, err = l.ForecastMonthly(ctx); err != nil {
		return nil, err
	}
	if sum.Optimizations, err = l.Optimizations(ctx); err != nil {
		return nil, err
	}
	if sum.Alerts, err = l.RecentAlerts(ctx, 10); err != nil {
		return nil, err
	}
	return &sum, nil
}

func freshWindow(period models.Period, limit float64, now time.Time) models.Budget {
	now = now.UTC()
	return models.Budget{
		Period:      period,
		Limit:       limit,
		WindowStart: now,
		WindowEnd:   now.AddDate(0, 0, period.Days()),
	}
}

func utilization(b models.Budget) float64 {
	if b.Limit <= 0 {
		return 0
	}
	return b.Spend / b.Limit * 100
}

// money rounds to micro-units so repeated float sums compare exactly against limits.
func money(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
