// Package approval decides whether a recommendation can proceed on its own
// or must be confirmed by a human.
package approval

import (
	"fmt"

	"github.com/fentz26/gapforge/internal/config"
	"github.com/fentz26/gapforge/internal/models"
)

// Rule is one compiled bypass or require condition.
type Rule interface {
	Name() string
	Matches(rec *models.Recommendation) bool
}

// FreeLibrary matches a library recommendation whose chosen option is free.
type FreeLibrary struct{}

func (FreeLibrary) Name() string { return config.RuleFreeLibrary }

func (FreeLibrary) Matches(rec *models.Recommendation) bool {
	if rec.Action != models.ActionLibrary {
		return false
	}
	opt, ok := rec.Chosen()
	return ok && opt.MonthlyCost == 0
}

// InternalCode matches builds whose normalized complexity is within MaxComplexity.
type InternalCode struct {
	MaxComplexity float64
}

func (InternalCode) Name() string { return config.RuleInternalCode }

func (r InternalCode) Matches(rec *models.Recommendation) bool {
	return rec.Action == models.ActionBuild &&
		float64(rec.Build.Complexity)/10 <= r.MaxComplexity
}

// LowCost matches builds that are either quick or cheap.
type LowCost struct {
	MaxHours     float64
	MaxTotalCost float64
}

func (LowCost) Name() string { return config.RuleLowCost }

func (r LowCost) Matches(rec *models.Recommendation) bool {
	if rec.Action != models.ActionBuild {
		return false
	}
	return rec.Build.Hours <= r.MaxHours || rec.TotalCost <= r.MaxTotalCost
}

// Subscription matches when anything offered carries a monthly fee.
type Subscription struct{}

func (Subscription) Name() string { return config.RuleSubscription }

func (Subscription) Matches(rec *models.Recommendation) bool {
	for _, opt := range rec.Offered() {
		if opt.MonthlyCost > 0 {
			return true
		}
	}
	return false
}

// ExternalAPI matches API recommendations.
type ExternalAPI struct{}

func (ExternalAPI) Name() string { return config.RuleExternalAPI }

func (ExternalAPI) Matches(rec *models.Recommendation) bool {
	return rec.Action == models.ActionAPI
}

// ComplexBuild matches builds of at least MinHours.
type ComplexBuild struct {
	MinHours float64
}

func (ComplexBuild) Name() string { return config.RuleComplexBuild }

func (r ComplexBuild) Matches(rec *models.Recommendation) bool {
	return rec.Action == models.ActionBuild && rec.Build.Hours >= r.MinHours
}

// HighCost matches when anything offered costs at least MonthlyCost per month.
type HighCost struct {
	MonthlyCost float64
}

func (HighCost) Name() string { return config.RuleHighCost }

func (r HighCost) Matches(rec *models.Recommendation) bool {
	for _, opt := range rec.Offered() {
		if opt.MonthlyCost >= r.MonthlyCost {
			return true
		}
	}
	return false
}

// Compile turns configured rules into Rules, keeping their order.
func Compile(rules []config.RuleConfig) ([]Rule, error) {
	out := make([]Rule, 0, len(rules))
	for i, rc := range rules {
		switch rc.Type {
		case config.RuleFreeLibrary:
			out = append(out, FreeLibrary{})
		case config.RuleInternalCode:
			out = append(out, InternalCode{MaxComplexity: rc.MaxComplexityScore})
		case config.RuleLowCost:
			out = append(out, LowCost{MaxHours: rc.MaxHours, MaxTotalCost: rc.MaxTotalCost})
		case config.RuleSubscription:
			out = append(out, Subscription{})
		case config.RuleExternalAPI:
			out = append(out, ExternalAPI{})
		case config.RuleComplexBuild:
			out = append(out, ComplexBuild{MinHours: rc.MinHours})
		case config.RuleHighCost:
			out = append(out, HighCost{MonthlyCost: rc.MonthlyCost})
		default:
			return nil, fmt.Errorf("%w: rule %d has unknown type %q", models.ErrConfiguration, i, rc.Type)
		}
	}
	return out, nil
}
