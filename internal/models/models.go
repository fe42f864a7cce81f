// Package models defines the core domain types for gapforge.
package models

import "time"

// GapStatus describes how well a capability is covered by existing tooling.
type GapStatus string

const (
	GapStatusUnsupported    GapStatus = "unsupported"
	GapStatusPartial        GapStatus = "partially_supported"
	GapStatusFull           GapStatus = "fully_supported"
	GapStatusNotAutomatable GapStatus = "not_automatable"
)

// CapabilityGap is a capability the agent lacks adequate tooling for.
type CapabilityGap struct {
	Name                string    `json:"name"`
	Status              GapStatus `json:"status"`
	ExistingTools       []string  `json:"existing_tools"`
	Missing             []string  `json:"missing"`
	Frequency           int       `json:"frequency"`
	AutomationPotential float64   `json:"automation_potential"`
	Priority            float64   `json:"priority"`
}

// Action is the acquisition strategy chosen for a capability.
type Action string

const (
	ActionBuild   Action = "build"
	ActionLibrary Action = "library"
	ActionAPI     Action = "api"
	ActionHybrid  Action = "hybrid"
)

// IsBuy reports whether the action acquires something external.
func (a Action) IsBuy() bool {
	return a == ActionLibrary || a == ActionAPI
}

// BuildOption estimates the effort of building a capability internally.
type BuildOption struct {
	Complexity      int      `json:"complexity"`
	Hours           float64  `json:"hours"`
	LOC             int      `json:"loc"`
	Dependencies    []string `json:"dependencies"`
	TestingEffort   int      `json:"testing_effort"`
	Maintenance     int      `json:"maintenance"`
	TwelveMonthCost float64  `json:"twelve_month_cost"`
}

// BuyOption describes an external library or API that covers a capability.
type BuyOption struct {
	Source          string  `json:"source"`
	Kind            Action  `json:"kind"` // library or api
	MonthlyCost     float64 `json:"monthly_cost"`
	SetupHours      float64 `json:"setup_hours"`
	Maturity        float64 `json:"maturity"` // 0-10
	LearningCurve   int     `json:"learning_curve"`
	LockInRisk      int     `json:"lock_in_risk"`
	TwelveMonthCost float64 `json:"twelve_month_cost"`
}

// Recommendation is the analyzer's verdict for one capability.
// Selected indexes BuyOptions for buy actions and is -1 for build.
type Recommendation struct {
	Capability string      `json:"capability"`
	Action     Action      `json:"action"`
	Build      BuildOption `json:"build"`
	BuyOptions []BuyOption `json:"buy_options"`
	Selected   int         `json:"selected"`
	Missing    []string    `json:"missing"`
	Rationale  string      `json:"rationale"`
	TotalCost  float64     `json:"total_cost"`
	Confidence float64     `json:"confidence"`
}

// Chosen returns the selected buy option, if any.
func (r *Recommendation) Chosen() (BuyOption, bool) {
	if r.Selected < 0 || r.Selected >= len(r.BuyOptions) {
		return BuyOption{}, false
	}
	return r.BuyOptions[r.Selected], true
}

// Offered returns the buy options the recommendation would pay for:
// the chosen one for buy actions, every considered one otherwise.
func (r *Recommendation) Offered() []BuyOption {
	if r.Action.IsBuy() {
		if opt, ok := r.Chosen(); ok {
			return []BuyOption{opt}
		}
		return nil
	}
	return r.BuyOptions
}

// SelectionBuild is the ApprovalDecision selection for internal builds.
const SelectionBuild = "build"

// ApprovalDecision records how a recommendation was approved or rejected.
type ApprovalDecision struct {
	Approved     bool      `json:"approved"`
	Selected     string    `json:"selected,omitempty"`
	AutoApproved bool      `json:"auto_approved"`
	Notes        string    `json:"notes,omitempty"`
	Approver     string    `json:"approver,omitempty"`
	DecidedAt    time.Time `json:"decided_at"`
}

// Period is a budget window length.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// Periods lists every budget period in evaluation order.
var Periods = []Period{PeriodDaily, PeriodWeekly, PeriodMonthly}

// Days returns the window length in days. Monthly is a fixed 30 days.
func (p Period) Days() int {
	switch p {
	case PeriodDaily:
		return 1
	case PeriodWeekly:
		return 7
	case PeriodMonthly:
		return 30
	}
	return 0
}

// Valid reports whether p is a known period.
func (p Period) Valid() bool {
	return p.Days() > 0
}

// Budget is the live spend cap for one period.
type Budget struct {
	Period      Period    `json:"period"`
	Limit       float64   `json:"limit"`
	Spend       float64   `json:"spend"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

// BudgetStatus is a point-in-time view of a budget.
type BudgetStatus struct {
	Period        Period    `json:"period"`
	Limit         float64   `json:"limit"`
	Spend         float64   `json:"spend"`
	Remaining     float64   `json:"remaining"`
	Utilization   float64   `json:"utilization"` // percent
	WindowEnd     time.Time `json:"window_end"`
	DaysRemaining int       `json:"days_remaining"`
}

// Cost categories.
const (
	CategoryAPI            = "api"
	CategoryToolGeneration = "tool_generation"
	CategoryLibrary        = "library"
	CategoryCompute        = "compute"
)

// CostTransaction is an append-only spend record.
type CostTransaction struct {
	ID         int64     `json:"id"`
	Amount     float64   `json:"amount"`
	Category   string    `json:"category"`
	Tool       string    `json:"tool,omitempty"`
	Capability string    `json:"capability,omitempty"`
	Kind       string    `json:"kind,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Severity grades an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is raised by the budget ledger on rejections and threshold crossings.
type Alert struct {
	ID        int64     `json:"id"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Period    Period    `json:"period"`
	Spend     float64   `json:"spend"`
	Limit     float64   `json:"limit"`
	Timestamp time.Time `json:"timestamp"`
}

// Optimization is an advisory cost-saving hint.
type Optimization struct {
	Kind             string  `json:"kind"`
	Description      string  `json:"description"`
	EstimatedSavings float64 `json:"estimated_savings"`
	Effort           string  `json:"effort"`
	Priority         float64 `json:"priority"`
}

// UsageRecord is one observed use of an acquired tool.
type UsageRecord struct {
	ID         int64     `json:"id"`
	Tool       string    `json:"tool"`
	Capability string    `json:"capability"`
	Success    bool      `json:"success"`
	LatencyMS  float64   `json:"latency_ms"`
	Cost       float64   `json:"cost"`
	Score      float64   `json:"score"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Verdict is the performance ledger's recommendation for a tool.
type Verdict string

const (
	VerdictKeep    Verdict = "keep"
	VerdictMonitor Verdict = "monitor"
	VerdictRetire  Verdict = "retire"
)

// PerformanceMetrics are derived from the usage log and never stored.
type PerformanceMetrics struct {
	Tool           string    `json:"tool"`
	Capability     string    `json:"capability"`
	UsageCount     int       `json:"usage_count"`
	SuccessRate    float64   `json:"success_rate"` // percent
	AvgLatencyMS   float64   `json:"avg_latency_ms"`
	TotalCost      float64   `json:"total_cost"`
	AvgScore       float64   `json:"avg_score"`
	LastUsed       time.Time `json:"last_used"`
	Recommendation Verdict   `json:"recommendation"`
}

// Tool is an acquired tool known to the registry.
type Tool struct {
	Name       string    `json:"name" yaml:"name"`
	Capability string    `json:"capability" yaml:"capability"`
	Kind       Action    `json:"kind" yaml:"kind"`
	Source     string    `json:"source,omitempty" yaml:"source,omitempty"`
	Path       string    `json:"path,omitempty" yaml:"path,omitempty"`
	AcquiredAt time.Time `json:"acquired_at" yaml:"acquired_at"`
}

// PDREntry represents a Process Decision Record for audit.
type PDREntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	InputsHash string    `json:"inputs_hash"`
	Outcome    string    `json:"outcome"`
	Capability string    `json:"capability,omitempty"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
