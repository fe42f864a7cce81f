package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/fortify/timeout"
	"github.com/fentz26/gapforge/internal/audit"
	"github.com/fentz26/gapforge/internal/config"
	"github.com/fentz26/gapforge/internal/models"
	"go.uber.org/zap"
)

// ruleDefault names the fail-safe outcome when no rule matches.
const ruleDefault = "default"

// Evaluation explains a NeedsApproval result.
type Evaluation struct {
	NeedsApproval bool   `json:"needs_approval"`
	Bypassed      bool   `json:"bypassed"`
	Rule          string `json:"rule"`
}

// Recorder writes audit records for decisions.
type Recorder interface {
	Record(ctx context.Context, action string, inputs interface{}, outcome, capability, details string) (*models.PDREntry, error)
}

// Gate evaluates bypass and require rules and escalates to a Channel.
type Gate struct {
	bypass   []Rule
	require  []Rule
	channel  Channel
	recorder Recorder
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithRecorder audits every decision.
func WithRecorder(r Recorder) Option {
	return func(g *Gate) { g.recorder = r }
}

// WithTimeout bounds human approval. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(g *Gate) { g.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// NewGate compiles cfg into a gate. A nil channel rejects every escalation.
func NewGate(cfg config.ApprovalConfig, ch Channel, opts ...Option) (*Gate, error) {
	bypass, err := Compile(cfg.Bypass)
	if err != nil {
		return nil, fmt.Errorf("bypass rules: %w", err)
	}
	require, err := Compile(cfg.Require)
	if err != nil {
		return nil, fmt.Errorf("require rules: %w", err)
	}

	g := &Gate{
		bypass:  bypass,
		require: require,
		channel: ch,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Evaluate runs bypass rules first, then require rules. With no match
// approval is required.
func (g *Gate) Evaluate(rec *models.Recommendation) Evaluation {
	for _, r := range g.bypass {
		if r.Matches(rec) {
			return Evaluation{NeedsApproval: false, Bypassed: true, Rule: r.Name()}
		}
	}
	for _, r := range g.require {
		if r.Matches(rec) {
			return Evaluation{NeedsApproval: true, Rule: r.Name()}
		}
	}
	return Evaluation{NeedsApproval: true, Rule: ruleDefault}
}

// NeedsApproval reports whether rec must go to a human.
func (g *Gate) NeedsApproval(rec *models.Recommendation) bool {
	return g.Evaluate(rec).NeedsApproval
}

// ApproveWithBypass auto-approves rec as recommended.
func (g *Gate) ApproveWithBypass(rec *models.Recommendation) models.ApprovalDecision {
	return models.ApprovalDecision{
		Approved:     true,
		Selected:     topSelection(rec),
		AutoApproved: true,
		Notes:        "auto-approved by bypass rule",
		Approver:     "policy",
		DecidedAt:    g.now().UTC(),
	}
}

// RequestApproval asks the channel. Anything other than a valid choice,
// including a timeout or channel failure, is a rejection. The error is
// non-nil only when ctx itself is done.
func (g *Gate) RequestApproval(ctx context.Context, rec *models.Recommendation) (models.ApprovalDecision, error) {
	decision := models.ApprovalDecision{Approver: "human"}
	if g.channel == nil {
		decision.Notes = "no approval channel configured"
		decision.DecidedAt = g.now().UTC()
		return decision, nil
	}

	choice, err := g.present(ctx, rec)
	decision.DecidedAt = g.now().UTC()
	if err != nil {
		if ctx.Err() != nil {
			decision.Notes = "approval canceled"
			return decision, ctx.Err()
		}
		g.logger.Warn("approval channel failed", zap.String("capability", rec.Capability), zap.Error(err))
		decision.Notes = fmt.Sprintf("approval failed: %v", err)
		return decision, nil
	}

	switch choice.Kind {
	case ChoiceAccept:
		decision.Approved = true
		decision.Selected = topSelection(rec)
	case ChoiceBuild:
		decision.Approved = true
		decision.Selected = models.SelectionBuild
	case ChoiceSelect:
		if choice.Index < 1 || choice.Index > len(rec.BuyOptions) {
			decision.Notes = fmt.Sprintf("option %d does not exist", choice.Index)
			return decision, nil
		}
		decision.Approved = true
		decision.Selected = rec.BuyOptions[choice.Index-1].Source
	default:
		decision.Notes = "rejected"
	}
	return decision, nil
}

func (g *Gate) present(ctx context.Context, rec *models.Recommendation) (Choice, error) {
	if g.timeout <= 0 {
		return g.channel.Present(ctx, rec)
	}
	t := timeout.New[Choice](timeout.Config{DefaultTimeout: g.timeout})
	return t.Execute(ctx, g.timeout, func(ctx context.Context) (Choice, error) {
		return g.channel.Present(ctx, rec)
	})
}

// Decide evaluates rec and either bypasses or escalates, then audits the result.
func (g *Gate) Decide(ctx context.Context, rec *models.Recommendation) (models.ApprovalDecision, Evaluation, error) {
	eval := g.Evaluate(rec)

	var decision models.ApprovalDecision
	if eval.NeedsApproval {
		var err error
		decision, err = g.RequestApproval(ctx, rec)
		if err != nil {
			return decision, eval, err
		}
	} else {
		decision = g.ApproveWithBypass(rec)
	}

	g.logger.Info("approval decided",
		zap.String("capability", rec.Capability),
		zap.String("rule", eval.Rule),
		zap.Bool("approved", decision.Approved),
		zap.Bool("auto", decision.AutoApproved),
		zap.String("selected", decision.Selected),
	)

	if g.recorder != nil {
		outcome := "rejected"
		if decision.Approved {
			outcome = "approved"
		}
		details := fmt.Sprintf("rule=%s selected=%s notes=%s", eval.Rule, decision.Selected, decision.Notes)
		if _, err := g.recorder.Record(ctx, audit.ActionApproval, rec, outcome, rec.Capability, details); err != nil {
			return decision, eval, fmt.Errorf("%w: %v", models.ErrPersistence, err)
		}
	}
	return decision, eval, nil
}

// topSelection is what accepting the recommendation as-is selects.
func topSelection(rec *models.Recommendation) string {
	if opt, ok := rec.Chosen(); ok && rec.Action.IsBuy() {
		return opt.Source
	}
	return models.SelectionBuild
}
