// Package acquisition sequences gap detection, build-vs-buy analysis,
// budgeting, approval and tool synthesis into one acquisition cycle.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/timeout"
	"github.com/fentz26/gapforge/internal/approval"
	"github.com/fentz26/gapforge/internal/audit"
	"github.com/fentz26/gapforge/internal/budget"
	"github.com/fentz26/gapforge/internal/config"
	"github.com/fentz26/gapforge/internal/connectors"
	"github.com/fentz26/gapforge/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Detector finds the gap for a capability.
type Detector interface {
	Lookup(freq map[string]int, name string) (models.CapabilityGap, error)
	TopGaps(freq map[string]int, n, minFrequency int) []models.CapabilityGap
}

// Analyzer recommends how to acquire a capability.
type Analyzer interface {
	Analyze(capability string, missing []string, potential float64) models.Recommendation
}

// Budget is the spend ledger.
type Budget interface {
	CanAfford(ctx context.Context, amount float64) (bool, error)
	RecordCost(ctx context.Context, c budget.Charge) (bool, error)
	Status(ctx context.Context) ([]models.BudgetStatus, error)
	ForecastMonthly(ctx context.Context) (float64, error)
}

// Approver decides whether a recommendation may proceed.
type Approver interface {
	Decide(ctx context.Context, rec *models.Recommendation) (models.ApprovalDecision, approval.Evaluation, error)
}

// Performance is the tool usage ledger.
type Performance interface {
	RecordUsage(ctx context.Context, r models.UsageRecord) (models.UsageRecord, error)
	BestTool(ctx context.Context, capability string) (string, bool, error)
	TopPerformers(ctx context.Context, n int) ([]models.PerformanceMetrics, error)
	ToolsToRetire(ctx context.Context, minUses int) ([]models.PerformanceMetrics, error)
}

// Registry records acquired tools.
type Registry interface {
	Register(ctx context.Context, t models.Tool) error
}

// Recorder writes audit records.
type Recorder interface {
	Record(ctx context.Context, action string, inputs interface{}, outcome, capability, details string) (*models.PDREntry, error)
}

// Deps are the collaborators of an Orchestrator. Verifier and Recorder are optional.
type Deps struct {
	Detector    Detector
	Analyzer    Analyzer
	Budget      Budget
	Approver    Approver
	Performance Performance
	Registry    Registry
	Synthesizer connectors.Synthesizer
	Discoverers map[connectors.CandidateKind]connectors.Discoverer
	Verifier    connectors.Verifier
	Recorder    Recorder
}

// Request asks for one capability to be acquired.
type Request struct {
	Capability   string
	Frequencies  map[string]int
	PreferSource models.Action
	Description  string
}

// Outcome reports one acquisition cycle.
type Outcome struct {
	RunID          string                   `json:"run_id"`
	Capability     string                   `json:"capability"`
	State          State                    `json:"state"`
	Trace          []State                  `json:"trace"`
	Recommendation *models.Recommendation   `json:"recommendation,omitempty"`
	Evaluation     *approval.Evaluation     `json:"evaluation,omitempty"`
	Decision       *models.ApprovalDecision `json:"decision,omitempty"`
	Tool           *models.Tool             `json:"tool,omitempty"`
	ExistingBest   string                   `json:"existing_best,omitempty"`
	Warnings       []string                 `json:"warnings,omitempty"`
	Err            error                    `json:"-"`
}

// Succeeded reports whether the cycle reached done.
func (o *Outcome) Succeeded() bool { return o.State == StateDone }

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator runs acquisition cycles one at a time.
type Orchestrator struct {
	deps     Deps
	cfg      config.AcquisitionConfig
	toolsDir string
	maxFound int
	logger   *zap.Logger
	now      func() time.Time
}

// New creates an orchestrator writing tools under toolsDir.
func New(deps Deps, cfg config.AcquisitionConfig, toolsDir string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		deps:     deps,
		cfg:      cfg,
		toolsDir: toolsDir,
		maxFound: 5,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// cycle is the working state of one Acquire call.
type cycle struct {
	req     Request
	gap     models.CapabilityGap
	out     *Outcome
	life    *lifecycle
	sources []models.Action
	code    string
	source  string
	kind    models.Action
	latency time.Duration
}

// Acquire runs one cycle. Budget, approval and acquisition failures are
// reported in the Outcome with a nil error. The error is non-nil for
// unknown capabilities, persistence failures and cancellation.
func (o *Orchestrator) Acquire(ctx context.Context, req Request) (*Outcome, error) {
	runID := uuid.NewString()
	life, err := newLifecycle(runID)
	if err != nil {
		return nil, err
	}
	c := &cycle{
		req:  req,
		life: life,
		out:  &Outcome{RunID: runID, Capability: req.Capability},
	}
	log := o.logger.With(zap.String("run_id", runID), zap.String("capability", req.Capability))

	steps := map[State]func(context.Context, *cycle) (bool, error){
		StateDetect:      o.detect,
		StateAnalyze:     o.analyze,
		StateBudgetCheck: o.budgetCheck,
		StateApprove:     o.approve,
		StateAcquire:     o.acquire,
		StateRecordCost:  o.recordCost,
		StateRecordUsage: o.recordUsage,
	}

	for {
		state := life.current()
		step, ok := steps[state]
		if !ok {
			break
		}
		log.Debug("acquisition step", zap.String("state", string(state)))

		advance, err := step(ctx, c)
		if err != nil {
			c.out.State, c.out.Trace, c.out.Err = life.current(), life.history(), err
			log.Error("acquisition aborted", zap.String("state", string(state)), zap.Error(err))
			return c.out, err
		}
		if advance {
			err = life.next()
		} else {
			err = life.fail()
		}
		if err != nil {
			return nil, err
		}
	}

	c.out.State = life.current()
	c.out.Trace = life.history()
	if c.out.Succeeded() {
		log.Info("capability acquired", zap.String("tool", c.out.Tool.Name), zap.String("source", c.source))
	} else {
		log.Warn("acquisition failed", zap.Error(c.out.Err))
	}
	o.audit(ctx, c)
	return c.out, nil
}

func (o *Orchestrator) detect(ctx context.Context, c *cycle) (bool, error) {
	gap, err := o.deps.Detector.Lookup(c.req.Frequencies, c.req.Capability)
	if err != nil {
		return false, err
	}
	c.gap = gap
	c.out.Capability = gap.Name

	// Advisory only: a known good tool does not stop the acquisition.
	best, ok, err := o.deps.Performance.BestTool(ctx, gap.Name)
	switch {
	case err != nil:
		o.logger.Warn("best tool lookup failed", zap.String("capability", gap.Name), zap.Error(err))
	case ok:
		c.out.ExistingBest = best
		o.logger.Info("tool memory recommends an existing tool",
			zap.String("capability", gap.Name), zap.String("tool", best))
	}
	return true, nil
}

func (o *Orchestrator) analyze(ctx context.Context, c *cycle) (bool, error) {
	rec := o.deps.Analyzer.Analyze(c.gap.Name, c.gap.Missing, c.gap.AutomationPotential)
	c.out.Recommendation = &rec
	return true, nil
}

// budgetCheck runs before any price is known, so it checks the per-call ceiling.
func (o *Orchestrator) budgetCheck(ctx context.Context, c *cycle) (bool, error) {
	ok, err := o.deps.Budget.CanAfford(ctx, o.cfg.MaxCallCost)
	if err != nil {
		return false, err
	}
	if !ok {
		c.out.Err = fmt.Errorf("%w: remaining budget is below the $%.2f per-call ceiling",
			models.ErrBudgetExceeded, o.cfg.MaxCallCost)
	}
	return ok, nil
}

func (o *Orchestrator) approve(ctx context.Context, c *cycle) (bool, error) {
	decision, eval, err := o.deps.Approver.Decide(ctx, c.out.Recommendation)
	if err != nil {
		return false, err
	}
	c.out.Decision = &decision
	c.out.Evaluation = &eval
	if !decision.Approved {
		c.out.Err = fmt.Errorf("%w: %s", models.ErrApprovalRejected, decision.Notes)
		return false, nil
	}
	c.sources = sourceOrder(c.out.Recommendation, decision.Selected, c.req.PreferSource)
	return true, nil
}

// sourceOrder returns the sources to try for the approved selection.
func sourceOrder(rec *models.Recommendation, selected string, prefer models.Action) []models.Action {
	if selected == models.SelectionBuild {
		return []models.Action{models.ActionBuild}
	}

	first := models.ActionLibrary
	for _, opt := range rec.BuyOptions {
		if opt.Source == selected {
			first = opt.Kind
			break
		}
	}
	if prefer.IsBuy() {
		first = prefer
	}
	if first == models.ActionAPI {
		return []models.Action{models.ActionAPI, models.ActionLibrary}
	}
	return []models.Action{models.ActionLibrary, models.ActionAPI}
}

func (o *Orchestrator) acquire(ctx context.Context, c *cycle) (bool, error) {
	var errs []error
	allEmpty := true

	for _, src := range c.sources {
		err := o.trySource(ctx, c, src)
		if err == nil {
			return true, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		o.logger.Warn("acquisition source failed",
			zap.String("capability", c.gap.Name),
			zap.String("source", string(src)),
			zap.Error(err),
		)
		if !errors.Is(err, models.ErrDiscoveryEmpty) {
			allEmpty = false
		}
		errs = append(errs, err)
	}

	sentinel := models.ErrSynthesis
	if allEmpty {
		sentinel = models.ErrDiscoveryEmpty
	}
	c.out.Err = fmt.Errorf("%w: every source failed: %w", sentinel, errors.Join(errs...))
	return false, nil
}

// trySource produces parsed Go source for one source.
func (o *Orchestrator) trySource(ctx context.Context, c *cycle, src models.Action) error {
	req := connectors.SynthesisRequest{
		Capability:  c.gap.Name,
		Description: c.req.Description,
		Kind:        connectors.SynthesizeBuild,
		Context:     map[string]string{},
	}
	if req.Description == "" {
		req.Description = strings.Join(c.gap.Missing, "; ")
	}
	source := strings.ToLower(strings.ReplaceAll(c.gap.Name, " ", "_"))

	if src != models.ActionBuild {
		candidate, err := o.discover(ctx, c, src)
		if err != nil {
			return err
		}
		req.Kind = connectors.SynthesizeLibraryWrapper
		if src == models.ActionAPI {
			req.Kind = connectors.SynthesizeAPIWrapper
		}
		req.Context["source"] = candidate.Name
		if candidate.URL != "" {
			req.Context["url"] = candidate.URL
		}
		if len(candidate.Requirements) > 0 {
			req.Context["requirements"] = strings.Join(candidate.Requirements, ", ")
		}
		source = candidate.Name
	}

	start := o.now()
	code, err := o.synthesize(ctx, req)
	if err != nil {
		return fmt.Errorf("%s: %w", src, err)
	}
	if _, err := parser.ParseFile(token.NewFileSet(), "tool.go", code, parser.AllErrors); err != nil {
		return fmt.Errorf("%s: %w: generated source does not parse: %v", src, models.ErrSynthesis, err)
	}

	c.code, c.source, c.kind = code, source, src
	c.latency = o.now().Sub(start)
	return nil
}

func (o *Orchestrator) discover(ctx context.Context, c *cycle, src models.Action) (connectors.Candidate, error) {
	d, ok := o.deps.Discoverers[connectors.CandidateKind(src)]
	if !ok || d == nil {
		return connectors.Candidate{}, fmt.Errorf("%s: %w: no discoverer configured", src, models.ErrDiscoveryEmpty)
	}

	lead := c.gap.Name
	if dec := c.out.Decision; dec != nil && dec.Selected != models.SelectionBuild {
		lead = dec.Selected
	}
	terms := connectors.QueryWords(append([]string{lead}, c.gap.Missing...))
	found, err := d.Search(ctx, terms, o.maxFound)
	if err != nil {
		return connectors.Candidate{}, fmt.Errorf("%s discovery: %w", src, err)
	}
	if len(found) == 0 {
		return connectors.Candidate{}, fmt.Errorf("%s: %w", src, models.ErrDiscoveryEmpty)
	}
	return found[0], nil
}

func (o *Orchestrator) synthesize(ctx context.Context, req connectors.SynthesisRequest) (string, error) {
	if o.deps.Synthesizer == nil {
		return "", fmt.Errorf("%w: no synthesizer configured", models.ErrSynthesis)
	}
	if o.cfg.SynthesisTimeout <= 0 {
		return o.deps.Synthesizer.Synthesize(ctx, req)
	}
	t := timeout.New[string](timeout.Config{DefaultTimeout: o.cfg.SynthesisTimeout})
	code, err := t.Execute(ctx, o.cfg.SynthesisTimeout, func(ctx context.Context) (string, error) {
		return o.deps.Synthesizer.Synthesize(ctx, req)
	})
	if err != nil && !errors.Is(err, models.ErrSynthesis) {
		err = fmt.Errorf("%w: %v", models.ErrSynthesis, err)
	}
	return code, err
}

// recordCost charges the synthesis. A rejected charge is only a warning,
// since the tool already exists.
func (o *Orchestrator) recordCost(ctx context.Context, c *cycle) (bool, error) {
	ok, err := o.deps.Budget.RecordCost(ctx, budget.Charge{
		Amount:     o.cfg.SynthesisCost,
		Category:   models.CategoryToolGeneration,
		Tool:       c.source,
		Capability: c.gap.Name,
		Kind:       string(c.kind),
	})
	if err != nil {
		return false, err
	}
	if !ok {
		c.out.Warnings = append(c.out.Warnings,
			fmt.Sprintf("synthesis cost $%.2f was rejected by the budget ledger", o.cfg.SynthesisCost))
	}
	return true, nil
}

// recordUsage writes the tool, registers it and logs one optimistic use.
func (o *Orchestrator) recordUsage(ctx context.Context, c *cycle) (bool, error) {
	name := toolName(c.gap.Name, c.source, c.kind)
	path := filepath.Join(o.toolsDir, name+".go")
	if err := os.MkdirAll(o.toolsDir, 0755); err != nil {
		return false, fmt.Errorf("%w: create tools dir: %v", models.ErrPersistence, err)
	}
	_, statErr := os.Stat(path)
	replacing := statErr == nil
	if err := os.WriteFile(path, []byte(c.code+"\n"), 0644); err != nil {
		return false, fmt.Errorf("%w: write tool: %v", models.ErrPersistence, err)
	}

	if o.deps.Verifier != nil {
		res, err := o.deps.Verifier.Verify(ctx, path)
		switch {
		case err != nil:
			c.out.Warnings = append(c.out.Warnings, fmt.Sprintf("verify %s: %v", name, err))
		case res.ExitCode != 0 || strings.TrimSpace(res.Stdout) != "":
			c.out.Warnings = append(c.out.Warnings, fmt.Sprintf("%s is not gofmt-clean", name))
		}
	}

	tool := models.Tool{
		Name:       name,
		Capability: c.gap.Name,
		Kind:       c.kind,
		Source:     c.source,
		Path:       path,
		AcquiredAt: o.now().UTC(),
	}
	if err := o.deps.Registry.Register(ctx, tool); err != nil {
		if !replacing {
			if rmErr := os.Remove(path); rmErr != nil {
				o.logger.Warn("failed to remove unregistered tool", zap.String("path", path), zap.Error(rmErr))
			}
		}
		return false, err
	}
	c.out.Tool = &tool

	if _, err := o.deps.Performance.RecordUsage(ctx, models.UsageRecord{
		Tool:       name,
		Capability: c.gap.Name,
		Success:    true,
		LatencyMS:  float64(c.latency.Milliseconds()),
		Cost:       o.cfg.SynthesisCost,
		Score:      o.cfg.InitialScore,
		Timestamp:  o.now().UTC(),
	}); err != nil {
		return false, err
	}
	return true, nil
}

func (o *Orchestrator) audit(ctx context.Context, c *cycle) {
	if o.deps.Recorder == nil {
		return
	}
	outcome := string(c.out.State)
	details := strings.Join(stateNames(c.out.Trace), " -> ")
	if c.out.Err != nil {
		details += ": " + c.out.Err.Error()
	}
	if _, err := o.deps.Recorder.Record(ctx, audit.ActionAcquisition, c.req, outcome, c.out.Capability, details); err != nil {
		o.logger.Warn("failed to write acquisition record", zap.Error(err))
	}
}

// AcquireTop runs Acquire for each of the top n actionable gaps in order.
func (o *Orchestrator) AcquireTop(ctx context.Context, freq map[string]int, n int) ([]*Outcome, error) {
	var outcomes []*Outcome
	for _, g := range o.deps.Detector.TopGaps(freq, n, 1) {
		out, err := o.Acquire(ctx, Request{Capability: g.Name, Frequencies: freq})
		if out != nil {
			outcomes = append(outcomes, out)
		}
		if err != nil {
			return outcomes, err
		}
	}
	return outcomes, nil
}

func toolName(capability, source string, kind models.Action) string {
	name := slug(capability)
	if kind != models.ActionBuild && source != "" {
		name += "_" + slug(source)
	}
	return name
}

func slug(s string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

func stateNames(states []State) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}
