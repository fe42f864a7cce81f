package acquisition

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fentz26/gapforge/internal/analyzer"
	"github.com/fentz26/gapforge/internal/approval"
	"github.com/fentz26/gapforge/internal/audit"
	"github.com/fentz26/gapforge/internal/budget"
	"github.com/fentz26/gapforge/internal/config"
	"github.com/fentz26/gapforge/internal/connectors"
	"github.com/fentz26/gapforge/internal/connectors/catalog"
	"github.com/fentz26/gapforge/internal/gaps"
	"github.com/fentz26/gapforge/internal/models"
	"github.com/fentz26/gapforge/internal/performance"
	"github.com/fentz26/gapforge/internal/registry"
	"github.com/fentz26/gapforge/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validTool = "package tools\n\nfunc Analyze() bool { return true }"

var testNow = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

type fakeSynth struct {
	mu   sync.Mutex
	code string
	err  error
	reqs []connectors.SynthesisRequest
}

func (f *fakeSynth) Synthesize(ctx context.Context, req connectors.SynthesisRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return f.code, f.err
}

func (f *fakeSynth) kinds() []connectors.SynthesisKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []connectors.SynthesisKind
	for _, r := range f.reqs {
		out = append(out, r.Kind)
	}
	return out
}

type slowSynth struct{}

func (slowSynth) Synthesize(ctx context.Context, req connectors.SynthesisRequest) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type fixedDiscoverer struct {
	kind  connectors.CandidateKind
	found []connectors.Candidate
}

func (d fixedDiscoverer) Kind() connectors.CandidateKind { return d.kind }

func (d fixedDiscoverer) Search(ctx context.Context, terms []string, max int) ([]connectors.Candidate, error) {
	return d.found, nil
}

// recordingDiscoverer remembers the terms of every search.
type recordingDiscoverer struct {
	connectors.Discoverer
	terms *[][]string
}

func (d recordingDiscoverer) Search(ctx context.Context, terms []string, max int) ([]connectors.Candidate, error) {
	*d.terms = append(*d.terms, terms)
	return d.Discoverer.Search(ctx, terms, max)
}

type scriptedChannel struct {
	choice approval.Choice
}

func (c scriptedChannel) Present(ctx context.Context, rec *models.Recommendation) (approval.Choice, error) {
	return c.choice, nil
}

type failingRegistry struct{}

func (failingRegistry) Register(ctx context.Context, t models.Tool) error {
	return models.ErrPersistence
}

type harness struct {
	store    *store.Store
	budget   *budget.Ledger
	perf     *performance.Ledger
	registry *registry.Registry
	synth    *fakeSynth
	deps     Deps
	cfg      config.AcquisitionConfig
	toolsDir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := func() time.Time { return testNow }
	reg := registry.New(s)
	gate, err := approval.NewGate(config.DefaultConfig().Approval,
		scriptedChannel{choice: approval.Choice{Kind: approval.ChoiceAccept}},
		approval.WithRecorder(audit.NewPDRWriter(s)))
	require.NoError(t, err)

	h := &harness{
		store:    s,
		budget:   budget.New(s, nil, budget.WithClock(clock)),
		perf:     performance.New(s, nil, performance.WithClock(clock)),
		registry: reg,
		synth:    &fakeSynth{code: validTool},
		cfg:      config.DefaultConfig().Acquisition,
		toolsDir: filepath.Join(t.TempDir(), "tools"),
	}
	h.deps = Deps{
		Detector:    gaps.NewDetector(nil, reg),
		Analyzer:    analyzer.New(100, nil),
		Budget:      h.budget,
		Approver:    gate,
		Performance: h.perf,
		Registry:    reg,
		Synthesizer: h.synth,
		Discoverers: map[connectors.CandidateKind]connectors.Discoverer{
			connectors.CandidateLibrary: catalog.New(connectors.CandidateLibrary, analyzer.DefaultCatalog()),
			connectors.CandidateAPI:     catalog.New(connectors.CandidateAPI, analyzer.DefaultCatalog()),
		},
		Recorder: audit.NewPDRWriter(s),
	}
	return h
}

func (h *harness) orchestrator() *Orchestrator {
	return New(h.deps, h.cfg, h.toolsDir, WithClock(func() time.Time { return testNow }))
}

var fullTrace = []State{
	StateDetect, StateAnalyze, StateBudgetCheck, StateApprove,
	StateAcquire, StateRecordCost, StateRecordUsage, StateDone,
}

func TestAcquire_Build(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.budget.SetBudget(ctx, models.PeriodDaily, 100)
	require.NoError(t, err)

	out, err := h.orchestrator().Acquire(ctx, Request{Capability: "gap analysis"})
	require.NoError(t, err)
	require.True(t, out.Succeeded(), "err: %v", out.Err)
	assert.Equal(t, fullTrace, out.Trace)
	assert.NotEmpty(t, out.RunID)

	assert.Equal(t, models.ActionBuild, out.Recommendation.Action)
	assert.True(t, out.Decision.AutoApproved)
	assert.Equal(t, config.RuleInternalCode, out.Evaluation.Rule)
	assert.Equal(t, []connectors.SynthesisKind{connectors.SynthesizeBuild}, h.synth.kinds())

	require.NotNil(t, out.Tool)
	assert.Equal(t, "gap_analysis", out.Tool.Name)
	assert.Equal(t, "Gap Analysis", out.Tool.Capability)
	data, err := os.ReadFile(out.Tool.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "func Analyze")

	assert.Equal(t, []string{"gap_analysis"}, h.registry.ToolsFor("Gap Analysis"))

	status, err := h.budget.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status, 1)
	assert.InDelta(t, 0.02, status[0].Spend, 1e-9)

	m, err := h.perf.Metrics(ctx, "gap_analysis", "Gap Analysis")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, 1, m.UsageCount)
	assert.InDelta(t, 0.7, m.AvgScore, 1e-9)
	assert.InDelta(t, 100, m.SuccessRate, 1e-9)

	records, err := h.store.ListPDR(ctx, "Gap Analysis", 10)
	require.NoError(t, err)
	var actions []string
	for _, r := range records {
		actions = append(actions, r.Action)
	}
	assert.ElementsMatch(t, []string{audit.ActionApproval, audit.ActionAcquisition}, actions)
}

func TestAcquire_FreeLibrary(t *testing.T) {
	h := newHarness(t)

	out, err := h.orchestrator().Acquire(context.Background(), Request{Capability: "Production Readiness"})
	require.NoError(t, err)
	require.True(t, out.Succeeded(), "err: %v", out.Err)

	assert.Equal(t, models.ActionLibrary, out.Recommendation.Action)
	assert.Equal(t, config.RuleFreeLibrary, out.Evaluation.Rule)
	assert.Equal(t, "staticcheck", out.Decision.Selected)
	assert.Equal(t, "production_readiness_staticcheck", out.Tool.Name)
	assert.Equal(t, models.ActionLibrary, out.Tool.Kind)

	require.Len(t, h.synth.reqs, 1)
	assert.Equal(t, connectors.SynthesizeLibraryWrapper, h.synth.reqs[0].Kind)
	assert.Equal(t, "staticcheck", h.synth.reqs[0].Context["source"])
}

func TestAcquire_BudgetPreCheckFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.budget.SetBudget(ctx, models.PeriodDaily, 10)
	require.NoError(t, err)

	out, err := h.orchestrator().Acquire(ctx, Request{Capability: "Gap Analysis"})
	require.NoError(t, err)
	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, []State{StateDetect, StateAnalyze, StateBudgetCheck, StateFailed}, out.Trace)
	assert.ErrorIs(t, out.Err, models.ErrBudgetExceeded)
	assert.Empty(t, h.synth.reqs)
}

// complexCoverage is a capability whose build exceeds 20 hours, so the
// analyzer buys the only catalog option: a paid API.
func complexCoverage(h *harness) {
	h.deps.Detector = gaps.NewDetector([]gaps.Capability{{
		Name:                "Coverage Gate",
		AutomationPotential: 0.4,
		Missing: []string{
			"Test coverage per package", "Coverage trend", "Diff coverage",
			"Flaky test detection", "Mutation testing", "Coverage badges",
		},
	}}, nil)
	h.deps.Analyzer = analyzer.New(100, []config.CatalogEntry{
		{Key: "test_coverage", Source: "coveralls", Kind: models.ActionAPI, MonthlyCost: 10, SetupHours: 1, Maturity: 8},
	})
	h.deps.Discoverers[connectors.CandidateAPI] = fixedDiscoverer{kind: connectors.CandidateAPI, found: []connectors.Candidate{
		{Name: "coveralls", Kind: connectors.CandidateAPI, URL: "https://coveralls.io/api", Maturity: 0.8, MonthlyCost: 10},
	}}
}

func TestAcquire_ApprovalRejected(t *testing.T) {
	h := newHarness(t)
	complexCoverage(h)
	gate, err := approval.NewGate(config.DefaultConfig().Approval, scriptedChannel{choice: approval.Choice{Kind: approval.ChoiceReject}})
	require.NoError(t, err)
	h.deps.Approver = gate

	out, err := h.orchestrator().Acquire(context.Background(), Request{Capability: "Coverage Gate"})
	require.NoError(t, err)
	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, []State{StateDetect, StateAnalyze, StateBudgetCheck, StateApprove, StateFailed}, out.Trace)
	assert.ErrorIs(t, out.Err, models.ErrApprovalRejected)
	assert.Equal(t, config.RuleSubscription, out.Evaluation.Rule)
	assert.Empty(t, h.synth.reqs)
}

func TestAcquire_APIApproved(t *testing.T) {
	h := newHarness(t)
	complexCoverage(h)

	out, err := h.orchestrator().Acquire(context.Background(), Request{Capability: "Coverage Gate"})
	require.NoError(t, err)
	require.True(t, out.Succeeded(), "err: %v", out.Err)
	assert.Equal(t, models.ActionAPI, out.Recommendation.Action)
	assert.False(t, out.Decision.AutoApproved)
	assert.Equal(t, "coverage_gate_coveralls", out.Tool.Name)
	assert.Equal(t, []connectors.SynthesisKind{connectors.SynthesizeAPIWrapper}, h.synth.kinds())
	assert.Equal(t, "https://coveralls.io/api", h.synth.reqs[0].Context["url"])
}

func TestAcquire_FallsBackToAPI(t *testing.T) {
	h := newHarness(t)
	h.deps.Discoverers = map[connectors.CandidateKind]connectors.Discoverer{
		connectors.CandidateLibrary: fixedDiscoverer{kind: connectors.CandidateLibrary},
		connectors.CandidateAPI: fixedDiscoverer{kind: connectors.CandidateAPI, found: []connectors.Candidate{
			{Name: "codecov", Kind: connectors.CandidateAPI, Maturity: 0.9},
		}},
	}

	out, err := h.orchestrator().Acquire(context.Background(), Request{Capability: "Production Readiness"})
	require.NoError(t, err)
	require.True(t, out.Succeeded(), "err: %v", out.Err)
	assert.Equal(t, models.ActionAPI, out.Tool.Kind)
	assert.Equal(t, "codecov", out.Tool.Source)
	assert.Equal(t, []connectors.SynthesisKind{connectors.SynthesizeAPIWrapper}, h.synth.kinds())
}

func TestAcquire_PreferSource(t *testing.T) {
	h := newHarness(t)
	h.synth.code = "not go at all"
	h.deps.Discoverers[connectors.CandidateAPI] = fixedDiscoverer{kind: connectors.CandidateAPI, found: []connectors.Candidate{
		{Name: "codecov", Kind: connectors.CandidateAPI, Maturity: 0.9},
	}}

	out, err := h.orchestrator().Acquire(context.Background(), Request{
		Capability:   "Production Readiness",
		PreferSource: models.ActionAPI,
	})
	require.NoError(t, err)
	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, []connectors.SynthesisKind{
		connectors.SynthesizeAPIWrapper,
		connectors.SynthesizeLibraryWrapper,
	}, h.synth.kinds())
}

func TestAcquire_AllSourcesFail(t *testing.T) {
	t.Run("nothing discovered", func(t *testing.T) {
		h := newHarness(t)
		h.deps.Discoverers = map[connectors.CandidateKind]connectors.Discoverer{
			connectors.CandidateLibrary: fixedDiscoverer{kind: connectors.CandidateLibrary},
		}

		out, err := h.orchestrator().Acquire(context.Background(), Request{Capability: "Production Readiness"})
		require.NoError(t, err)
		assert.Equal(t, StateFailed, out.State)
		assert.Equal(t, []State{StateDetect, StateAnalyze, StateBudgetCheck, StateApprove, StateAcquire, StateFailed}, out.Trace)
		assert.ErrorIs(t, out.Err, models.ErrDiscoveryEmpty)
		assert.NotErrorIs(t, out.Err, models.ErrSynthesis)
	})

	t.Run("unparsable source", func(t *testing.T) {
		h := newHarness(t)
		h.synth.code = "func {"

		out, err := h.orchestrator().Acquire(context.Background(), Request{Capability: "Production Readiness"})
		require.NoError(t, err)
		assert.Equal(t, StateFailed, out.State)
		assert.ErrorIs(t, out.Err, models.ErrSynthesis)
		// the default catalog has no API for these items, so only the library is synthesized
		assert.Len(t, h.synth.reqs, 1)
	})

	t.Run("build generator error", func(t *testing.T) {
		h := newHarness(t)
		h.synth.err = errors.New("model overloaded")

		out, err := h.orchestrator().Acquire(context.Background(), Request{Capability: "Gap Analysis"})
		require.NoError(t, err)
		assert.Equal(t, StateFailed, out.State)
		assert.ErrorIs(t, out.Err, models.ErrSynthesis)
		assert.Contains(t, out.Err.Error(), "model overloaded")
		assert.Len(t, h.synth.reqs, 1)
	})
}

func TestAcquire_SynthesisTimeout(t *testing.T) {
	h := newHarness(t)
	h.deps.Synthesizer = slowSynth{}
	h.cfg.SynthesisTimeout = 20 * time.Millisecond

	out, err := h.orchestrator().Acquire(context.Background(), Request{Capability: "Gap Analysis"})
	require.NoError(t, err)
	assert.Equal(t, StateFailed, out.State)
	assert.ErrorIs(t, out.Err, models.ErrSynthesis)
}

func TestAcquire_RejectedCostIsWarning(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.cfg.MaxCallCost = 0
	_, err := h.budget.SetBudget(ctx, models.PeriodDaily, 0.01)
	require.NoError(t, err)

	out, err := h.orchestrator().Acquire(ctx, Request{Capability: "Gap Analysis"})
	require.NoError(t, err)
	require.True(t, out.Succeeded())
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "rejected")

	alerts, err := h.budget.RecentAlerts(ctx, 5)
	require.NoError(t, err)
	require.NotEmpty(t, alerts)
	assert.Equal(t, models.SeverityCritical, alerts[0].Severity)
}

func TestAcquire_UnknownCapability(t *testing.T) {
	h := newHarness(t)
	out, err := h.orchestrator().Acquire(context.Background(), Request{Capability: "Telepathy"})
	assert.ErrorIs(t, err, models.ErrConfiguration)
	require.NotNil(t, out)
	assert.Equal(t, StateDetect, out.State)
}

func TestAcquire_PersistenceFailureSurfaces(t *testing.T) {
	h := newHarness(t)
	h.deps.Registry = failingRegistry{}

	out, err := h.orchestrator().Acquire(context.Background(), Request{Capability: "Gap Analysis"})
	assert.ErrorIs(t, err, models.ErrPersistence)
	assert.Equal(t, StateRecordUsage, out.State)

	entries, err := os.ReadDir(h.toolsDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "an unregistered tool file was left behind")
}

func TestAcquire_DiscoveryTermsAreNarrow(t *testing.T) {
	h := newHarness(t)
	var searches [][]string
	h.deps.Discoverers[connectors.CandidateLibrary] = recordingDiscoverer{
		Discoverer: h.deps.Discoverers[connectors.CandidateLibrary],
		terms:      &searches,
	}

	out, err := h.orchestrator().Acquire(context.Background(), Request{Capability: "Production Readiness"})
	require.NoError(t, err)
	require.True(t, out.Succeeded(), "err: %v", out.Err)

	require.Len(t, searches, 1)
	assert.Equal(t, []string{"staticcheck", "type", "checking", "unchecked"}, searches[0])
	assert.LessOrEqual(t, len(searches[0]), connectors.MaxQueryWords)
}

func TestAcquire_ReportsExistingBestTool(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.orchestrator().Acquire(ctx, Request{Capability: "Gap Analysis"})
	require.NoError(t, err)
	require.True(t, first.Succeeded())
	assert.Empty(t, first.ExistingBest, "nothing has three uses yet")

	for i := 0; i < 2; i++ {
		_, err := h.perf.RecordUsage(ctx, models.UsageRecord{
			Tool:       "gap_analysis",
			Capability: "Gap Analysis",
			Success:    true,
			Score:      0.9,
		})
		require.NoError(t, err)
	}

	second, err := h.orchestrator().Acquire(ctx, Request{Capability: "Gap Analysis"})
	require.NoError(t, err)
	require.True(t, second.Succeeded())
	assert.Equal(t, "gap_analysis", second.ExistingBest)
}

func TestAcquireTop(t *testing.T) {
	h := newHarness(t)

	outs, err := h.orchestrator().AcquireTop(context.Background(), nil, 2)
	require.NoError(t, err)
	require.Len(t, outs, 2)
	assert.Equal(t, "Production Readiness", outs[0].Capability)
	assert.Equal(t, "Gap Analysis", outs[1].Capability)
	for _, o := range outs {
		assert.True(t, o.Succeeded(), "%s: %v", o.Capability, o.Err)
	}
	assert.Equal(t, 2, h.registry.Count())
}

func TestSummary(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.budget.SetBudget(ctx, models.PeriodMonthly, 500)
	require.NoError(t, err)
	_, err = h.orchestrator().Acquire(ctx, Request{Capability: "Gap Analysis"})
	require.NoError(t, err)

	sum, err := h.orchestrator().Summary(ctx)
	require.NoError(t, err)
	require.Len(t, sum.Budgets, 1)
	assert.InDelta(t, 0.02, sum.Budgets[0].Spend, 1e-9)
	assert.InDelta(t, 0.02*30/7, sum.ForecastMonthly, 1e-6)
	require.Len(t, sum.TopPerformers, 1)
	assert.Equal(t, "gap_analysis", sum.TopPerformers[0].Tool)
	assert.Empty(t, sum.RetireCandidates)
}

func TestSourceOrder(t *testing.T) {
	rec := &models.Recommendation{BuyOptions: []models.BuyOption{
		{Source: "gosec", Kind: models.ActionLibrary},
		{Source: "snyk", Kind: models.ActionAPI},
	}}
	lib := []models.Action{models.ActionLibrary, models.ActionAPI}
	api := []models.Action{models.ActionAPI, models.ActionLibrary}

	tests := []struct {
		name     string
		selected string
		prefer   models.Action
		want     []models.Action
	}{
		{"build", models.SelectionBuild, "", []models.Action{models.ActionBuild}},
		{"build ignores preference", models.SelectionBuild, models.ActionAPI, []models.Action{models.ActionBuild}},
		{"library", "gosec", "", lib},
		{"api", "snyk", "", api},
		{"prefer api", "gosec", models.ActionAPI, api},
		{"prefer library", "snyk", models.ActionLibrary, lib},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sourceOrder(rec, tt.selected, tt.prefer))
		})
	}
}

func TestLifecycle_OnlySomeStatesFail(t *testing.T) {
	l, err := newLifecycle("run")
	require.NoError(t, err)
	assert.Error(t, l.fail(), "detect cannot fail")
	require.NoError(t, l.next())
	assert.Error(t, l.fail(), "analyze cannot fail")
	require.NoError(t, l.next())
	require.NoError(t, l.fail())
	assert.Equal(t, StateFailed, l.current())
	assert.Error(t, l.next(), "failed is terminal")
	assert.Equal(t, []State{StateDetect, StateAnalyze, StateBudgetCheck, StateFailed}, l.history())
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "multi_dimensional_evaluation", slug("Multi-Dimensional Evaluation"))
	assert.Equal(t, "go_tool_cover", slug("go tool cover"))
	assert.Equal(t, "fzipp_gocyclo", slug("fzipp/gocyclo"))
	assert.Equal(t, "production_readiness_snyk_io", toolName("Production Readiness", "snyk.io", models.ActionAPI))
	assert.Equal(t, "gap_analysis", toolName("Gap Analysis", "ignored", models.ActionBuild))
}
