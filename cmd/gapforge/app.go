package main

import (
	"context"
	"io"
	"os"

	"github.com/fentz26/gapforge/internal/acquisition"
	"github.com/fentz26/gapforge/internal/analyzer"
	"github.com/fentz26/gapforge/internal/approval"
	"github.com/fentz26/gapforge/internal/audit"
	"github.com/fentz26/gapforge/internal/budget"
	"github.com/fentz26/gapforge/internal/config"
	"github.com/fentz26/gapforge/internal/controlplane"
	"github.com/fentz26/gapforge/internal/connectors"
	"github.com/fentz26/gapforge/internal/connectors/apisguru"
	"github.com/fentz26/gapforge/internal/connectors/catalog"
	"github.com/fentz26/gapforge/internal/connectors/gemini"
	"github.com/fentz26/gapforge/internal/connectors/githubsearch"
	"github.com/fentz26/gapforge/internal/connectors/localexec"
	"github.com/fentz26/gapforge/internal/gaps"
	"github.com/fentz26/gapforge/internal/models"
	"github.com/fentz26/gapforge/internal/performance"
	"github.com/fentz26/gapforge/internal/registry"
	"github.com/fentz26/gapforge/internal/store"
	"github.com/fentz26/gapforge/internal/tui"
	"go.uber.org/zap"
)

// app holds the components every command shares. It is built once per invocation.
type app struct {
	cfg      *config.Config
	store    *store.Store
	pdr      *audit.PDRWriter
	registry *registry.Registry
	detector *gaps.Detector
	analyzer *analyzer.Analyzer
	budget   *budget.Ledger
	perf     *performance.Ledger
	service  *controlplane.Service
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadConfig(configPath)
	}
	return config.LoadConfigFromHome()
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	s, err := store.New(cfg.Database)
	if err != nil {
		return nil, err
	}

	reg := registry.New(s, registry.WithLogger(logger.Named("registry")))
	if err := reg.Load(ctx); err != nil {
		s.Close()
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		store:    s,
		pdr:      audit.NewPDRWriter(s),
		registry: reg,
		detector: gaps.NewDetector(nil, reg),
		analyzer: analyzer.New(cfg.HourlyRate, append(analyzer.DefaultCatalog(), cfg.Catalog...),
			analyzer.WithLogger(logger.Named("analyzer"))),
		budget:   budget.New(s, logger.Named("budget")),
		perf:     performance.New(s, logger.Named("performance")),
	}
	a.service = controlplane.NewService(s, a.pdr, a.detector, a.budget, a.perf, logger.Named("controlplane"))
	if err := a.seedBudgets(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// seedBudgets applies configured limits only to periods with no live budget,
// so limits set at runtime survive restarts.
func (a *app) seedBudgets(ctx context.Context) error {
	if len(a.cfg.Budgets) == 0 {
		return nil
	}
	live, err := a.budget.Status(ctx)
	if err != nil {
		return err
	}
	have := make(map[models.Period]bool, len(live))
	for _, b := range live {
		have[b.Period] = true
	}
	for _, p := range models.Periods {
		limit, ok := a.cfg.Budgets[p]
		if !ok || have[p] {
			continue
		}
		if _, err := a.budget.SetBudget(ctx, p, limit); err != nil {
			return err
		}
		logger.Debug("seeded budget", zap.String("period", string(p)), zap.Float64("limit", limit))
	}
	return nil
}

// discoverers picks the library and API sources. Without a GitHub token, or
// offline, libraries come from the configured catalog.
func (a *app) discoverers() map[connectors.CandidateKind]connectors.Discoverer {
	entries := append(analyzer.DefaultCatalog(), a.cfg.Catalog...)
	out := map[connectors.CandidateKind]connectors.Discoverer{
		connectors.CandidateLibrary: catalog.New(connectors.CandidateLibrary, entries),
		connectors.CandidateAPI:     catalog.New(connectors.CandidateAPI, entries),
	}
	if a.cfg.Discovery.Offline {
		return out
	}
	if tok := a.cfg.GitHubToken(); tok != "" {
		out[connectors.CandidateLibrary] = githubsearch.New(tok)
	}
	out[connectors.CandidateAPI] = apisguru.New(a.cfg.Discovery.APIsGuruURL, a.cfg.Discovery.DefaultAPIMonthly)
	return out
}

// orchestrator wires an acquisition run with ch as the approval channel.
func (a *app) orchestrator(ctx context.Context, ch approval.Channel) (*acquisition.Orchestrator, error) {
	gate, err := approval.NewGate(a.cfg.Approval, ch,
		approval.WithRecorder(a.pdr),
		approval.WithTimeout(a.cfg.Acquisition.ApprovalTimeout),
		approval.WithLogger(logger.Named("approval")),
	)
	if err != nil {
		return nil, err
	}

	synth, err := gemini.New(ctx, a.cfg.Synthesis, a.cfg.APIKey())
	if err != nil {
		return nil, err
	}

	wd, _ := os.Getwd()
	deps := acquisition.Deps{
		Detector:    a.detector,
		Analyzer:    a.analyzer,
		Budget:      a.budget,
		Approver:    gate,
		Performance: a.perf,
		Registry:    a.registry,
		Synthesizer: synth,
		Discoverers: a.discoverers(),
		Verifier:    localexec.New(wd),
		Recorder:    a.pdr,
	}
	return acquisition.New(deps, a.cfg.Acquisition, a.cfg.ToolsDir,
		acquisition.WithLogger(logger.Named("acquisition"))), nil
}

// approvalChannel returns the interactive prompt or a line-based one.
func approvalChannel(useTUI bool, in io.Reader, out io.Writer) approval.Channel {
	if useTUI {
		return tui.NewPrompt(in, out)
	}
	return approval.NewLineChannel(in, out)
}
