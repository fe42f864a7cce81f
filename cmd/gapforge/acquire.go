package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fentz26/gapforge/internal/acquisition"
	"github.com/fentz26/gapforge/internal/connectors"
	"github.com/fentz26/gapforge/internal/gaps"
	"github.com/fentz26/gapforge/internal/models"
	"github.com/spf13/cobra"
)

var acquireCmd = &cobra.Command{
	Use:   "acquire [capability]",
	Short: "Run an acquisition cycle for a capability",
	Long: `Runs detect, analyze, budget check, approval, acquisition and recording for one
capability. With --top, runs the cycle for each of the top actionable gaps instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAcquire,
}

var discoverCmd = &cobra.Command{
	Use:   "discover [terms...]",
	Short: "Search library and API sources for candidates",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDiscover,
}

var (
	acquirePrefer string
	acquireTUI    bool
	acquireTop    int
	acquireDesc   string
	discoverMax   int
)

func init() {
	acquireCmd.Flags().StringVar(&acquirePrefer, "prefer", "", "Preferred buy source (library, api)")
	acquireCmd.Flags().BoolVar(&acquireTUI, "tui", false, "Use the interactive approval prompt")
	acquireCmd.Flags().IntVar(&acquireTop, "top", 0, "Acquire the top n actionable gaps")
	acquireCmd.Flags().StringVar(&acquireDesc, "desc", "", "Description passed to synthesis")
	acquireCmd.Flags().StringArrayVar(&gapFreqs, "freq", nil, "Observed usage as name=count (repeatable)")

	discoverCmd.Flags().IntVar(&discoverMax, "max", 0, "Maximum candidates (default from config)")
}

func runAcquire(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && acquireTop <= 0 {
		return errors.New("name a capability or pass --top")
	}
	prefer := models.Action(acquirePrefer)
	if prefer != "" && !prefer.IsBuy() {
		return fmt.Errorf("%w: --prefer must be library or api", models.ErrConfiguration)
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	freq, err := gaps.ParseFrequencies(gapFreqs)
	if err != nil {
		return err
	}
	if prefer == "" {
		prefer = a.cfg.Acquisition.PreferSource
	}

	orch, err := a.orchestrator(ctx, approvalChannel(acquireTUI, os.Stdin, os.Stdout))
	if err != nil {
		return err
	}

	var outcomes []*acquisition.Outcome
	if acquireTop > 0 {
		outcomes, err = orch.AcquireTop(ctx, freq, acquireTop)
	} else {
		var out *acquisition.Outcome
		out, err = orch.Acquire(ctx, acquisition.Request{
			Capability:   args[0],
			Frequencies:  freq,
			PreferSource: prefer,
			Description:  acquireDesc,
		})
		if out != nil {
			outcomes = append(outcomes, out)
		}
	}
	for _, out := range outcomes {
		printOutcome(out)
	}
	if err != nil {
		return err
	}
	for _, out := range outcomes {
		if !out.Succeeded() {
			return fmt.Errorf("%s: %w", out.Capability, out.Err)
		}
	}
	return nil
}

func printOutcome(out *acquisition.Outcome) {
	trace := make([]string, len(out.Trace))
	for i, s := range out.Trace {
		trace[i] = string(s)
	}
	fmt.Printf("\n%s (run %s)\n", out.Capability, out.RunID)
	fmt.Printf("  path:     %s\n", strings.Join(trace, " -> "))
	if out.ExistingBest != "" {
		fmt.Printf("  existing: %s already performs best for this capability\n", out.ExistingBest)
	}
	if out.Decision != nil {
		fmt.Printf("  decision: approved=%t selected=%s by %s\n", out.Decision.Approved, out.Decision.Selected, out.Decision.Approver)
	}
	if out.Tool != nil {
		fmt.Printf("  tool:     %s (%s from %s)\n", out.Tool.Name, out.Tool.Kind, out.Tool.Source)
		fmt.Printf("  file:     %s\n", out.Tool.Path)
	}
	for _, w := range out.Warnings {
		fmt.Printf("  warning:  %s\n", w)
	}
	if out.Err != nil {
		fmt.Printf("  error:    %v\n", out.Err)
	}
}

func runDiscover(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	limit := discoverMax
	if limit <= 0 {
		limit = a.cfg.Discovery.MaxResults
	}

	byKind := a.discoverers()
	sources := []connectors.Discoverer{
		byKind[connectors.CandidateLibrary],
		byKind[connectors.CandidateAPI],
	}
	found, err := connectors.SearchAll(ctx, sources, args, limit)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		fmt.Println("No candidates found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tMATURITY\tMONTHLY\tURL")
	for _, c := range found {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t$%.2f\t%s\n", c.Name, c.Kind, c.Maturity, c.MonthlyCost, c.URL)
	}
	return w.Flush()
}
