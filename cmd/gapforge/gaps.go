package main

import (
	"fmt"
	"os"

	"github.com/fentz26/gapforge/internal/approval"
	"github.com/fentz26/gapforge/internal/gaps"
	"github.com/spf13/cobra"
)

var gapsCmd = &cobra.Command{
	Use:   "gaps",
	Short: "Report capability gaps by priority",
	RunE:  runGaps,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [capability]",
	Short: "Recommend whether to build or buy a capability",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

var (
	gapFreqs   []string
	gapTop     int
	gapMinFreq int
)

func init() {
	gapsCmd.Flags().StringArrayVar(&gapFreqs, "freq", nil, "Observed usage as name=count (repeatable)")
	gapsCmd.Flags().IntVar(&gapTop, "top", 0, "Only show the top n actionable gaps")
	gapsCmd.Flags().IntVar(&gapMinFreq, "min-freq", 1, "Minimum frequency for --top")

	analyzeCmd.Flags().StringArrayVar(&gapFreqs, "freq", nil, "Observed usage as name=count (repeatable)")
}

func runGaps(cmd *cobra.Command, args []string) error {
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

	list := a.detector.Detect(freq)
	if gapTop > 0 {
		list = a.detector.TopGaps(freq, gapTop, gapMinFreq)
	}
	gaps.WriteReport(os.Stdout, list)
	return nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
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
	gap, err := a.detector.Lookup(freq, args[0])
	if err != nil {
		return err
	}

	rec := a.analyzer.Analyze(gap.Name, gap.Missing, gap.AutomationPotential)
	approval.WriteSummary(os.Stdout, &rec)

	gate, err := approval.NewGate(a.cfg.Approval, nil)
	if err != nil {
		return err
	}
	eval := gate.Evaluate(&rec)
	if eval.NeedsApproval {
		fmt.Printf("\nApproval:    required (%s)\n", eval.Rule)
	} else {
		fmt.Printf("\nApproval:    bypassed (%s)\n", eval.Rule)
	}
	return nil
}
