package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fentz26/gapforge/internal/models"
	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Track acquired tool performance",
}

var toolsRecordCmd = &cobra.Command{
	Use:   "record [tool] [capability]",
	Short: "Record one use of a tool",
	Args:  cobra.ExactArgs(2),
	RunE:  runToolsRecord,
}

var toolsMetricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show metrics for every tool",
	RunE:  runToolsMetrics,
}

var toolsBestCmd = &cobra.Command{
	Use:   "best [capability]",
	Short: "Show the best tool for a capability",
	Args:  cobra.ExactArgs(1),
	RunE:  runToolsBest,
}

var toolsRetireCmd = &cobra.Command{
	Use:   "retire",
	Short: "List tools that should be retired",
	RunE:  runToolsRetire,
}

var toolsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export metrics as JSON",
	RunE:  runToolsExport,
}

var toolsTrendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Show daily usage trends",
	RunE:  runToolsTrends,
}

var (
	usageFailed  bool
	usageLatency time.Duration
	usageCost    float64
	usageScore   float64
	usageError   string
	retireMin    int
	exportPath   string
	trendDays    int
)

func init() {
	toolsCmd.AddCommand(toolsRecordCmd, toolsMetricsCmd, toolsBestCmd, toolsRetireCmd, toolsExportCmd, toolsTrendsCmd)

	toolsRecordCmd.Flags().BoolVar(&usageFailed, "failed", false, "The use failed")
	toolsRecordCmd.Flags().DurationVar(&usageLatency, "latency", 0, "Observed latency")
	toolsRecordCmd.Flags().Float64Var(&usageCost, "cost", 0, "Cost of the use")
	toolsRecordCmd.Flags().Float64Var(&usageScore, "score", 0.5, "Quality score from 0 to 1")
	toolsRecordCmd.Flags().StringVar(&usageError, "error", "", "Error message for a failed use")

	toolsRetireCmd.Flags().IntVar(&retireMin, "min-uses", 10, "Minimum uses before a tool can be retired")
	toolsExportCmd.Flags().StringVarP(&exportPath, "output", "o", "", "Output file (default stdout)")
	toolsTrendsCmd.Flags().IntVar(&trendDays, "days", 7, "Days of history")
}

func runToolsRecord(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.service.RecordUsage(ctx, models.UsageRecord{
		Tool:       args[0],
		Capability: args[1],
		Success:    !usageFailed,
		LatencyMS:  float64(usageLatency.Milliseconds()),
		Cost:       usageCost,
		Score:      usageScore,
		Error:      usageError,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Recorded use #%d of %s for %s\n", rec.ID, rec.Tool, rec.Capability)
	return nil
}

func printMetrics(metrics []models.PerformanceMetrics) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tCAPABILITY\tUSES\tSUCCESS\tSCORE\tLATENCY\tCOST\tVERDICT")
	for _, m := range metrics {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.0f%%\t%.2f\t%.0fms\t$%.2f\t%s\n",
			m.Tool, m.Capability, m.UsageCount, m.SuccessRate, m.AvgScore, m.AvgLatencyMS, m.TotalCost, m.Recommendation)
	}
	return w.Flush()
}

func runToolsMetrics(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	metrics, err := a.service.Metrics(ctx)
	if err != nil {
		return err
	}
	if len(metrics) == 0 {
		fmt.Println("No usage recorded.")
		return nil
	}
	return printMetrics(metrics)
}

func runToolsBest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	tool, err := a.service.BestTool(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Println(tool)
	return nil
}

func runToolsRetire(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := a.service.ToolsToRetire(ctx, retireMin)
	if err != nil {
		return err
	}
	if len(out) == 0 {
		fmt.Println("Nothing to retire.")
		return nil
	}
	return printMetrics(out)
}

func runToolsExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if exportPath == "" {
		return a.perf.Export(ctx, os.Stdout)
	}
	f, err := os.Create(exportPath)
	if err != nil {
		return err
	}
	if err := a.perf.Export(ctx, f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("Exported metrics to %s\n", exportPath)
	return nil
}

func runToolsTrends(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	days, err := a.perf.UsageTrends(ctx, trendDays)
	if err != nil {
		return err
	}
	costs, err := a.perf.CostAnalysis(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tUSES\tSUCCESS\tSCORE")
	for _, d := range days {
		fmt.Fprintf(w, "%s\t%d\t%.0f%%\t%.2f\n", d.Date, d.Uses, d.SuccessRate, d.AvgScore)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "TOOL\tUSES\tTOTAL\tAVG")
	for _, c := range costs {
		fmt.Fprintf(w, "%s\t%d\t$%.2f\t$%.4f\n", c.Tool, c.Uses, c.TotalCost, c.AvgCost)
	}
	return w.Flush()
}
