package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/fentz26/gapforge/internal/models"
	"github.com/spf13/cobra"
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Manage spend budgets",
}

var budgetSetCmd = &cobra.Command{
	Use:   "set [daily|weekly|monthly] [limit]",
	Short: "Set a budget limit, starting a fresh window now",
	Args:  cobra.ExactArgs(2),
	RunE:  runBudgetSet,
}

var budgetStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show budget status",
	RunE:  runBudgetStatus,
}

var budgetForecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Project monthly spend from the last seven days",
	RunE:  runBudgetForecast,
}

var budgetOptimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Show cost optimization hints",
	RunE:  runBudgetOptimize,
}

var budgetAlertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Show recent budget alerts",
	RunE:  runBudgetAlerts,
}

var alertLimit int

func init() {
	budgetCmd.AddCommand(budgetSetCmd, budgetStatusCmd, budgetForecastCmd, budgetOptimizeCmd, budgetAlertsCmd)

	budgetAlertsCmd.Flags().IntVar(&alertLimit, "limit", 20, "Number of alerts")
}

func runBudgetSet(cmd *cobra.Command, args []string) error {
	limit, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("%w: limit %q is not a number", models.ErrConfiguration, args[1])
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	b, err := a.service.SetBudget(ctx, models.Period(args[0]), limit)
	if err != nil {
		return err
	}

	fmt.Printf("%s budget: $%.2f until %s\n", b.Period, b.Limit, b.WindowEnd.Format("2006-01-02 15:04"))
	return nil
}

func runBudgetStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	statuses, err := a.budget.Status(ctx)
	if err != nil {
		return err
	}
	if len(statuses) == 0 {
		fmt.Println("No budgets set.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PERIOD\tLIMIT\tSPEND\tREMAINING\tUSED\tDAYS LEFT")
	for _, s := range statuses {
		fmt.Fprintf(w, "%s\t$%.2f\t$%.2f\t$%.2f\t%.1f%%\t%d\n",
			s.Period, s.Limit, s.Spend, s.Remaining, s.Utilization, s.DaysRemaining)
	}
	return w.Flush()
}

func runBudgetForecast(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := a.budget.ForecastMonthly(ctx)
	if err != nil {
		return err
	}
	byCat, err := a.budget.SpendingByCategory(ctx, 30)
	if err != nil {
		return err
	}

	fmt.Printf("Projected monthly spend: $%.2f\n", f)
	if len(byCat) > 0 {
		fmt.Println("Last 30 days by category:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, c := range []string{models.CategoryAPI, models.CategoryToolGeneration, models.CategoryLibrary, models.CategoryCompute} {
			if v, ok := byCat[c]; ok {
				fmt.Fprintf(w, "  %s\t$%.2f\n", c, v)
			}
		}
		return w.Flush()
	}
	return nil
}

func runBudgetOptimize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	opts, err := a.budget.Optimizations(ctx)
	if err != nil {
		return err
	}
	if len(opts) == 0 {
		fmt.Println("No spend in the last 30 days.")
		return nil
	}
	for i, o := range opts {
		fmt.Printf("%d. [%s] %s\n   saves ~$%.2f, effort %s\n", i+1, o.Kind, o.Description, o.EstimatedSavings, o.Effort)
	}
	return nil
}

func runBudgetAlerts(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	alerts, err := a.budget.RecentAlerts(ctx, alertLimit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Println("No alerts.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSEVERITY\tMESSAGE")
	for _, al := range alerts {
		fmt.Fprintf(w, "%s\t%s\t%s\n", al.Timestamp.Local().Format("2006-01-02 15:04"), al.Severity, al.Message)
	}
	return w.Flush()
}
