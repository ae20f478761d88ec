package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/yourusername/stall10n/internal/backtest"
)

var resultsCmd = &cobra.Command{
	Use:     "results <race-id> <program:position[:payoff]>...",
	Short:   "Record official finishes for a race (payoff is the $2 win payoff)",
	Example: `  stall10n results 6f1c2a4e-9b7d-4c2e-8a51-3d0f7b9e2c10 3:1:8.40 7:2 2:3`,
	Args:    cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRaceID(args[0])
		if err != nil {
			return err
		}
		finishes := make([]backtest.Finish, 0, len(args)-1)
		for _, arg := range args[1:] {
			f, err := parseFinish(arg)
			if err != nil {
				return err
			}
			finishes = append(finishes, f)
		}
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			return a.settler.RecordResults(ctx, id, finishes)
		})
	},
}

var (
	backtestFrom string
	backtestTo   string
	backtestCSV  string
	equityCSV    string
	backtestJSON bool
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Settle stored recommendations against recorded results",
	RunE: func(cmd *cobra.Command, args []string) error {
		loc := cfg.Scheduler.Location()
		to := time.Now().In(loc)
		to = time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
		from := to.AddDate(0, 0, -7)

		var err error
		if backtestFrom != "" {
			if from, err = time.ParseInLocation("2006-01-02", backtestFrom, loc); err != nil {
				return fmt.Errorf("invalid --from: %w", err)
			}
		}
		if backtestTo != "" {
			if to, err = time.ParseInLocation("2006-01-02", backtestTo, loc); err != nil {
				return fmt.Errorf("invalid --to: %w", err)
			}
			to = to.AddDate(0, 0, 1)
		}
		if !from.Before(to) {
			return fmt.Errorf("--from must be before --to")
		}

		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			report, err := a.settler.Evaluate(ctx, from, to)
			if err != nil {
				return err
			}
			if backtestCSV != "" {
				if err := backtest.GenerateCSVExport(report, backtestCSV); err != nil {
					return fmt.Errorf("failed to write csv: %w", err)
				}
			}
			if equityCSV != "" {
				if err := os.WriteFile(equityCSV, []byte(report.Equity.ToCSV()), 0o644); err != nil {
					return fmt.Errorf("failed to write equity curve: %w", err)
				}
			}
			if backtestJSON {
				return printJSON(report)
			}
			fmt.Print(backtest.GenerateConsoleReport(report))
			return nil
		})
	},
}

func init() {
	backtestCmd.Flags().StringVar(&backtestFrom, "from", "", "First racing day, YYYY-MM-DD (default seven days ago)")
	backtestCmd.Flags().StringVar(&backtestTo, "to", "", "Last racing day, YYYY-MM-DD inclusive (default today)")
	backtestCmd.Flags().StringVar(&backtestCSV, "csv", "", "Write settled bets to this CSV file")
	backtestCmd.Flags().StringVar(&equityCSV, "equity-csv", "", "Write the equity curve to this CSV file")
	backtestCmd.Flags().BoolVar(&backtestJSON, "json", false, "Print the full report as JSON")
}

func parseFinish(arg string) (backtest.Finish, error) {
	parts := strings.Split(arg, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return backtest.Finish{}, fmt.Errorf("invalid result %q, want program:position[:payoff]", arg)
	}
	program, err := strconv.Atoi(parts[0])
	if err != nil {
		return backtest.Finish{}, fmt.Errorf("invalid program number in %q", arg)
	}
	position, err := strconv.Atoi(parts[1])
	if err != nil {
		return backtest.Finish{}, fmt.Errorf("invalid finish position in %q", arg)
	}
	f := backtest.Finish{ProgramNumber: program, FinishPosition: position}
	if len(parts) == 3 {
		payoff, err := decimal.NewFromString(parts[2])
		if err != nil {
			return backtest.Finish{}, fmt.Errorf("invalid payoff in %q: %w", arg, err)
		}
		f.WinPayoff = &payoff
	}
	return f, nil
}
