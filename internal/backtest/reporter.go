package backtest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GenerateConsoleReport formats metrics for terminal output
func GenerateConsoleReport(report *Report) string {
	m := report.Metrics
	var builder strings.Builder
	builder.WriteString("Backtest Report\n")
	builder.WriteString("================\n")
	builder.WriteString(fmt.Sprintf("Period: %s to %s\n", m.StartDate.Format("2006-01-02"), m.EndDate.Format("2006-01-02")))
	builder.WriteString(fmt.Sprintf("Races Settled: %d (skipped %d)\n", m.Races, report.Skipped))
	builder.WriteString(fmt.Sprintf("Bets: %d (won %d)\n", m.TotalBets, m.WinningBets))
	builder.WriteString(fmt.Sprintf("Staked: %.2f\n", m.TotalStaked))
	builder.WriteString(fmt.Sprintf("Net Profit: %.2f\n", m.NetProfit))
	builder.WriteString(fmt.Sprintf("ROI: %.2f%%\n", m.ROI*100))
	builder.WriteString(fmt.Sprintf("Win Rate: %.2f%%\n", m.WinRate*100))
	builder.WriteString(fmt.Sprintf("Profit Factor: %.2f\n", m.ProfitFactor))
	builder.WriteString(fmt.Sprintf("Max Drawdown: %.2f%%\n", m.MaxDrawdown*100))
	builder.WriteString(fmt.Sprintf("Top Pick Win Rate: %.2f%%\n", m.TopPickWinRate*100))
	builder.WriteString(fmt.Sprintf("Brier Score: %.4f\n", m.BrierScore))
	builder.WriteString(fmt.Sprintf("Log Loss: %.4f\n", m.LogLoss))
	return builder.String()
}

// GenerateCSVExport writes the settled bets for spreadsheets
func GenerateCSVExport(report *Report, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("race_id,post_time,program_number,probability,decimal_odds,stake,won,return,profit_loss\n")
	for _, bet := range report.Bets {
		b.WriteString(fmt.Sprintf("%s,%s,%d,%.4f,%.2f,%.2f,%t,%.2f,%.2f\n",
			bet.RaceID, bet.PostTime.Format("2006-01-02T15:04:05Z07:00"), bet.ProgramNumber,
			bet.Probability, bet.DecimalOdds, bet.Stake, bet.Won, bet.Return, bet.ProfitLoss))
	}
	return os.WriteFile(outputPath, []byte(b.String()), 0o644)
}
