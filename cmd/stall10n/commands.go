package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/stall10n/internal/api"
	"github.com/yourusername/stall10n/internal/health"
	"github.com/yourusername/stall10n/internal/models"
	"github.com/yourusername/stall10n/internal/scheduler"
)

const commandTimeout = 30 * time.Second

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the capture scheduler, API and health server until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMonitor(cmd.Context())
	},
}

var passCmd = &cobra.Command{
	Use:   "pass",
	Short: "Run a single capture pass now and print the report",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			report, err := a.runner.RunPass(ctx, time.Now())
			if err != nil {
				return err
			}
			return printJSON(report)
		})
	},
}

var enableCmd = &cobra.Command{
	Use:   "enable <race-id> <external-id> <post-time>",
	Short: "Enable odds monitoring for a race (post time in RFC3339)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRaceID(args[0])
		if err != nil {
			return err
		}
		post, err := time.Parse(time.RFC3339, args[2])
		if err != nil {
			return fmt.Errorf("invalid post time %q: %w", args[2], err)
		}
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			changed, err := a.monitoring.EnableMonitoring(ctx, id, args[1], post)
			if err != nil {
				return err
			}
			if changed {
				fmt.Printf("Monitoring enabled for %s (post %s)\n", id, post.UTC().Format(time.RFC3339))
			} else {
				fmt.Printf("Monitoring already enabled for %s\n", id)
			}
			return nil
		})
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable <race-id>",
	Short: "Stop monitoring a race",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRaceID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			return a.monitoring.DisableMonitoring(ctx, id)
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <race-id>",
	Short: "Print captured odds and movement for a race",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRaceID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			history, err := a.monitoring.History(ctx, id)
			if err != nil {
				return err
			}
			return printJSON(history)
		})
	},
}

var recommendAll bool

var recommendCmd = &cobra.Command{
	Use:   "recommend <race-id>",
	Short: "Print the ranked probability and edge table for a race",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRaceID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			if recommendAll {
				results, err := a.monitoring.RecommendationHistory(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(results)
			}
			results, err := a.monitoring.Recommendations(ctx, id)
			if err != nil {
				return err
			}
			printTable(results)
			return nil
		})
	},
}

var oddsCmd = &cobra.Command{
	Use:   "odds <race-id>",
	Short: "Print the race's live odds board for the current interval",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRaceID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			live, err := a.monitoring.LiveOdds(ctx, id)
			if err != nil {
				return err
			}
			return printJSON(live)
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print quota usage and today's capture summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			status, err := a.monitoring.Status(ctx)
			if err != nil {
				return err
			}
			return printJSON(status)
		})
	},
}

var summaryDate string

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print the capture summary for a racing day",
	RunE: func(cmd *cobra.Command, args []string) error {
		loc := cfg.Scheduler.Location()
		day := time.Now().In(loc)
		if summaryDate != "" {
			d, err := time.ParseInLocation("2006-01-02", summaryDate, loc)
			if err != nil {
				return fmt.Errorf("invalid date %q: %w", summaryDate, err)
			}
			day = d
		}
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			summary, err := a.monitoring.DailySummary(ctx, day)
			if err != nil {
				return err
			}
			return printJSON(summary)
		})
	},
}

func init() {
	summaryCmd.Flags().StringVar(&summaryDate, "date", "", "Racing day as YYYY-MM-DD (default today)")
	recommendCmd.Flags().BoolVar(&recommendAll, "all", false, "Include superseded tables as JSON")
}

func withApp(ctx context.Context, fn func(context.Context, *app) error) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func runMonitor(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	appLog.WithFields(logrus.Fields{
		"environment": cfg.App.Environment,
		"version":     Version,
		"dry_run":     dryRun,
		"intervals":   cfg.Scheduler.Intervals,
		"quota_limit": cfg.Quota.DailyLimit,
	}).Info("STALL10N odds monitor starting")

	hub := api.NewHub(appLog)
	a.recommendations.SetPublisher(hub)

	sched := scheduler.NewScheduler(a.runner, cfg.Scheduler.Location(), appLog)
	if err := sched.ScheduleCapturePasses(cfg.Scheduler.PollIntervalSeconds); err != nil {
		return err
	}
	if cfg.Scheduler.SummaryCron != "" {
		if err := sched.ScheduleDailySummary(cfg.Scheduler.SummaryCron, a.monitoring.RunDailySummary); err != nil {
			return err
		}
	}

	healthSrv := health.NewServer(a.healthChecks())
	if err := healthSrv.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	if cfg.API.Enabled {
		metricsPath := ""
		if cfg.Metrics.Enabled {
			metricsPath = cfg.Metrics.Path
		}
		srv := api.NewServer(api.Config{
			Port:           cfg.API.Port,
			AllowedOrigins: cfg.API.AllowedOrigins,
			MetricsPath:    metricsPath,
		}, a.monitoring, hub, appLog)
		g.Go(func() error {
			return srv.Start(gctx)
		})
	}

	if err := sched.Start(); err != nil {
		return err
	}
	healthSrv.SetReady(true)
	appLog.WithFields(logrus.Fields{
		"next_pass": sched.GetNextRun(),
		"jobs":      len(sched.Entries()),
	}).Info("Scheduler started")

	<-gctx.Done()
	appLog.Info("Shutdown signal received")
	healthSrv.SetReady(false)

	if err := sched.Stop(); err != nil {
		appLog.WithError(err).Error("Error stopping scheduler")
	}
	if report := sched.LastReport(); report != nil {
		appLog.WithFields(report.Fields()).Info("Last capture pass")
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	appLog.Info("STALL10N odds monitor shut down")
	return nil
}

func parseRaceID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", models.ErrInvalidID, s)
	}
	return id, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTable(results []*models.ProbabilityResult) {
	if len(results) == 0 {
		fmt.Println("No entries to rank")
		return
	}
	source := "morning line"
	if results[0].SourceInterval != nil {
		source = results[0].SourceInterval.String()
	}
	fmt.Printf("Odds source: %s (computed %s)\n\n", source, results[0].ComputedAt.Format(time.RFC3339))

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "RANK\t#\tPROB\tFAIR\tIMPLIED\tEDGE\tSTAKE\tEV\t")
	for _, r := range results {
		fmt.Fprintf(tw, "%d\t%d\t%.1f%%\t%s\t%.1f%%\t%+.1f%%\t%.2f\t%+.3f\t\n",
			r.Rank, r.ProgramNumber, r.Probability*100, r.FairOdds,
			r.ImpliedProbability*100, r.Edge*100, r.Stake, r.ExpectedValue)
	}
	_ = tw.Flush()
}
