package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/roessland/wearabledump/garmin"
	"github.com/roessland/wearabledump/oura"
	"github.com/roessland/wearabledump/pkg/output"
)

var (
	scheduleSpec    string
	scheduleVendors []string
	scheduleNow     bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Export yesterday's data on a cron schedule",
	Long: `Run until interrupted and export yesterday's data for the selected vendors
whenever the cron expression fires. The expression has a seconds field, e.g.
"0 30 6 * * *" runs every day at 06:30.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		vendors, err := parseVendors(scheduleVendors)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		e, err := setupEnv(jsonMode)
		if err != nil {
			return err
		}
		defer e.Close()

		logger := e.ol.Component("schedule")
		task := func() {
			exportYesterday(ctx, e, vendors)
		}

		c := cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cronLogger{logger}),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})),
		)
		id, err := c.AddFunc(scheduleSpec, task)
		if err != nil {
			return fmt.Errorf("register export task: %w", err)
		}

		c.Start()
		e.presentation.ShowStatus("Scheduler started (%s) for %s", scheduleSpec, strings.Join(vendors, ", "))
		logger.Info("scheduler started", "spec", scheduleSpec, "vendors", vendors)

		if scheduleNow {
			// Through the chain so a cron tick cannot overlap this run
			c.Entry(id).WrappedJob.Run()
		}

		<-ctx.Done()
		e.presentation.ShowProgress("Stopping scheduler...")
		<-c.Stop().Done()
		logger.Info("scheduler stopped")
		return nil
	},
}

// exportYesterday runs every vendor in turn. A failing vendor does not stop
// the others.
func exportYesterday(ctx context.Context, e *runEnv, vendors []string) {
	w, err := resolveWindow(downloadFlags{yesterday: true}, time.Now())
	if err != nil {
		e.presentation.ShowError(err, "Failed to resolve date")
		return
	}

	for _, vendor := range vendors {
		if ctx.Err() != nil {
			return
		}
		switch vendor {
		case garmin.Vendor:
			err = runJob(ctx, e, garminJob(e), w)
		case oura.Vendor:
			err = runJob(ctx, e, ouraJob(e), w)
		}
		if err != nil {
			e.ol.Logger.Error("scheduled export failed", "vendor", vendor, "error", err)
		}
	}
}

// parseVendors accepts "garmin,oura" style lists and rejects unknown names
func parseVendors(raw []string) ([]string, error) {
	var vendors []string
	seen := make(map[string]bool)
	for _, item := range raw {
		for _, v := range strings.Split(item, ",") {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "" || seen[v] {
				continue
			}
			if v != garmin.Vendor && v != oura.Vendor {
				return nil, fmt.Errorf("unknown vendor %q (use %s or %s)", v, garmin.Vendor, oura.Vendor)
			}
			seen[v] = true
			vendors = append(vendors, v)
		}
	}
	if len(vendors) == 0 {
		return nil, fmt.Errorf("no vendor selected")
	}
	return vendors, nil
}

// cronLogger routes cron's own logging into the structured log
type cronLogger struct {
	l output.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleSpec, "cron", "0 0 6 * * *", "Cron expression with seconds field")
	scheduleCmd.Flags().StringSliceVar(&scheduleVendors, "vendors", []string{garmin.Vendor, oura.Vendor}, "Vendors to export")
	scheduleCmd.Flags().BoolVar(&scheduleNow, "now", false, "Also export once immediately")
}
