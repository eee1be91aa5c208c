package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roessland/wearabledump/history"
	"github.com/roessland/wearabledump/pkg/output"
)

var (
	historyVendor string
	historyLimit  int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent download runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ol, err := output.New(jsonMode, viper.GetString("log_file"))
		if err != nil {
			return fmt.Errorf("failed to create output system: %w", err)
		}

		dbPath := viper.GetString("history_db")
		if dbPath == "" {
			ol.Warning("History is disabled, set history_db to enable it")
			return nil
		}
		rec, err := history.NewSQLiteRecorder(dbPath, ol.Slog("history"))
		if err != nil {
			ol.LogAndShowError(err, "Failed to open history database %s", dbPath)
			return err
		}
		defer rec.Close()

		runs, err := rec.ListRuns(cmd.Context(), historyVendor, historyLimit)
		if err != nil {
			ol.LogAndShowError(err, "Failed to list runs")
			return err
		}

		if ol.JSONMode() {
			return ol.JSON(runs)
		}
		if len(runs) == 0 {
			ol.Progress("No runs recorded yet")
			return nil
		}
		return pterm.DefaultTable.WithHasHeader().WithData(historyTable(runs)).Render()
	},
}

// historyTable lays out runs newest first, one row each
func historyTable(runs []history.RunEntry) pterm.TableData {
	data := pterm.TableData{
		{"Started", "Vendor", "Mode", "Dates", "Days", "OK", "Failed", "Duration", "Result"},
	}
	for _, r := range runs {
		dates := r.Start
		if r.End != "" && r.End != r.Start {
			dates += " → " + r.End
		}
		data = append(data, []string{
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Vendor,
			r.Mode,
			dates,
			strconv.Itoa(r.Total),
			strconv.Itoa(r.Succeeded),
			strconv.Itoa(r.Failed),
			r.Duration().Round(time.Second).String(),
			runOutcome(r),
		})
	}
	return data
}

func runOutcome(r history.RunEntry) string {
	switch {
	case r.Error != "":
		return "❌ " + r.Error
	case r.Partial:
		return fmt.Sprintf("⚠️  partial (%d errors)", r.ErrorCount)
	default:
		return "✅ " + r.Path
	}
}

func init() {
	historyCmd.Flags().StringVar(&historyVendor, "vendor", "", "Only show runs of this vendor")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of runs to show")
}
