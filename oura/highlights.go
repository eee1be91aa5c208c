package oura

import (
	"fmt"

	"github.com/roessland/wearabledump/dump"
	"github.com/roessland/wearabledump/pkg/output"
)

// Highlights picks scores and totals out of a downloaded day
func Highlights(record *dump.DayRecord) []output.Highlight {
	var items []output.Highlight
	add := func(label, value string) {
		items = append(items, output.Highlight{Label: label, Value: value})
	}
	score := func(label, metric string) {
		if n, ok := dump.Number(record.Metrics[metric], "score"); ok {
			add(label, dump.Round(n))
		}
	}

	score("Sleep score", "daily_sleep")
	score("Readiness score", "daily_readiness")
	score("Activity score", "daily_activity")

	activity := record.Metrics["daily_activity"]
	if n, ok := dump.Number(activity, "steps"); ok {
		add("Steps", dump.Round(n))
	}
	if n, ok := dump.Number(activity, "active_calories"); ok {
		add("Active calories", dump.Round(n)+" kcal")
	}
	if n, ok := dump.Number(activity, "equivalent_walking_distance"); ok {
		add("Distance", fmt.Sprintf("%.2f km", n/1000))
	}

	// A day can hold a nap next to the main sleep
	periods, _ := record.Metrics["sleep"].([]any)
	var slept float64
	found := false
	for _, period := range periods {
		if n, ok := dump.Number(period, "total_sleep_duration"); ok {
			slept += n
			found = true
		}
	}
	if found {
		add("Sleep", fmt.Sprintf("%.1f h", slept/3600))
	}

	stress := record.Metrics["daily_stress"]
	if n, ok := dump.Number(stress, "stress_high"); ok {
		add("High stress", dump.Round(n/60)+" min")
	}
	if n, ok := dump.Number(stress, "recovery_high"); ok {
		add("Recovery", dump.Round(n/60)+" min")
	}

	return items
}
