package garmin

import (
	"fmt"

	"github.com/roessland/wearabledump/dump"
	"github.com/roessland/wearabledump/pkg/output"
)

// Highlights picks the headline numbers out of a downloaded day. Metrics
// that are missing or degraded are left out.
func Highlights(record *dump.DayRecord) []output.Highlight {
	var items []output.Highlight
	add := func(label, value string) {
		items = append(items, output.Highlight{Label: label, Value: value})
	}

	summary := record.Metrics["daily_summary"]
	if n, ok := dump.Number(summary, "totalSteps"); ok {
		add("Steps", dump.Round(n))
	}
	if n, ok := dump.FirstNumber(summary, []string{"totalKilocalories"}, []string{"activeKilocalories"}); ok {
		add("Calories", dump.Round(n)+" kcal")
	}
	if n, ok := dump.Number(summary, "totalDistanceMeters"); ok {
		add("Distance", fmt.Sprintf("%.2f km", n/1000))
	}
	if n, ok := dump.FirstNumber(summary, []string{"activeTimeInSeconds"}, []string{"highlyActiveSeconds"}); ok {
		add("Active", dump.Round(n/60)+" min")
	}

	hr := record.Metrics["heart_rate"]
	if n, ok := dump.Number(hr, "restingHeartRate"); ok {
		add("Resting HR", dump.Round(n)+" bpm")
	}
	lo, okLo := dump.Number(hr, "minHeartRate")
	hi, okHi := dump.Number(hr, "maxHeartRate")
	if okLo && okHi {
		add("HR range", dump.Round(lo)+"-"+dump.Round(hi)+" bpm")
	}

	sleep, _ := dump.Lookup(record.Metrics["sleep"], "dailySleepDTO")
	if n, ok := dump.Number(sleep, "sleepTimeSeconds"); ok {
		add("Sleep", hours(n))
	}
	deep, okDeep := dump.Number(sleep, "deepSleepSeconds")
	light, okLight := dump.Number(sleep, "lightSleepSeconds")
	rem, okREM := dump.Number(sleep, "remSleepSeconds")
	if okDeep && okLight && okREM {
		add("Sleep stages", fmt.Sprintf("deep %s, light %s, REM %s", hours(deep), hours(light), hours(rem)))
	}

	stress := record.Metrics["stress"]
	if n, ok := dump.FirstNumber(stress, []string{"avgStressLevel"}, []string{"overallStressLevel"}); ok {
		add("Avg stress", dump.Round(n))
	}
	if n, ok := dump.Number(stress, "maxStressLevel"); ok {
		add("Max stress", dump.Round(n))
	}

	return items
}

func hours(seconds float64) string {
	return fmt.Sprintf("%.1f h", seconds/3600)
}
