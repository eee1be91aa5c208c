package dump

import (
	"strings"
)

const defaultMetricIcon = "📄"

// MetricIconDetector picks an emoji for a metric name
type MetricIconDetector struct {
	exact    map[string]string
	keywords []iconKeyword
}

type iconKeyword struct {
	icon     string
	keywords []string
}

// NewMetricIconDetector creates a detector with the predefined icons
func NewMetricIconDetector() *MetricIconDetector {
	return &MetricIconDetector{
		exact: map[string]string{
			"profile":       "👤",
			"personal_info": "👤",
			"body_battery":  "🔋",
			"hrv":           "📈",
		},
		// Checked in order, first hit wins
		keywords: []iconKeyword{
			{"😴", []string{"sleep"}},
			{"❤️", []string{"heart", "pulse"}},
			{"😰", []string{"stress"}},
			{"⚡", []string{"readiness"}},
			{"🏃", []string{"activit", "workout", "summary", "steps"}},
			{"🧘", []string{"session", "meditation"}},
			{"🏷️", []string{"tag"}},
			{"💍", []string{"ring"}},
			{"⌚", []string{"device"}},
		},
	}
}

// DetectMetricIcon returns the icon for a metric, or a generic document icon
func (d *MetricIconDetector) DetectMetricIcon(metric string) string {
	metric = strings.ToLower(metric)

	if icon, ok := d.exact[metric]; ok {
		return icon
	}

	for _, k := range d.keywords {
		for _, keyword := range k.keywords {
			if strings.Contains(metric, keyword) {
				return k.icon
			}
		}
	}

	return defaultMetricIcon
}
