package dump

import (
	"time"

	"github.com/roessland/wearabledump/pkg/output"
)

// PresentationService handles all presentation logic. It also serves as the
// downloader's Reporter.
type PresentationService struct {
	ol    *output.OutputLogger
	icons *MetricIconDetector
}

// NewPresentationService creates a new presentation service
func NewPresentationService(ol *output.OutputLogger) *PresentationService {
	return &PresentationService{ol: ol, icons: NewMetricIconDetector()}
}

// DayStarted displays a day header
func (ps *PresentationService) DayStarted(vendor string, day time.Time) {
	ps.ol.DayHeader(vendor, day)
}

// MetricFetched displays the result of fetching one metric
func (ps *PresentationService) MetricFetched(vendor string, day time.Time, result MetricResult) {
	info := output.MetricInfo{
		Name:     result.Metric,
		Icon:     ps.icons.DetectMetricIcon(result.Metric),
		Attempts: result.Attempts,
	}

	switch result.Outcome {
	case OutcomeSuccess:
		info.State = output.StateFetched
	case OutcomeDegraded:
		info.State = output.StateDegraded
		info.Detail = result.Reason
	default:
		info.State = output.StateFailed
		if result.Err != nil {
			info.Detail = result.Err.Error()
		}
	}

	ps.ol.MetricLine(info)
}

// DayFinished reports captured problems of a day
func (ps *PresentationService) DayFinished(vendor string, record *DayRecord, err error) {
	if err != nil {
		ps.ol.Warning("%s %s stopped early: %v", vendor, record.Date, err)
		return
	}
	for _, msg := range record.Errors {
		ps.ol.Warning("%s %s: %s", vendor, record.Date, msg)
	}
}

// ShowProgress displays a progress message
func (ps *PresentationService) ShowProgress(msg string, args ...any) {
	ps.ol.Progress(msg, args...)
}

// ShowStatus displays a status message
func (ps *PresentationService) ShowStatus(msg string, args ...any) {
	ps.ol.Status(msg, args...)
}

// ShowWarning displays a non-fatal problem
func (ps *PresentationService) ShowWarning(msg string, args ...any) {
	ps.ol.Warning(msg, args...)
}

// ShowError logs and displays an error
func (ps *PresentationService) ShowError(err error, msg string, args ...any) {
	ps.ol.LogAndShowError(err, msg, args...)
}

// ShowDayResults displays the outcome of a single-day run
func (ps *PresentationService) ShowDayResults(record *DayRecord, result RunResult) {
	if result.Path == "" {
		return
	}
	if result.Partial {
		ps.ol.Result("Saved %s with %d errors to %s", record.Date, len(record.Errors), result.Path)
		return
	}
	ps.ol.Result("Saved %s to %s", record.Date, result.Path)
}

// ShowDayHighlights displays the headline numbers of a saved day
func (ps *PresentationService) ShowDayHighlights(record *DayRecord, items []output.Highlight) {
	ps.ol.DayHighlights(record.Vendor, record.Date, items)
}

// ShowRangeResults displays the final range summary
func (ps *PresentationService) ShowRangeResults(record *RangeRecord, result RunResult) {
	ps.ol.Result("Download complete: %d days, %d succeeded, %d failed",
		record.Summary.Total, record.Summary.Succeeded, record.Summary.Failed)
	if result.Path != "" {
		ps.ol.Status("Saved to %s", result.Path)
	}
}

// ShowJSONResults outputs structured JSON results
func (ps *PresentationService) ShowJSONResults(vendor string, start, end time.Time, summary Summary, result RunResult, jsonMode bool) {
	if jsonMode {
		_ = ps.ol.JSON(map[string]any{
			"vendor":  vendor,
			"summary": summary,
			"date_range": map[string]string{
				"since": FormatDate(start),
				"until": FormatDate(end),
			},
			"path":    result.Path,
			"partial": result.Partial,
		})
	}
}
