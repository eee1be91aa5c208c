package dump

import (
	"context"
	"fmt"
	"time"
)

const partialSuffix = "_partial"

// DayFileName returns <vendor>_data_<date>[_partial].json
func DayFileName(vendor string, day time.Time, partial bool) string {
	return fileName(fmt.Sprintf("%s_data_%s", vendor, FormatDate(day)), partial)
}

// RangeFileName returns <vendor>_bulk_<start>_to_<end>[_partial].json
func RangeFileName(vendor string, start, end time.Time, partial bool) string {
	return fileName(fmt.Sprintf("%s_bulk_%s_to_%s", vendor, FormatDate(start), FormatDate(end)), partial)
}

func fileName(base string, partial bool) string {
	if partial {
		base += partialSuffix
	}
	return base + ".json"
}

// RunResult describes where a finished run was persisted.
type RunResult struct {
	Path    string
	Partial bool
}

// RunDay downloads one day and hands the record to the sink. The record is
// returned even when saving fails.
func (d *Downloader[S]) RunDay(ctx context.Context, session S, day time.Time, sink Sink) (*DayRecord, RunResult, error) {
	record, err := d.DownloadDay(ctx, session, day)
	if err != nil {
		// Nothing else surfaces a fatal metric in single-day mode
		record.Errors = append(record.Errors, err.Error())
	}

	name := DayFileName(d.vendor, day, false)
	partialName := DayFileName(d.vendor, day, true)
	result, saveErr := d.persist(ctx, sink, record, name, partialName, record.Failed())
	return record, result, saveErr
}

// RunRange downloads [start, end] and hands the range record to the sink.
func (d *Downloader[S]) RunRange(ctx context.Context, session S, start, end time.Time, sink Sink) (*RangeRecord, RunResult, error) {
	record, err := d.DownloadRange(ctx, session, start, end)
	if err != nil {
		return nil, RunResult{}, err
	}

	name := RangeFileName(d.vendor, start, end, false)
	partialName := RangeFileName(d.vendor, start, end, true)
	result, saveErr := d.persist(ctx, sink, record, name, partialName, record.Failed())
	return record, result, saveErr
}

// persist saves record under name, or partialName when the record carries
// errors. If the save fails the record is written once more under
// partialName and the original failure is returned as *PersistenceError.
func (d *Downloader[S]) persist(ctx context.Context, sink Sink, record any, name, partialName string, partial bool) (RunResult, error) {
	target := name
	if partial {
		target = partialName
	}

	path, err := sink.Save(ctx, record, target)
	if err == nil {
		d.logger.Info("record saved", "path", path, "partial", partial)
		return RunResult{Path: path, Partial: partial}, nil
	}

	d.logger.Error("failed to save record", "file", target, "error", err)
	if target != partialName {
		fallbackPath, fallbackErr := sink.Save(ctx, record, partialName)
		if fallbackErr == nil {
			d.logger.Warn("partial record saved after failure", "path", fallbackPath)
			return RunResult{Path: fallbackPath, Partial: true}, &PersistenceError{FileName: target, Err: err}
		}
		d.logger.Error("failed to save partial record", "file", partialName, "error", fallbackErr)
	}
	return RunResult{}, &PersistenceError{FileName: target, Err: err}
}
