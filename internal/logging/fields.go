// Package logging provides the structured logger and shared field names.
package logging

import (
	"log/slog"
	"time"
)

// Common field names for consistent logging across packages.
const (
	FieldRunID    = "run_id"
	FieldSource   = "source"
	FieldMode     = "mode"
	FieldLines    = "lines_read"
	FieldMatched  = "lines_matched"
	FieldRecords  = "records"
	FieldThreats  = "threats"
	FieldVerdict  = "verdict"
	FieldSink     = "sink"
	FieldWorkers  = "workers"
	FieldDuration = "duration_ms"
	FieldError    = "error"
)

// RunID returns a slog attribute for the analysis run ID.
func RunID(id string) slog.Attr {
	return slog.String(FieldRunID, id)
}

// Source returns a slog attribute for the input source name.
func Source(name string) slog.Attr {
	return slog.String(FieldSource, name)
}

// Mode returns a slog attribute for the parse mode.
func Mode(mode string) slog.Attr {
	return slog.String(FieldMode, mode)
}

// Lines returns a slog attribute for the number of lines read.
func Lines(n int) slog.Attr {
	return slog.Int(FieldLines, n)
}

// Matched returns a slog attribute for the number of matching lines.
func Matched(n int) slog.Attr {
	return slog.Int(FieldMatched, n)
}

// Records returns a slog attribute for a record count.
func Records(n int) slog.Attr {
	return slog.Int(FieldRecords, n)
}

// Threats returns a slog attribute for a threat count.
func Threats(n int64) slog.Attr {
	return slog.Int64(FieldThreats, n)
}

// Verdict returns a slog attribute for a verdict label.
func Verdict(v string) slog.Attr {
	return slog.String(FieldVerdict, v)
}

// Sink returns a slog attribute naming an output sink.
func Sink(name string) slog.Attr {
	return slog.String(FieldSink, name)
}

// Workers returns a slog attribute for the worker count.
func Workers(n int) slog.Attr {
	return slog.Int(FieldWorkers, n)
}

// Duration returns a slog attribute for an elapsed time in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}
