package domain

import (
	"errors"
	"fmt"
)

// Row rejection reasons, also used as metric labels.
const (
	ReasonBadDate        = "bad_date"
	ReasonUnresolvedCity = "unresolved_city"
	ReasonNoCoordinates  = "missing_coordinates"
	ReasonUnknownLevel   = "unknown_level"
)

// ErrNoEntries is returned when the repair extractor recovers nothing.
var ErrNoEntries = errors.New("no entries recovered")

// RowValidationError describes a row dropped by the normalizer.
type RowValidationError struct {
	Line   int
	City   string
	Date   string
	Reason string
	Err    error
}

func (e *RowValidationError) Error() string {
	msg := fmt.Sprintf("row %d (city=%q date=%q): %s", e.Line, e.City, e.Date, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RowValidationError) Unwrap() error { return e.Err }

// Warning is a non-fatal problem recorded during a run.
type Warning struct {
	Reason string `json:"reason"`
	Line   int    `json:"line,omitempty"`
	City   string `json:"city,omitempty"`
	Date   string `json:"date,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// WarningFrom converts a RowValidationError into a report warning.
func WarningFrom(e *RowValidationError) Warning {
	w := Warning{Reason: e.Reason, Line: e.Line, City: e.City, Date: e.Date}
	if e.Err != nil {
		w.Detail = e.Err.Error()
	}
	return w
}

// RenderError is fatal for a single document and nothing else.
type RenderError struct {
	Date string
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Date, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// ExtractionError is returned by the repair tool when a document cannot be
// recovered. Recovered is always zero for a failed extraction; it is carried
// so operators see the count explicitly.
type ExtractionError struct {
	Source    string
	Recovered int
	Err       error
}

func (e *ExtractionError) Error() string {
	src := e.Source
	if src == "" {
		src = "document"
	}
	return fmt.Sprintf("extract %s: recovered %d entries: %v", src, e.Recovered, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
