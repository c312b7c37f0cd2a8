package domain

import (
	"errors"
	"strings"
	"time"
)

// dateLayouts are the date encodings seen in scraped rows, tried in order.
var dateLayouts = []string{
	DateLayout,
	"2006/01/02",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	time.RFC3339,
	"20060102",
	"2006.01.02",
}

var errUnparseableDate = errors.New("unparseable date")

// NormalizeResult is the output of NormalizeRows.
type NormalizeResult struct {
	Rows     []NormalizedRow
	Warnings []Warning
	// Dates holds every date parsed from the input, including dates whose
	// rows all failed city resolution, so their snapshots stay in the index.
	Dates []string
	// Rejected counts dropped rows by reason.
	Rejected map[string]int
}

// NormalizeRows validates and cleans raw rows. A bad row never fails the
// batch: it is dropped (bad date, unresolved or unplaceable city) or kept with the sentinel
// level (unknown level text), and recorded as a warning.
func NormalizeRows(rows []MeasurementRow, resolver CityResolver) NormalizeResult {
	res := NormalizeResult{
		Rows:     make([]NormalizedRow, 0, len(rows)),
		Rejected: make(map[string]int),
	}
	seenDates := make(map[string]struct{})

	for i, raw := range rows {
		line := raw.Line
		if line == 0 {
			line = i + 1
		}

		date, err := ParseDate(raw.Date)
		if err != nil {
			res.reject(&RowValidationError{Line: line, City: raw.City, Date: raw.Date, Reason: ReasonBadDate, Err: err})
			continue
		}
		key := date.Format(DateLayout)
		if _, ok := seenDates[key]; !ok {
			seenDates[key] = struct{}{}
			res.Dates = append(res.Dates, key)
		}

		city, ok := resolveCity(resolver, raw)
		if !ok {
			res.reject(&RowValidationError{Line: line, City: raw.City, Date: key, Reason: ReasonUnresolvedCity})
			continue
		}
		if !city.HasCoordinates() {
			res.reject(&RowValidationError{Line: line, City: city.Name, Date: key, Reason: ReasonNoCoordinates})
			continue
		}

		level, known := ParseLevel(raw.Level)
		if !known {
			res.Warnings = append(res.Warnings, Warning{
				Reason: ReasonUnknownLevel,
				Line:   line,
				City:   city.Name,
				Date:   key,
				Detail: raw.Level,
			})
		}

		res.Rows = append(res.Rows, NormalizedRow{
			City:    city,
			Date:    date,
			Level:   level,
			Message: strings.TrimSpace(raw.Message),
		})
	}
	return res
}

func (r *NormalizeResult) reject(e *RowValidationError) {
	r.Rejected[e.Reason]++
	r.Warnings = append(r.Warnings, WarningFrom(e))
}

// resolveCity tries the city text first, then the pinyin code. The code
// fallback mirrors the scraper, which sometimes leaves the city column empty.
func resolveCity(resolver CityResolver, raw MeasurementRow) (CanonicalCity, bool) {
	if resolver == nil {
		return CanonicalCity{}, false
	}
	if name := strings.TrimSpace(raw.City); name != "" {
		if c, ok := resolver.Resolve(name); ok {
			return c, true
		}
	}
	if code := strings.TrimSpace(raw.CityCode); code != "" {
		return resolver.Resolve(code)
	}
	return CanonicalCity{}, false
}

// ParseDate parses a calendar date in any of the accepted layouts and returns
// it truncated to midnight UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errUnparseableDate
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, errUnparseableDate
}
