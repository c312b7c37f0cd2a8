package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// BuildSnapshots groups normalized rows by date. Within a date the last row
// for a city wins, while the city keeps the position of its first row. Every
// date in requested yields a snapshot even when no rows reference it.
// Snapshots are returned in ascending date order.
func BuildSnapshots(rows []NormalizedRow, requested []string) []Snapshot {
	type bucket struct {
		entries []Entry
		index   map[string]int // city id -> position in entries
	}
	buckets := make(map[string]*bucket)
	get := func(date string) *bucket {
		b, ok := buckets[date]
		if !ok {
			b = &bucket{index: make(map[string]int)}
			buckets[date] = b
		}
		return b
	}

	for _, d := range requested {
		get(d)
	}
	for _, r := range rows {
		b := get(r.DateKey())
		if pos, ok := b.index[r.City.ID]; ok {
			b.entries[pos] = Entry{City: r.City, Level: r.Level}
			continue
		}
		b.index[r.City.ID] = len(b.entries)
		b.entries = append(b.entries, Entry{City: r.City, Level: r.Level})
	}

	dates := make([]string, 0, len(buckets))
	for d := range buckets {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	out := make([]Snapshot, 0, len(dates))
	for _, d := range dates {
		entries := buckets[d].entries
		if entries == nil {
			entries = []Entry{}
		}
		out = append(out, Snapshot{Date: d, Entries: entries})
	}
	return out
}

// DateRange expands the inclusive range [from, to] into DateLayout keys.
// An empty from or to yields no dates.
func DateRange(from, to string) ([]string, error) {
	if from == "" || to == "" {
		return nil, nil
	}
	start, err := ParseDate(from)
	if err != nil {
		return nil, fmt.Errorf("parse range start %q: %w", from, err)
	}
	end, err := ParseDate(to)
	if err != nil {
		return nil, fmt.Errorf("parse range end %q: %w", to, err)
	}
	if end.Before(start) {
		return nil, errors.New("range end is before range start")
	}

	var dates []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(DateLayout))
	}
	return dates, nil
}

// MergeDates returns the union of the given date lists, sorted ascending.
func MergeDates(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, l := range lists {
		for _, d := range l {
			if _, ok := seen[d]; ok {
				continue
			}
			seen[d] = struct{}{}
			out = append(out, d)
		}
	}
	sort.Strings(out)
	return out
}

// RecentDates returns the n dates ending at end, oldest first.
func RecentDates(end time.Time, n int) []string {
	if n <= 0 {
		return nil
	}
	out := make([]string, 0, n)
	for i := n - 1; i >= 0; i-- {
		out = append(out, end.AddDate(0, 0, -i).Format(DateLayout))
	}
	return out
}
