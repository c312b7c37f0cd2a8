package domain

import "time"

// DateLayout is the canonical date format used in snapshots, titles and paths.
const DateLayout = "2006-01-02"

// MeasurementRow is one raw reading as delivered by the row source.
// Field values are kept as text; the normalizer owns all parsing.
type MeasurementRow struct {
	City     string `json:"city"`
	CityCode string `json:"city_code,omitempty"` // pinyin code, e.g. "beijing"
	Date     string `json:"date"`
	Level    string `json:"level"`
	Message  string `json:"message,omitempty"`

	// Line is the 1-based source position, used in warnings only.
	Line int `json:"-"`
}

// CanonicalCity is a monitored city with a stable identifier and a map position.
type CanonicalCity struct {
	ID       string   `json:"id" yaml:"id"`
	Code     string   `json:"code,omitempty" yaml:"code,omitempty"`
	Name     string   `json:"name" yaml:"name"`
	Province string   `json:"province,omitempty" yaml:"province,omitempty"`
	Aliases  []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Lon      float64  `json:"lon" yaml:"lon"`
	Lat      float64  `json:"lat" yaml:"lat"`
}

// HasCoordinates reports whether the city carries a usable position.
func (c CanonicalCity) HasCoordinates() bool {
	return c.Lon != 0 || c.Lat != 0
}

// CityResolver maps free text (identifier, code, name or alias) to a city.
type CityResolver interface {
	Resolve(text string) (CanonicalCity, bool)
}

// NormalizedRow is a MeasurementRow after date parsing, city resolution and
// level coercion.
type NormalizedRow struct {
	City    CanonicalCity
	Date    time.Time
	Level   Level
	Message string
}

// DateKey returns the row's date in DateLayout.
func (r NormalizedRow) DateKey() string {
	return r.Date.Format(DateLayout)
}

// Entry is one (city, level) pair of a snapshot.
type Entry struct {
	City  CanonicalCity `json:"city"`
	Level Level         `json:"level"`
}

// Snapshot is the complete set of entries for one calendar date, at most one
// entry per city, in first-appearance order.
type Snapshot struct {
	Date    string  `json:"date"`
	Entries []Entry `json:"entries"`
}

// Len returns the number of entries.
func (s Snapshot) Len() int { return len(s.Entries) }

// Empty reports whether the snapshot has no entries.
func (s Snapshot) Empty() bool { return len(s.Entries) == 0 }

// Document is a rendered per-date visualization document.
type Document struct {
	Date    string
	Path    string // relative to the output root, e.g. "maps/map_2025-03-20.html"
	Content []byte
	Entries int
}
