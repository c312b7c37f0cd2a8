// Package sample generates deterministic measurement tables for demos and
// tests. The same seed, city table and end date always yield the same rows.
package sample

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/couchcryptid/pollen-map/internal/domain"
)

// Header is the column row written by WriteCSV, matching the scraper's
// Chinese export.
var Header = []string{"日期", "城市", "城市代码", "花粉等级", "等级描述"}

// Options control a generated table.
type Options struct {
	Cities int
	Days   int
	// End is the last date generated. The zero value means today.
	End  time.Time
	Seed uint64
}

// Sample levels lean towards the low end of the scale, like a typical
// spring week.
var levels = []struct {
	text    string
	message string
	weight  float64
}{
	{"暂无", "无花粉", 1},
	{"很低", "不易引发过敏反应", 3},
	{"较低", "对极敏感人群可能引发过敏反应", 3},
	{"偏高", "易引发过敏，加强防护，对症用药", 2},
	{"较高", "易引发过敏，加强防护，规范用药", 2},
	{"很高", "极易引发过敏，减少外出，持续规范用药", 1},
	{"极高", "极易引发过敏，建议足不出户，规范用药", 0.5},
}

// Generate returns Options.Days rows for each of Options.Cities cities
// picked from cities, ordered by date then city.
func Generate(cities []domain.CanonicalCity, opts Options) ([]domain.MeasurementRow, error) {
	if opts.Cities < 1 || opts.Days < 1 {
		return nil, fmt.Errorf("cities and days must be positive (got %d, %d)", opts.Cities, opts.Days)
	}
	if len(cities) == 0 {
		return nil, errors.New("city table is empty")
	}
	end := opts.End
	if end.IsZero() {
		end = domain.Now()
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	picked := pickCities(rng, cities, opts.Cities)
	dates := domain.RecentDates(end, opts.Days)

	rows := make([]domain.MeasurementRow, 0, len(picked)*len(dates))
	for _, date := range dates {
		for _, c := range picked {
			l := levels[weightedIndex(rng)]
			rows = append(rows, domain.MeasurementRow{
				City:     c.Name,
				CityCode: c.Code,
				Date:     date,
				Level:    l.text,
				Message:  l.message,
				Line:     len(rows) + 2,
			})
		}
	}
	return rows, nil
}

// WriteCSV writes rows with a UTF-8 byte order mark and Header, which
// spreadsheet tools need to detect the encoding.
func WriteCSV(w io.Writer, rows []domain.MeasurementRow) error {
	if _, err := io.WriteString(w, "\ufeff"); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.Date, r.City, r.CityCode, r.Level, r.Message}); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func pickCities(rng *rand.Rand, cities []domain.CanonicalCity, n int) []domain.CanonicalCity {
	if n > len(cities) {
		n = len(cities)
	}
	perm := rng.Perm(len(cities))
	out := make([]domain.CanonicalCity, 0, n)
	for _, i := range perm[:n] {
		out = append(out, cities[i])
	}
	return out
}

func weightedIndex(rng *rand.Rand) int {
	var total float64
	for _, l := range levels {
		total += l.weight
	}
	x := rng.Float64() * total
	for i, l := range levels {
		if x < l.weight {
			return i
		}
		x -= l.weight
	}
	return len(levels) - 1
}
