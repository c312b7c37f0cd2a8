// Package geo holds the read-only table of monitored cities and resolves free
// text (station id, pinyin code, display name or alias) to a canonical city.
package geo

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang/geo/s2"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/pollen-map/internal/domain"
)

//go:embed cities.yaml
var defaultCities []byte

// China's approximate geographic centre, used when no city has coordinates.
const (
	fallbackCenterLon = 104.1954
	fallbackCenterLat = 35.8617
)

// administrative suffixes trimmed from names before lookup.
var nameSuffixes = []string{"地区", "市", "盟"}

// File is the on-disk layout of a city table.
type File struct {
	Cities []domain.CanonicalCity `yaml:"cities"`
}

// Table is an immutable city lookup table. It is safe for concurrent use.
type Table struct {
	cities []domain.CanonicalCity
	byKey  map[string]int
}

// New builds a table. Identifiers must be unique and any coordinates present
// must be a valid latitude/longitude pair.
func New(cities []domain.CanonicalCity) (*Table, error) {
	t := &Table{
		cities: make([]domain.CanonicalCity, 0, len(cities)),
		byKey:  make(map[string]int, len(cities)*3),
	}
	ids := make(map[string]struct{}, len(cities))

	for i, c := range cities {
		c.ID = strings.TrimSpace(c.ID)
		c.Name = strings.TrimSpace(c.Name)
		if c.ID == "" {
			return nil, fmt.Errorf("city %d: missing id", i)
		}
		if c.Name == "" {
			return nil, fmt.Errorf("city %s: missing name", c.ID)
		}
		if _, dup := ids[c.ID]; dup {
			return nil, fmt.Errorf("city %s: duplicate id", c.ID)
		}
		ids[c.ID] = struct{}{}

		if c.HasCoordinates() && !s2.LatLngFromDegrees(c.Lat, c.Lon).IsValid() {
			return nil, fmt.Errorf("city %s: invalid coordinates lon=%v lat=%v", c.ID, c.Lon, c.Lat)
		}

		pos := len(t.cities)
		t.cities = append(t.cities, c)

		keys := append([]string{c.ID, c.Code, c.Name}, c.Aliases...)
		for _, k := range keys {
			if err := t.index(k, pos); err != nil {
				return nil, fmt.Errorf("city %s: %w", c.ID, err)
			}
		}
	}
	return t, nil
}

func (t *Table) index(text string, pos int) error {
	key := normalizeName(text)
	if key == "" {
		return nil
	}
	if prev, ok := t.byKey[key]; ok && prev != pos {
		return fmt.Errorf("name %q already used by city %s", text, t.cities[prev].ID)
	}
	t.byKey[key] = pos
	return nil
}

// Parse decodes a YAML city table.
func Parse(data []byte) (*Table, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode city table: %w", err)
	}
	if len(f.Cities) == 0 {
		return nil, errors.New("city table is empty")
	}
	return New(f.Cities)
}

// LoadFile reads a YAML city table from path.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read city table: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Default returns the embedded table of monitored cities.
func Default() *Table {
	t, err := Parse(defaultCities)
	if err != nil {
		panic(fmt.Sprintf("geo: embedded city table: %v", err))
	}
	return t
}

// Load returns the table at path, or the embedded table when path is empty.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// Marshal encodes cities in the table file layout.
func Marshal(cities []domain.CanonicalCity) ([]byte, error) {
	return yaml.Marshal(File{Cities: cities})
}

// Resolve implements domain.CityResolver. A miss returns false, never an error.
func (t *Table) Resolve(text string) (domain.CanonicalCity, bool) {
	pos, ok := t.byKey[normalizeName(text)]
	if !ok {
		return domain.CanonicalCity{}, false
	}
	return t.cities[pos], true
}

// Cities returns a copy of the table in file order.
func (t *Table) Cities() []domain.CanonicalCity {
	out := make([]domain.CanonicalCity, len(t.cities))
	copy(out, t.cities)
	return out
}

// Len returns the number of cities.
func (t *Table) Len() int { return len(t.cities) }

// Center returns the centre of the bounding rectangle of all positioned
// cities as (lon, lat).
func (t *Table) Center() (float64, float64) {
	rect := s2.EmptyRect()
	for _, c := range t.cities {
		if c.HasCoordinates() {
			rect = rect.AddPoint(s2.LatLngFromDegrees(c.Lat, c.Lon))
		}
	}
	if rect.IsEmpty() {
		return fallbackCenterLon, fallbackCenterLat
	}
	center := rect.Center()
	return center.Lng.Degrees(), center.Lat.Degrees()
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, suffix := range nameSuffixes {
		if trimmed := strings.TrimSuffix(s, suffix); trimmed != s && trimmed != "" {
			return strings.TrimSpace(trimmed)
		}
	}
	return s
}
