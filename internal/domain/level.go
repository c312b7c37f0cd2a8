package domain

import (
	"math"
	"strconv"
	"strings"
)

// Level is a pollen level on the integer scale 0–10.
type Level int

const (
	// LevelNoData is the sentinel for a missing or unrecognised level. It is
	// always emitted, never omitted, because the rendering payload is positional.
	LevelNoData Level = 0
	// MaxLevel is the highest value accepted on the scale.
	MaxLevel Level = 10
)

// levelCategories maps the site's category text to the scale, in scale order.
var levelCategories = []struct {
	text  string
	level Level
	color string
}{
	{"暂无", 0, "#C4A39F"},
	{"很低", 1, "#81CB31"},
	{"低", 2, "#A1FF3D"},
	{"较低", 3, "#C9FF76"},
	{"中", 4, "#F5EE32"},
	{"偏高", 5, "#FFD429"},
	{"高", 6, "#FF642E"},
	{"较高", 7, "#FFAF13"},
	{"很高", 8, "#FF2319"},
	{"极高", 9, "#CC0000"},
}

// noDataAliases are additional spellings of "no data" seen in scraped rows.
var noDataAliases = map[string]struct{}{
	"未检测": {},
	"无":   {},
	"-":   {},
	"--":  {},
	"n/a": {},
	"nan": {},
}

const topLevelColor = "#AD075D"

// ParseLevel coerces level text to the scale. The boolean is false when the
// text was present but not recognised; the level is LevelNoData in that case.
// Empty text is a recognised "missing" value.
func ParseLevel(text string) (Level, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return LevelNoData, true
	}
	for _, c := range levelCategories {
		if s == c.text {
			return c.level, true
		}
	}
	if _, ok := noDataAliases[strings.ToLower(s)]; ok {
		return LevelNoData, true
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return LevelNoData, false
	}
	if v < float64(LevelNoData) || v > float64(MaxLevel) {
		return LevelNoData, false
	}
	return Level(v), true
}

// Valid reports whether l lies on the scale.
func (l Level) Valid() bool {
	return l >= LevelNoData && l <= MaxLevel
}

// Label returns the category text for l, or "未知" when l has none.
func (l Level) Label() string {
	for _, c := range levelCategories {
		if c.level == l {
			return c.text
		}
	}
	if l == MaxLevel {
		return "极高"
	}
	return "未知"
}

// Color returns the legend colour for l.
func (l Level) Color() string {
	for _, c := range levelCategories {
		if c.level == l {
			return c.color
		}
	}
	if l == MaxLevel {
		return topLevelColor
	}
	return "#999999"
}

// LegendPiece is one band of the piecewise legend.
type LegendPiece struct {
	Min   int    `json:"min"`
	Max   int    `json:"max"`
	Label string `json:"label"`
	Color string `json:"color"`
}

// Legend returns one piece per scale value, 0 through MaxLevel.
func Legend() []LegendPiece {
	pieces := make([]LegendPiece, 0, int(MaxLevel)+1)
	for l := LevelNoData; l <= MaxLevel; l++ {
		label := l.Label()
		if l == MaxLevel {
			label = "极高+"
		}
		pieces = append(pieces, LegendPiece{Min: int(l), Max: int(l), Label: label, Color: l.Color()})
	}
	return pieces
}
