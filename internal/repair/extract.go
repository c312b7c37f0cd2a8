// Package repair recovers the embedded data payload from a previously
// generated map document, including damaged ones, so the document can be
// re-emitted without re-running the generator.
package repair

import (
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/couchcryptid/pollen-map/internal/domain"
)

// Extraction tiers.
const (
	TierStrict   = "strict"
	TierTolerant = "tolerant"
	TierNone     = "none"
)

var (
	titleDateRe = regexp.MustCompile(`全国花粉分布地图\s*-\s*(\d{4}-\d{2}-\d{2})`)
	dataKeyRe   = regexp.MustCompile(`["']?data["']?\s*:\s*\[`)

	// looseEntryRe tolerates unquoted or single-quoted keys, single-quoted
	// names and a scalar value in place of the coordinate array. An entry
	// whose value array is cut off does not match.
	looseEntryRe = regexp.MustCompile(
		`\{\s*["']?name["']?\s*:\s*(?:"((?:[^"\\]|\\.)*)"|'((?:[^'\\]|\\.)*)')\s*,\s*` +
			`["']?value["']?\s*:\s*(\[[^\[\]{}]*\]|-?\d+(?:\.\d+)?)`)
)

// Item is one recovered (name, value) entry.
type Item struct {
	Name      string
	Lon       float64
	Lat       float64
	HasCoords bool
	Level     domain.Level
}

// Extraction is the outcome of Extract.
type Extraction struct {
	// Date is the document date, or empty when the title carries none.
	Date       string
	Items      []Item
	Blocks     int
	Tier       string
	Duplicates int
	// Skipped counts matched entries whose value could not be used.
	Skipped int
}

// Extract recovers entries from document text. Every data block is scanned;
// within a block the strict tier decodes the bracket-balanced literal as JSON
// and the tolerant tier runs only when that yields nothing. Entries are
// de-duplicated by name keeping the first occurrence. A document yielding no
// entries fails with an *domain.ExtractionError wrapping domain.ErrNoEntries.
func Extract(text string) (Extraction, error) {
	ex := Extraction{Date: extractDate(text), Tier: TierNone}

	var raw []Item
	for _, block := range dataBlocks(text) {
		ex.Blocks++
		items, skipped, ok := strictItems(block)
		tier := TierStrict
		if !ok || len(items) == 0 {
			items, skipped = tolerantItems(block)
			tier = TierTolerant
		}
		ex.Skipped += skipped
		if len(items) > 0 && rankTier(tier) > rankTier(ex.Tier) {
			ex.Tier = tier
		}
		raw = append(raw, items...)
	}

	seen := make(map[string]struct{}, len(raw))
	for _, it := range raw {
		if _, dup := seen[it.Name]; dup {
			ex.Duplicates++
			continue
		}
		seen[it.Name] = struct{}{}
		ex.Items = append(ex.Items, it)
	}

	if len(ex.Items) == 0 {
		return ex, &domain.ExtractionError{Recovered: 0, Err: domain.ErrNoEntries}
	}
	return ex, nil
}

// rankTier orders tiers so the report shows the weakest tier that was needed.
func rankTier(t string) int {
	switch t {
	case TierTolerant:
		return 2
	case TierStrict:
		return 1
	default:
		return 0
	}
}

func extractDate(text string) string {
	m := titleDateRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	if _, err := domain.ParseDate(m[1]); err != nil {
		return ""
	}
	return m[1]
}

// dataBlocks returns the array literal following each data key. A block whose
// closing bracket is missing runs to the next data key or the end of text.
func dataBlocks(text string) []string {
	locs := dataKeyRe.FindAllStringIndex(text, -1)
	blocks := make([]string, 0, len(locs))
	for i, loc := range locs {
		start := loc[1] - 1 // opening bracket
		limit := len(text)
		if i+1 < len(locs) {
			limit = locs[i+1][0]
		}
		if end, ok := matchBracket(text[:limit], start); ok {
			blocks = append(blocks, text[start:end+1])
			continue
		}
		blocks = append(blocks, text[start:limit])
	}
	return blocks
}

// matchBracket finds the bracket closing the one at open, skipping string
// literals.
func matchBracket(text string, open int) (int, bool) {
	depth := 0
	var quote byte
	escaped := false
	for i := open; i < len(text); i++ {
		c := text[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return i, c == ']'
			}
		}
	}
	return 0, false
}

type strictEntry struct {
	Name  *string         `json:"name"`
	Value json.RawMessage `json:"value"`
}

// strictItems decodes a well-formed block. ok is false when the block is not
// valid JSON.
func strictItems(block string) (items []Item, skipped int, ok bool) {
	var entries []strictEntry
	if err := json.Unmarshal([]byte(block), &entries); err != nil {
		return nil, 0, false
	}
	for _, e := range entries {
		if e.Name == nil || len(e.Value) == 0 {
			skipped++
			continue
		}
		it, err := parseValue(*e.Name, string(e.Value))
		if err != nil {
			skipped++
			continue
		}
		items = append(items, it)
	}
	return items, skipped, true
}

func tolerantItems(block string) (items []Item, skipped int) {
	for _, m := range looseEntryRe.FindAllStringSubmatch(block, -1) {
		name := m[1]
		quote := `"`
		if name == "" && m[2] != "" {
			name, quote = m[2], `'`
		}
		it, err := parseValue(unescapeName(name, quote), m[3])
		if err != nil {
			skipped++
			continue
		}
		items = append(items, it)
	}
	return items, skipped
}

func unescapeName(s, quote string) string {
	if quote == `'` {
		s = strings.ReplaceAll(s, `\'`, `'`)
		s = strings.ReplaceAll(s, `"`, `\"`)
	}
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err == nil {
		return strings.TrimSpace(out)
	}
	return strings.TrimSpace(s)
}

var (
	errBadValue = errors.New("unusable value")
	errBadLevel = errors.New("level outside scale")
)

// parseValue interprets [lon, lat, level], [level] or a bare level.
func parseValue(name, value string) (Item, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Item{}, errBadValue
	}
	value = strings.TrimSpace(value)

	var nums []float64
	if strings.HasPrefix(value, "[") {
		inner := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(value, "["), "]"))
		if inner != "" {
			for _, part := range strings.Split(inner, ",") {
				f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
				if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
					return Item{}, errBadValue
				}
				nums = append(nums, f)
			}
		}
	} else {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return Item{}, errBadValue
		}
		nums = []float64{f}
	}

	it := Item{Name: name}
	var level float64
	switch len(nums) {
	case 1:
		level = nums[0]
	case 3:
		it.Lon, it.Lat, it.HasCoords = nums[0], nums[1], true
		level = nums[2]
	default:
		return Item{}, errBadValue
	}
	if level != math.Trunc(level) || level < float64(domain.LevelNoData) || level > float64(domain.MaxLevel) {
		return Item{}, errBadLevel
	}
	it.Level = domain.Level(level)
	return it, nil
}
